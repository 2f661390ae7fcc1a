// Package vision defines the operator contracts shared by the compute backends:
// validated configuration values, box formats, and the error taxonomy.
package vision

import "math"

// PoolConfig parameterizes ROIAlign and PSROIAlign.
//
// Box coordinates are multiplied by ScaleH/ScaleW to map them onto the feature map.
// SamplingRatio <= 0 selects an adaptive grid of ceil(bin size) points per axis.
// OutChannels is only used by position-sensitive pooling.
type PoolConfig struct {
	ScaleH        float32
	ScaleW        float32
	PooledH       int
	PooledW       int
	SamplingRatio int
	OutChannels   int
}

// Validate checks the parameters that do not depend on tensor shapes.
func (c PoolConfig) Validate(op string) error {
	if c.PooledH <= 0 || c.PooledW <= 0 {
		return paramErrorf(op, "pooled size must be positive, got %dx%d", c.PooledH, c.PooledW)
	}
	if !finite(c.ScaleH) || !finite(c.ScaleW) || c.ScaleH <= 0 || c.ScaleW <= 0 {
		return paramErrorf(op, "spatial scale must be positive and finite, got (%v, %v)", c.ScaleH, c.ScaleW)
	}
	return nil
}

// ValidatePS additionally checks OutChannels against the input channel count.
func (c PoolConfig) ValidatePS(op string, channels int) error {
	if err := c.Validate(op); err != nil {
		return err
	}
	if c.OutChannels <= 0 || channels%c.OutChannels != 0 {
		return paramErrorf(op, "out_channels %d must evenly divide %d input channels", c.OutChannels, channels)
	}
	if channels != c.OutChannels*c.PooledH*c.PooledW {
		return shapeErrorf(op, "input has %d channels, want out_channels*pooled_h*pooled_w = %d",
			channels, c.OutChannels*c.PooledH*c.PooledW)
	}
	return nil
}

// DeformConfig parameterizes the deformable sampler family.
type DeformConfig struct {
	KernelH, KernelW     int
	PadH, PadW           int
	StrideH, StrideW     int
	DilationH, DilationW int
	DeformableGroups     int
	// ParallelImgs caps how many images one launch unrolls into a column buffer.
	ParallelImgs int
}

// Validate checks the parameters that do not depend on tensor shapes.
func (c DeformConfig) Validate(op string) error {
	switch {
	case c.KernelH <= 0 || c.KernelW <= 0:
		return paramErrorf(op, "kernel must be positive, got %dx%d", c.KernelH, c.KernelW)
	case c.StrideH <= 0 || c.StrideW <= 0:
		return paramErrorf(op, "stride must be positive, got %dx%d", c.StrideH, c.StrideW)
	case c.DilationH <= 0 || c.DilationW <= 0:
		return paramErrorf(op, "dilation must be positive, got %dx%d", c.DilationH, c.DilationW)
	case c.PadH < 0 || c.PadW < 0:
		return paramErrorf(op, "padding must be non-negative, got %dx%d", c.PadH, c.PadW)
	case c.DeformableGroups <= 0:
		return paramErrorf(op, "deformable groups must be positive, got %d", c.DeformableGroups)
	case c.ParallelImgs <= 0:
		return paramErrorf(op, "parallel_imgs must be positive, got %d", c.ParallelImgs)
	}
	return nil
}

// Taps returns the number of kernel taps.
func (c DeformConfig) Taps() int {
	return c.KernelH * c.KernelW
}

// OutputSize returns the spatial size of the convolution output for an h x w input.
func (c DeformConfig) OutputSize(h, w int) (int, int) {
	outH := (h+2*c.PadH-(c.DilationH*(c.KernelH-1)+1))/c.StrideH + 1
	outW := (w+2*c.PadW-(c.DilationW*(c.KernelW-1)+1))/c.StrideW + 1
	return outH, outW
}

// Chunk returns how many images a launch starting at batchStart covers.
func (c DeformConfig) Chunk(batch, batchStart int) int {
	return min(c.ParallelImgs, batch-batchStart)
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
