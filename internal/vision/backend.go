package vision

import "github.com/born-ml/vision/internal/tensor"

// Backend is implemented by every compute backend that runs the region and box
// operators. Inputs are borrowed for the duration of a call and never mutated.
//
// Implementations:
//   - CPU: goroutine launches with atomic gradient accumulation
//   - WebGPU: WGSL compute kernels for the forward operators
type Backend interface {
	Name() string
	Device() tensor.Device

	// ROIAlign pools input [N,C,H,W] over rois [R,5] (batch, x1, y1, x2, y2)
	// into [R,C,PooledH,PooledW].
	ROIAlign(input, rois *tensor.RawTensor, cfg PoolConfig) (*tensor.RawTensor, error)
	// ROIAlignBackward scatters grad [R,C,PooledH,PooledW] into a fresh
	// [batch,channels,height,width] gradient.
	ROIAlignBackward(grad, rois *tensor.RawTensor, cfg PoolConfig, batch, channels, height, width int) (*tensor.RawTensor, error)

	// PSROIAlign pools input [N,OutChannels*PooledH*PooledW,H,W] into
	// [R,OutChannels,PooledH,PooledW], one input channel per output bin.
	PSROIAlign(input, rois *tensor.RawTensor, cfg PoolConfig) (*tensor.RawTensor, error)
	PSROIAlignBackward(grad, rois *tensor.RawTensor, cfg PoolConfig, batch, channels, height, width int) (*tensor.RawTensor, error)

	// PairwiseIoU returns the [N,M] IoU matrix of boxes1 [N,4] and boxes2 [M,4].
	PairwiseIoU(boxes1, boxes2 *tensor.RawTensor) (*tensor.RawTensor, error)
	PairwiseIoUBackward(grad, boxes1, boxes2, ious *tensor.RawTensor) (*tensor.RawTensor, *tensor.RawTensor, error)

	// NMS returns the indices of the boxes [N,5] (x1, y1, x2, y2, score) that
	// survive suppression, in ascending index order. Suppression itself visits
	// boxes by descending score.
	NMS(boxes *tensor.RawTensor, threshold float32) ([]int, error)
}

// DeformableBackend runs the deformable (and modulated deformable) sampler.
// A nil mask selects the plain variant.
type DeformableBackend interface {
	DeformIm2Col(input, offset, mask *tensor.RawTensor, batchStart int, cfg DeformConfig) (*tensor.RawTensor, error)
	DeformCol2Im(columns, offset, mask *tensor.RawTensor, batchStart int, gradInput *tensor.RawTensor, cfg DeformConfig) error
	DeformCol2ImCoord(columns, input, offset, mask *tensor.RawTensor, batchStart int,
		gradOffset, gradMask *tensor.RawTensor, cfg DeformConfig) error

	DeformConv2D(input, offset, mask, weight *tensor.RawTensor, cfg DeformConfig) (*tensor.RawTensor, error)
	DeformConv2DBackward(grad, input, offset, mask, weight *tensor.RawTensor, cfg DeformConfig) (*DeformGrads, error)
}

// DeformGrads holds the gradients produced by DeformConv2DBackward.
// Mask is nil for the plain variant.
type DeformGrads struct {
	Input  *tensor.RawTensor
	Offset *tensor.RawTensor
	Mask   *tensor.RawTensor
	Weight *tensor.RawTensor
}

// ValidateThreshold checks an NMS overlap threshold.
func ValidateThreshold(op string, threshold float32) error {
	if !finite(threshold) || threshold < 0 || threshold > 1 {
		return paramErrorf(op, "threshold must be in [0, 1], got %v", threshold)
	}
	return nil
}
