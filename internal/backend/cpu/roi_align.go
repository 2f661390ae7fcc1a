package cpu

import (
	"math"

	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/vision"
)

// roiBins is the bin layout of one ROI on the feature map.
type roiBins struct {
	batch          int
	startH, startW float32
	binH, binW     float32
	gridH, gridW   int
	count          float32
}

// layoutROI maps roi (batch, x1, y1, x2, y2) onto the feature map. Boxes smaller
// than one feature pixel are widened to one pixel so bins never collapse.
func layoutROI(roi []float32, cfg vision.PoolConfig) roiBins {
	startW, startH := roi[1]*cfg.ScaleW, roi[2]*cfg.ScaleH
	endW, endH := roi[3]*cfg.ScaleW, roi[4]*cfg.ScaleH
	roiW := max(endW-startW, 1)
	roiH := max(endH-startH, 1)

	b := roiBins{
		batch:  int(roi[0]),
		startH: startH,
		startW: startW,
		binH:   roiH / float32(cfg.PooledH),
		binW:   roiW / float32(cfg.PooledW),
		gridH:  cfg.SamplingRatio,
		gridW:  cfg.SamplingRatio,
	}
	if cfg.SamplingRatio <= 0 {
		b.gridH = max(int(math.Ceil(float64(b.binH))), 1)
		b.gridW = max(int(math.Ceil(float64(b.binW))), 1)
	}
	b.count = float32(b.gridH * b.gridW)
	return b
}

// eachSample calls fn with every sample point of bin (ph, pw), row by row.
func (b roiBins) eachSample(ph, pw int, fn func(y, x float32)) {
	for iy := 0; iy < b.gridH; iy++ {
		y := b.startH + float32(ph)*b.binH + (float32(iy)+0.5)*b.binH/float32(b.gridH)
		for ix := 0; ix < b.gridW; ix++ {
			x := b.startW + float32(pw)*b.binW + (float32(ix)+0.5)*b.binW/float32(b.gridW)
			fn(y, x)
		}
	}
}

// ROIAlign performs region pooling with bilinear sampling.
//
// Input shape:  [N, C, H, W]
// ROIs shape:   [R, 5] rows of (batch_index, x1, y1, x2, y2) in image coordinates
// Output shape: [R, C, pooled_h, pooled_w]
//
// Each output bin is the mean of gridH x gridW bilinear samples evenly spread over
// the bin. One unit of work per (roi, channel, bin).
func (cpu *CPUBackend) ROIAlign(input, rois *tensor.RawTensor, cfg vision.PoolConfig) (*tensor.RawTensor, error) {
	const op = "roi_align"
	if err := cpu.checkPoolInputs(op, input, rois, cfg); err != nil {
		return nil, err
	}

	s := input.Shape()
	C, H, W := s[1], s[2], s[3]
	R := rois.Shape()[0]
	PH, PW := cfg.PooledH, cfg.PooledW

	output, err := cpu.alloc(op, tensor.Shape{R, C, PH, PW})
	if err != nil {
		return nil, err
	}

	inputData := input.AsFloat32()
	roiData := rois.AsFloat32()
	outputData := output.AsFloat32()

	cpu.launchPooling(op, cfg, len(outputData), func(i int) {
		pw := i % PW
		ph := (i / PW) % PH
		c := (i / (PW * PH)) % C
		r := i / (PW * PH * C)

		bins := layoutROI(roiData[r*5:r*5+5], cfg)
		plane := inputData[(bins.batch*C+c)*H*W : (bins.batch*C+c+1)*H*W]

		var sum float32
		bins.eachSample(ph, pw, func(y, x float32) {
			sum += bilinear(plane, H, W, y, x)
		})
		outputData[i] = sum / bins.count
	})

	return output, nil
}

// ROIAlignBackward scatters grad [R, C, pooled_h, pooled_w] back onto a zeroed
// [batch, channels, height, width] gradient. Each unit recomputes its sample points
// and accumulates grad/count through the bilinear weights.
func (cpu *CPUBackend) ROIAlignBackward(grad, rois *tensor.RawTensor, cfg vision.PoolConfig,
	batch, channels, height, width int,
) (*tensor.RawTensor, error) {
	const op = "roi_align_backward"
	if err := cpu.checkPoolBackward(op, grad, rois, cfg, channels, batch, channels, height, width); err != nil {
		return nil, err
	}

	C, H, W := channels, height, width
	PH, PW := cfg.PooledH, cfg.PooledW

	gradInput, err := cpu.alloc(op, tensor.Shape{batch, C, H, W})
	if err != nil {
		return nil, err
	}

	gradData := grad.AsFloat32()
	roiData := rois.AsFloat32()
	acc := cpu.accumulator(gradInput.AsFloat32())

	cpu.launchPooling(op, cfg, len(gradData), func(i int) {
		g := gradData[i]
		if g == 0 {
			return
		}
		pw := i % PW
		ph := (i / PW) % PH
		c := (i / (PW * PH)) % C
		r := i / (PW * PH * C)

		bins := layoutROI(roiData[r*5:r*5+5], cfg)
		base := (bins.batch*C + c) * H * W
		share := g / bins.count
		bins.eachSample(ph, pw, func(y, x float32) {
			bilinearBackward(H, W, y, x, share, func(j int, v float32) {
				acc.Add(base+j, v)
			})
		})
	})

	return gradInput, nil
}

// launchPooling uses work stealing when adaptive sampling makes bin cost vary per ROI.
func (cpu *CPUBackend) launchPooling(op string, cfg vision.PoolConfig, units int, fn func(i int)) {
	if cfg.SamplingRatio <= 0 {
		cpu.launchDynamic(op, units, fn)
		return
	}
	cpu.launch(op, units, fn)
}

func (cpu *CPUBackend) checkPoolInputs(op string, input, rois *tensor.RawTensor, cfg vision.PoolConfig) error {
	if err := cfg.Validate(op); err != nil {
		return cpu.fail(op, err)
	}
	if err := vision.CheckFeatureMap(op, "input", input); err != nil {
		return cpu.fail(op, err)
	}
	if err := vision.CheckROIs(op, rois, input.Shape()[0]); err != nil {
		return cpu.fail(op, err)
	}
	if err := vision.CheckDevice(op, cpu.device, input, rois); err != nil {
		return cpu.fail(op, err)
	}
	return nil
}

// checkPoolBackward validates grad against [R, gradChannels, pooled_h, pooled_w].
func (cpu *CPUBackend) checkPoolBackward(op string, grad, rois *tensor.RawTensor, cfg vision.PoolConfig,
	gradChannels, batch, channels, height, width int,
) error {
	if err := cfg.Validate(op); err != nil {
		return cpu.fail(op, err)
	}
	if err := checkGradTarget(op, batch, channels, height, width); err != nil {
		return cpu.fail(op, err)
	}
	if err := vision.CheckROIs(op, rois, batch); err != nil {
		return cpu.fail(op, err)
	}
	want := tensor.Shape{rois.Shape()[0], gradChannels, cfg.PooledH, cfg.PooledW}
	if err := vision.CheckShape(op, "grad", grad, want); err != nil {
		return cpu.fail(op, err)
	}
	if err := vision.CheckDevice(op, cpu.device, grad, rois); err != nil {
		return cpu.fail(op, err)
	}
	return nil
}
