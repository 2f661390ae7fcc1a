package cpu

import (
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/vision"
)

// PSROIAlign performs position-sensitive region pooling.
//
// Input shape:  [N, out_channels * pooled_h * pooled_w, H, W]
// ROIs shape:   [R, 5]
// Output shape: [R, out_channels, pooled_h, pooled_w]
//
// Bin (ph, pw) of output channel c reads only input channel
// (c*pooled_h + ph)*pooled_w + pw. Sampling geometry is the same as ROIAlign.
func (cpu *CPUBackend) PSROIAlign(input, rois *tensor.RawTensor, cfg vision.PoolConfig) (*tensor.RawTensor, error) {
	const op = "psroi_align"
	if err := cpu.checkPoolInputs(op, input, rois, cfg); err != nil {
		return nil, err
	}
	s := input.Shape()
	if err := cfg.ValidatePS(op, s[1]); err != nil {
		return nil, cpu.fail(op, err)
	}

	C, H, W := s[1], s[2], s[3]
	R := rois.Shape()[0]
	CO, PH, PW := cfg.OutChannels, cfg.PooledH, cfg.PooledW

	output, err := cpu.alloc(op, tensor.Shape{R, CO, PH, PW})
	if err != nil {
		return nil, err
	}

	inputData := input.AsFloat32()
	roiData := rois.AsFloat32()
	outputData := output.AsFloat32()

	cpu.launchPooling(op, cfg, len(outputData), func(i int) {
		pw := i % PW
		ph := (i / PW) % PH
		c := (i / (PW * PH)) % CO
		r := i / (PW * PH * CO)

		bins := layoutROI(roiData[r*5:r*5+5], cfg)
		cIn := (c*PH+ph)*PW + pw
		plane := inputData[(bins.batch*C+cIn)*H*W : (bins.batch*C+cIn+1)*H*W]

		var sum float32
		bins.eachSample(ph, pw, func(y, x float32) {
			sum += bilinear(plane, H, W, y, x)
		})
		outputData[i] = sum / bins.count
	})

	return output, nil
}

// PSROIAlignBackward scatters grad [R, out_channels, pooled_h, pooled_w] into a
// zeroed [batch, channels, height, width] gradient. Each bin's gradient lands only
// in the input channel that bin read from.
func (cpu *CPUBackend) PSROIAlignBackward(grad, rois *tensor.RawTensor, cfg vision.PoolConfig,
	batch, channels, height, width int,
) (*tensor.RawTensor, error) {
	const op = "psroi_align_backward"
	if err := cfg.ValidatePS(op, channels); err != nil {
		return nil, cpu.fail(op, err)
	}
	if err := cpu.checkPoolBackward(op, grad, rois, cfg, cfg.OutChannels, batch, channels, height, width); err != nil {
		return nil, err
	}

	C, H, W := channels, height, width
	CO, PH, PW := cfg.OutChannels, cfg.PooledH, cfg.PooledW

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
		c := (i / (PW * PH)) % CO
		r := i / (PW * PH * CO)

		bins := layoutROI(roiData[r*5:r*5+5], cfg)
		cIn := (c*PH+ph)*PW + pw
		base := (bins.batch*C + cIn) * H * W
		share := g / bins.count
		bins.eachSample(ph, pw, func(y, x float32) {
			bilinearBackward(H, W, y, x, share, func(j int, v float32) {
				acc.Add(base+j, v)
			})
		})
	})

	return gradInput, nil
}
