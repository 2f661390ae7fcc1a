//go:build windows

package webgpu

import (
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/vision"
)

// Backward passes scatter with float atomics, which WGSL does not provide. They
// run on the host copy of the operands through the CPU backend and hand back
// tensors tagged for this device.

func onHost(t *tensor.RawTensor) *tensor.RawTensor {
	if t == nil {
		return nil
	}
	return t.WithDevice(tensor.CPU)
}

func onDevice(t *tensor.RawTensor) *tensor.RawTensor {
	if t == nil {
		return nil
	}
	return t.WithDevice(tensor.WebGPU)
}

// checkHost validates the operands of a host fallback: they must share one
// device, and it must be this backend's.
func (b *Backend) checkHost(op string, operands ...*tensor.RawTensor) error {
	if err := vision.CheckCoResident(op, operands...); err != nil {
		return b.fail(op, err)
	}
	if err := vision.CheckDevice(op, tensor.WebGPU, operands...); err != nil {
		return b.fail(op, err)
	}
	return nil
}

// ROIAlignBackward runs on the host.
func (b *Backend) ROIAlignBackward(grad, rois *tensor.RawTensor, cfg vision.PoolConfig,
	batch, channels, height, width int,
) (*tensor.RawTensor, error) {
	const op = "roi_align_backward"
	if err := b.checkHost(op, grad, rois); err != nil {
		return nil, err
	}
	out, err := b.host.ROIAlignBackward(onHost(grad), onHost(rois), cfg, batch, channels, height, width)
	return onDevice(out), err
}

// PSROIAlignBackward runs on the host.
func (b *Backend) PSROIAlignBackward(grad, rois *tensor.RawTensor, cfg vision.PoolConfig,
	batch, channels, height, width int,
) (*tensor.RawTensor, error) {
	const op = "psroi_align_backward"
	if err := b.checkHost(op, grad, rois); err != nil {
		return nil, err
	}
	out, err := b.host.PSROIAlignBackward(onHost(grad), onHost(rois), cfg, batch, channels, height, width)
	return onDevice(out), err
}

// PairwiseIoUBackward runs on the host.
func (b *Backend) PairwiseIoUBackward(grad, boxes1, boxes2, ious *tensor.RawTensor) (*tensor.RawTensor, *tensor.RawTensor, error) {
	const op = "pairwise_iou_backward"
	if err := b.checkHost(op, grad, boxes1, boxes2, ious); err != nil {
		return nil, nil, err
	}
	g1, g2, err := b.host.PairwiseIoUBackward(onHost(grad), onHost(boxes1), onHost(boxes2), onHost(ious))
	return onDevice(g1), onDevice(g2), err
}
