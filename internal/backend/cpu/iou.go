package cpu

import (
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/vision"
)

// PairwiseIoU computes the IoU of every box pair.
//
// Boxes are (x1, y1, x2, y2). boxes1 is [N, 4], boxes2 is [M, 4], the result is
// [N, M]. Pairs with an empty intersection or union have IoU 0.
func (cpu *CPUBackend) PairwiseIoU(boxes1, boxes2 *tensor.RawTensor) (*tensor.RawTensor, error) {
	const op = "pairwise_iou"
	if err := cpu.checkIoUInputs(op, boxes1, boxes2); err != nil {
		return nil, err
	}
	N, M := boxes1.Shape()[0], boxes2.Shape()[0]

	ious, err := cpu.alloc(op, tensor.Shape{N, M})
	if err != nil {
		return nil, err
	}

	a, b := boxes1.AsFloat32(), boxes2.AsFloat32()
	out := ious.AsFloat32()
	cpu.launch(op, N*M, func(k int) {
		i, j := k/M, k%M
		out[k] = vision.BoxAt(a, 4, i).IoU(vision.BoxAt(b, 4, j))
	})
	return ious, nil
}

// PairwiseIoUBackward returns the gradients of sum(grad * ious) with respect to
// boxes1 [N, 4] and boxes2 [M, 4].
//
// With I the intersection, U the union and IoU = I / U:
//
//	dIoU/dI    = (1 + IoU) / U
//	dIoU/dArea = -IoU / U
//
// Intersection edges take the derivative of whichever box defines them; ties go
// to boxes1. Pairs with no intersection or a zero-area box get zero gradient.
// Each pair is one unit; both gradient rows are accumulated atomically.
func (cpu *CPUBackend) PairwiseIoUBackward(grad, boxes1, boxes2, ious *tensor.RawTensor) (*tensor.RawTensor, *tensor.RawTensor, error) {
	const op = "pairwise_iou_backward"
	if err := cpu.checkIoUInputs(op, boxes1, boxes2); err != nil {
		return nil, nil, err
	}
	N, M := boxes1.Shape()[0], boxes2.Shape()[0]
	if err := vision.CheckShape(op, "grad", grad, tensor.Shape{N, M}); err != nil {
		return nil, nil, cpu.fail(op, err)
	}
	if err := vision.CheckShape(op, "ious", ious, tensor.Shape{N, M}); err != nil {
		return nil, nil, cpu.fail(op, err)
	}
	if err := vision.CheckDevice(op, cpu.device, grad, ious); err != nil {
		return nil, nil, cpu.fail(op, err)
	}

	grad1, err := cpu.alloc(op, tensor.Shape{N, 4})
	if err != nil {
		return nil, nil, err
	}
	grad2, err := cpu.alloc(op, tensor.Shape{M, 4})
	if err != nil {
		return nil, nil, err
	}

	a, b := boxes1.AsFloat32(), boxes2.AsFloat32()
	g, iou := grad.AsFloat32(), ious.AsFloat32()
	acc1 := cpu.accumulator(grad1.AsFloat32())
	acc2 := cpu.accumulator(grad2.AsFloat32())

	cpu.launch(op, N*M, func(k int) {
		if g[k] == 0 {
			return
		}
		i, j := k/M, k%M
		ga, gb, ok := iouPairGrad(vision.BoxAt(a, 4, i), vision.BoxAt(b, 4, j), iou[k], g[k])
		if !ok {
			return
		}
		for c := 0; c < 4; c++ {
			acc1.Add(i*4+c, ga[c])
			acc2.Add(j*4+c, gb[c])
		}
	})
	return grad1, grad2, nil
}

// iouPairGrad returns g * dIoU/d(a) and g * dIoU/d(b) in (x1, y1, x2, y2) order.
func iouPairGrad(a, b vision.Box, iou, g float32) (ga, gb [4]float32, ok bool) {
	iw := min(a.X2, b.X2) - max(a.X1, b.X1)
	ih := min(a.Y2, b.Y2) - max(a.Y1, b.Y1)
	if iw <= 0 || ih <= 0 {
		return ga, gb, false
	}
	areaA, areaB := a.Area(), b.Area()
	if areaA <= 0 || areaB <= 0 {
		return ga, gb, false
	}
	union := areaA + areaB - iw*ih
	if union <= 0 {
		return ga, gb, false
	}

	dI := g * (1 + iou) / union
	dArea := -g * iou / union
	aw, ah := a.X2-a.X1, a.Y2-a.Y1
	bw, bh := b.X2-b.X1, b.Y2-b.Y1

	// Area terms.
	ga = [4]float32{-dArea * ah, -dArea * aw, dArea * ah, dArea * aw}
	gb = [4]float32{-dArea * bh, -dArea * bw, dArea * bh, dArea * bw}

	// Intersection terms: left/top edges are max(), right/bottom are min().
	if a.X1 >= b.X1 {
		ga[0] -= dI * ih
	} else {
		gb[0] -= dI * ih
	}
	if a.Y1 >= b.Y1 {
		ga[1] -= dI * iw
	} else {
		gb[1] -= dI * iw
	}
	if a.X2 <= b.X2 {
		ga[2] += dI * ih
	} else {
		gb[2] += dI * ih
	}
	if a.Y2 <= b.Y2 {
		ga[3] += dI * iw
	} else {
		gb[3] += dI * iw
	}
	return ga, gb, true
}

func (cpu *CPUBackend) checkIoUInputs(op string, boxes1, boxes2 *tensor.RawTensor) error {
	if err := vision.CheckBoxes(op, "boxes1", boxes1, 4); err != nil {
		return cpu.fail(op, err)
	}
	if err := vision.CheckBoxes(op, "boxes2", boxes2, 4); err != nil {
		return cpu.fail(op, err)
	}
	if err := vision.CheckDevice(op, cpu.device, boxes1, boxes2); err != nil {
		return cpu.fail(op, err)
	}
	return nil
}
