package cpu

import (
	"fmt"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/vision"
)

// DeformCol2Im scatters column gradients back onto the input image gradient.
//
// columns holds d(loss)/d(columns) for the chunk starting at batchStart, laid out
// as DeformIm2Col produces it. Each entry is multiplied by its mask value (when
// mask is non-nil) and distributed over the 4 bilinear neighbours of its sampling
// point. gradInput [N, C, H, W] is accumulated into, not overwritten, so chunks
// and repeated calls sum.
//
// One unit of work per column entry; writes go through the backend accumulator.
func (cpu *CPUBackend) DeformCol2Im(columns, offset, mask *tensor.RawTensor, batchStart int, gradInput *tensor.RawTensor, cfg vision.DeformConfig) error {
	const op = "deform_col2im"
	g, err := vision.DeformShapes(op, gradInput, offset, mask, cfg)
	if err != nil {
		return cpu.fail(op, err)
	}
	if err := vision.CheckBatchStart(op, batchStart, g.Batch); err != nil {
		return cpu.fail(op, err)
	}
	l := newDeformLayout(g, cfg, batchStart)
	if err := vision.CheckShape(op, "columns", columns, g.Columns(cfg, l.imgs)); err != nil {
		return cpu.fail(op, err)
	}
	if err := vision.CheckDevice(op, cpu.device, columns, offset, mask, gradInput); err != nil {
		return cpu.fail(op, err)
	}

	cpu.deformCol2Im(l, columns.AsFloat32(), offset.AsFloat32(), maskData(mask), cpu.accumulator(gradInput.AsFloat32()))
	return nil
}

func (cpu *CPUBackend) deformCol2Im(l deformLayout, columns, offset, mask []float32, acc parallel.Accumulator) {
	taps := l.cfg.Taps()
	spatial := l.spatial()
	cols := l.colCount()

	cpu.launch("deform_col2im", l.Channels*taps*cols, func(k int) {
		row, col := k/cols, k%cols
		grad := columns[k]
		if grad == 0 {
			return
		}
		c, t := row/taps, row%taps
		b, pos := col/spatial, col%spatial
		h, w := pos/l.OutW, pos%l.OutW
		group := c / l.ChannelsPerGroup

		if mask != nil {
			grad *= mask[l.maskIndex(b, group, t, h, w)]
		}
		oi := l.offsetIndex(b, group, t, h, w)
		y, x := l.point(t, h, w)
		base := l.plane(b, c)
		bilinearBackward(l.Height, l.Width, y+offset[oi], x+offset[oi+spatial], grad, func(i int, v float32) {
			acc.Add(base+i, v)
		})
	})
}

// DeformCol2ImCoord computes the offset gradient, and for the modulated variant
// the mask gradient, of the chunk starting at batchStart.
//
// For offset channel (g, t, dy|dx) at output (h, w) the gradient is
//
//	sum over channels c of group g: col[c*kh*kw + t] * mask * d(sample)/d(dy|dx)
//
// and the mask gradient of tap t is sum over c of col * sample. Outputs are written
// for the chunk's images only; the rest of gradOffset and gradMask is untouched.
// One unit of work per gradOffset element, so no accumulation is needed.
func (cpu *CPUBackend) DeformCol2ImCoord(columns, input, offset, mask *tensor.RawTensor, batchStart int,
	gradOffset, gradMask *tensor.RawTensor, cfg vision.DeformConfig,
) error {
	const op = "deform_col2im_coord"
	g, err := vision.DeformShapes(op, input, offset, mask, cfg)
	if err != nil {
		return cpu.fail(op, err)
	}
	if err := vision.CheckBatchStart(op, batchStart, g.Batch); err != nil {
		return cpu.fail(op, err)
	}
	l := newDeformLayout(g, cfg, batchStart)
	if err := vision.CheckShape(op, "columns", columns, g.Columns(cfg, l.imgs)); err != nil {
		return cpu.fail(op, err)
	}
	if err := vision.CheckShape(op, "grad_offset", gradOffset, offset.Shape()); err != nil {
		return cpu.fail(op, err)
	}
	switch {
	case mask == nil && gradMask != nil:
		return cpu.fail(op, fmt.Errorf("%s: %w: grad_mask given without mask", op, vision.ErrInvalidParameter))
	case mask != nil:
		if err := vision.CheckShape(op, "grad_mask", gradMask, mask.Shape()); err != nil {
			return cpu.fail(op, err)
		}
	}
	if err := vision.CheckDevice(op, cpu.device, columns, input, offset, mask, gradOffset, gradMask); err != nil {
		return cpu.fail(op, err)
	}

	var gm []float32
	if gradMask != nil {
		gm = gradMask.AsFloat32()
	}
	cpu.deformCol2ImCoord(l, columns.AsFloat32(), input.AsFloat32(), offset.AsFloat32(), maskData(mask),
		gradOffset.AsFloat32(), gm)
	return nil
}

func (cpu *CPUBackend) deformCol2ImCoord(l deformLayout, columns, input, offset, mask, gradOffset, gradMask []float32) {
	taps := l.cfg.Taps()
	spatial := l.spatial()
	cols := l.colCount()
	groups := l.cfg.DeformableGroups
	planeSize := l.Height * l.Width

	// Unit k covers offset channel k/spatial of the chunk, ordered (image, group, 2*taps).
	cpu.launch("deform_col2im_coord", l.imgs*groups*2*taps*spatial, func(k int) {
		ch, pos := k/spatial, k%spatial
		h, w := pos/l.OutW, pos%l.OutW
		b := ch / (groups * 2 * taps)
		group := ch / (2 * taps) % groups
		t, isX := ch%(2*taps)/2, ch%2 == 1

		oi := l.offsetIndex(b, group, t, h, w)
		y, x := l.point(t, h, w)
		y += offset[oi]
		x += offset[oi+spatial]

		m := float32(1)
		mi := l.maskIndex(b, group, t, h, w)
		if mask != nil {
			m = mask[mi]
		}

		col := b*spatial + pos
		var grad, gradM float32
		for c := group * l.ChannelsPerGroup; c < (group+1)*l.ChannelsPerGroup; c++ {
			cv := columns[(c*taps+t)*cols+col]
			if cv == 0 {
				continue
			}
			plane := input[l.plane(b, c) : l.plane(b, c)+planeSize]
			dy, dx := bilinearCoordGrad(plane, l.Height, l.Width, y, x)
			if isX {
				grad += cv * m * dx
			} else {
				grad += cv * m * dy
				if gradMask != nil {
					gradM += cv * bilinear(plane, l.Height, l.Width, y, x)
				}
			}
		}

		if isX {
			gradOffset[oi+spatial] = grad
			return
		}
		gradOffset[oi] = grad
		if gradMask != nil {
			gradMask[mi] = gradM
		}
	})
}
