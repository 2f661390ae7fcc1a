package cpu

import (
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/vision"
)

// deformLayout addresses the tensors of one deformable launch covering images
// [batchStart, batchStart+imgs).
//
//	input   [N, C, H, W]
//	offset  [N, G*2*kh*kw, Hout, Wout]   (dy, dx) of tap t at channels 2t, 2t+1 of group g
//	mask    [N, G*kh*kw, Hout, Wout]
//	columns [C*kh*kw, imgs*Hout*Wout]    row c*kh*kw + t, column (b*Hout + h)*Wout + w
type deformLayout struct {
	vision.DeformGeometry
	cfg        vision.DeformConfig
	batchStart int
	imgs       int
}

func newDeformLayout(g vision.DeformGeometry, cfg vision.DeformConfig, batchStart int) deformLayout {
	return deformLayout{
		DeformGeometry: g,
		cfg:            cfg,
		batchStart:     batchStart,
		imgs:           cfg.Chunk(g.Batch, batchStart),
	}
}

func (l deformLayout) spatial() int { return l.OutH * l.OutW }

// colCount is the number of columns in the chunk's column buffer.
func (l deformLayout) colCount() int { return l.imgs * l.spatial() }

// plane returns the flat offset of the (image, channel) plane of the input.
func (l deformLayout) plane(img, c int) int {
	return ((l.batchStart+img)*l.Channels + c) * l.Height * l.Width
}

// offsetIndex returns the index of the dy entry of tap t; dx follows one plane later.
func (l deformLayout) offsetIndex(img, group, t, h, w int) int {
	taps := l.cfg.Taps()
	ch := (l.batchStart+img)*l.cfg.DeformableGroups*2*taps + group*2*taps + 2*t
	return (ch*l.OutH+h)*l.OutW + w
}

func (l deformLayout) maskIndex(img, group, t, h, w int) int {
	taps := l.cfg.Taps()
	ch := (l.batchStart+img)*l.cfg.DeformableGroups*taps + group*taps + t
	return (ch*l.OutH+h)*l.OutW + w
}

// point returns the sampling position of tap t at output (h, w) before the
// learned offset is added.
func (l deformLayout) point(t, h, w int) (float32, float32) {
	i, j := t/l.cfg.KernelW, t%l.cfg.KernelW
	y := h*l.cfg.StrideH - l.cfg.PadH + i*l.cfg.DilationH
	x := w*l.cfg.StrideW - l.cfg.PadW + j*l.cfg.DilationW
	return float32(y), float32(x)
}

// DeformIm2Col unrolls the deformably sampled receptive fields of the images
// starting at batchStart into a column buffer.
//
// Input shape:   [N, C, H, W]
// Offset shape:  [N, G*2*kh*kw, Hout, Wout]
// Mask shape:    [N, G*kh*kw, Hout, Wout], or nil for the plain variant
// Output shape:  [C*kh*kw, P*Hout*Wout] with P = min(ParallelImgs, N-batchStart)
//
// Entry (c*kh*kw + i*kw + j, (b*Hout + h)*Wout + w) is the bilinear sample of
// channel c at (h*stride - pad + i*dilation + dy, w*stride - pad + j*dilation + dx),
// scaled by the mask when one is given. One unit of work per (channel, image,
// output position).
func (cpu *CPUBackend) DeformIm2Col(input, offset, mask *tensor.RawTensor, batchStart int, cfg vision.DeformConfig) (*tensor.RawTensor, error) {
	const op = "deform_im2col"
	g, err := vision.DeformShapes(op, input, offset, mask, cfg)
	if err != nil {
		return nil, cpu.fail(op, err)
	}
	if err := vision.CheckBatchStart(op, batchStart, g.Batch); err != nil {
		return nil, cpu.fail(op, err)
	}
	if err := vision.CheckDevice(op, cpu.device, input, offset, mask); err != nil {
		return nil, cpu.fail(op, err)
	}

	l := newDeformLayout(g, cfg, batchStart)
	columns, err := cpu.alloc(op, g.Columns(cfg, l.imgs))
	if err != nil {
		return nil, err
	}
	cpu.deformIm2Col(l, input.AsFloat32(), offset.AsFloat32(), maskData(mask), columns.AsFloat32())
	return columns, nil
}

func (cpu *CPUBackend) deformIm2Col(l deformLayout, input, offset, mask, columns []float32) {
	taps := l.cfg.Taps()
	spatial := l.spatial()
	cols := l.colCount()

	cpu.launch("deform_im2col", l.Channels*cols, func(k int) {
		c, col := k/cols, k%cols
		b, pos := col/spatial, col%spatial
		h, w := pos/l.OutW, pos%l.OutW
		group := c / l.ChannelsPerGroup
		plane := input[l.plane(b, c) : l.plane(b, c)+l.Height*l.Width]

		for t := 0; t < taps; t++ {
			oi := l.offsetIndex(b, group, t, h, w)
			y, x := l.point(t, h, w)
			v := bilinear(plane, l.Height, l.Width, y+offset[oi], x+offset[oi+spatial])
			if mask != nil {
				v *= mask[l.maskIndex(b, group, t, h, w)]
			}
			columns[(c*taps+t)*cols+col] = v
		}
	})
}

func maskData(mask *tensor.RawTensor) []float32 {
	if mask == nil {
		return nil
	}
	return mask.AsFloat32()
}
