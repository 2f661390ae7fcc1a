package vision

import (
	"github.com/born-ml/vision/internal/tensor"
)

// DeformGeometry holds the sizes every deformable kernel derives from its inputs.
type DeformGeometry struct {
	Batch, Channels, Height, Width int
	OutH, OutW                     int
	ChannelsPerGroup               int
}

// Columns returns the column buffer shape for a chunk of imgs images.
func (g DeformGeometry) Columns(cfg DeformConfig, imgs int) tensor.Shape {
	return tensor.Shape{g.Channels * cfg.Taps(), imgs * g.OutH * g.OutW}
}

// DeformShapes validates input [N,C,H,W], offset [N,G*2*kh*kw,Hout,Wout] and,
// when present, mask [N,G*kh*kw,Hout,Wout] against cfg.
func DeformShapes(op string, input, offset, mask *tensor.RawTensor, cfg DeformConfig) (DeformGeometry, error) {
	if err := cfg.Validate(op); err != nil {
		return DeformGeometry{}, err
	}
	if err := CheckFeatureMap(op, "input", input); err != nil {
		return DeformGeometry{}, err
	}
	s := input.Shape()
	g := DeformGeometry{Batch: s[0], Channels: s[1], Height: s[2], Width: s[3]}

	if g.Channels%cfg.DeformableGroups != 0 {
		return DeformGeometry{}, paramErrorf(op, "%d deformable groups do not evenly divide %d channels",
			cfg.DeformableGroups, g.Channels)
	}
	g.ChannelsPerGroup = g.Channels / cfg.DeformableGroups

	g.OutH, g.OutW = cfg.OutputSize(g.Height, g.Width)
	if g.OutH <= 0 || g.OutW <= 0 {
		return DeformGeometry{}, shapeErrorf(op, "kernel %dx%d (dilation %dx%d, pad %dx%d) does not fit input %dx%d",
			cfg.KernelH, cfg.KernelW, cfg.DilationH, cfg.DilationW, cfg.PadH, cfg.PadW, g.Height, g.Width)
	}

	taps := cfg.Taps()
	want := tensor.Shape{g.Batch, cfg.DeformableGroups * 2 * taps, g.OutH, g.OutW}
	if err := CheckShape(op, "offset", offset, want); err != nil {
		return DeformGeometry{}, err
	}
	if mask != nil {
		want = tensor.Shape{g.Batch, cfg.DeformableGroups * taps, g.OutH, g.OutW}
		if err := CheckShape(op, "mask", mask, want); err != nil {
			return DeformGeometry{}, err
		}
	}
	return g, nil
}

// CheckBatchStart validates the first image of a chunked launch.
func CheckBatchStart(op string, batchStart, batch int) error {
	if batchStart < 0 || batchStart >= batch {
		return paramErrorf(op, "batch start %d outside batch of %d", batchStart, batch)
	}
	return nil
}
