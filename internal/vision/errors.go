package vision

import (
	"errors"
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

// Error taxonomy. Every check runs before a launch; callers match with errors.Is.
var (
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrDeviceMismatch   = errors.New("device mismatch")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrAllocation       = tensor.ErrAllocation
)

func shapeErrorf(op, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, ErrShapeMismatch, fmt.Sprintf(format, args...))
}

func paramErrorf(op, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, ErrInvalidParameter, fmt.Sprintf(format, args...))
}

// CheckRank fails with ErrShapeMismatch unless t has rank dims.
func CheckRank(op, name string, t *tensor.RawTensor, rank int) error {
	if t == nil {
		return fmt.Errorf("%s: %w: %s is nil", op, ErrInvalidParameter, name)
	}
	if len(t.Shape()) != rank {
		return shapeErrorf(op, "%s must be %dD, got %v", name, rank, t.Shape())
	}
	if t.DType() != tensor.Float32 {
		return fmt.Errorf("%s: %w: %s must be float32, got %s", op, ErrInvalidParameter, name, t.DType())
	}
	return nil
}

// CheckShape fails with ErrShapeMismatch unless t has exactly shape want.
func CheckShape(op, name string, t *tensor.RawTensor, want tensor.Shape) error {
	if err := CheckRank(op, name, t, len(want)); err != nil {
		return err
	}
	if !t.Shape().Equal(want) {
		return shapeErrorf(op, "%s must have shape %v, got %v", name, want, t.Shape())
	}
	return nil
}

// CheckFeatureMap validates an [N, C, H, W] feature map. The batch may be empty;
// channels and the spatial extent may not.
func CheckFeatureMap(op, name string, t *tensor.RawTensor) error {
	if err := CheckRank(op, name, t, 4); err != nil {
		return err
	}
	if s := t.Shape(); s[1] == 0 || s[2] == 0 || s[3] == 0 {
		return shapeErrorf(op, "%s must have non-empty channels and spatial extent, got %v", name, s)
	}
	return nil
}

// CheckBoxes validates a [N, width] box tensor. N may be zero.
func CheckBoxes(op, name string, t *tensor.RawTensor, width int) error {
	if err := CheckRank(op, name, t, 2); err != nil {
		return err
	}
	if t.Shape()[1] != width {
		return shapeErrorf(op, "%s last dimension must be %d, got %v", name, width, t.Shape())
	}
	return nil
}

// CheckDevice fails with ErrDeviceMismatch unless every non-nil operand is on device.
func CheckDevice(op string, device tensor.Device, operands ...*tensor.RawTensor) error {
	for _, t := range operands {
		if t != nil && t.Device() != device {
			return fmt.Errorf("%s: %w: operand on %s, backend runs on %s", op, ErrDeviceMismatch, t.Device(), device)
		}
	}
	return nil
}

// CheckCoResident fails with ErrDeviceMismatch unless all non-nil operands share one device.
func CheckCoResident(op string, operands ...*tensor.RawTensor) error {
	var first *tensor.RawTensor
	for _, t := range operands {
		if t == nil {
			continue
		}
		if first == nil {
			first = t
			continue
		}
		if t.Device() != first.Device() {
			return fmt.Errorf("%s: %w: operands on %s and %s", op, ErrDeviceMismatch, first.Device(), t.Device())
		}
	}
	return nil
}

// CheckROIs validates rois [R,5]: every batch index is an integer addressing one
// of batch images and every coordinate is finite.
func CheckROIs(op string, rois *tensor.RawTensor, batch int) error {
	if err := CheckBoxes(op, "rois", rois, 5); err != nil {
		return err
	}
	data := rois.AsFloat32()
	for r := 0; r < rois.Shape()[0]; r++ {
		b := data[r*5]
		if b < 0 || int(b) >= batch || float32(int(b)) != b {
			return paramErrorf(op, "roi %d has batch index %v, batch size is %d", r, b, batch)
		}
		for _, v := range data[r*5+1 : r*5+5] {
			if !finite(v) {
				return paramErrorf(op, "roi %d has non-finite coordinate %v", r, v)
			}
		}
	}
	return nil
}
