package vision

import (
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

// BoxFormat names a 4-value box encoding.
type BoxFormat int

const (
	// LTRB is (x1, y1, x2, y2): left, top, right, bottom corners.
	LTRB BoxFormat = iota
	// XYWH is (x1, y1, width, height).
	XYWH
	// CXCYWH is (center x, center y, width, height).
	CXCYWH
)

func (f BoxFormat) String() string {
	switch f {
	case LTRB:
		return "ltrb"
	case XYWH:
		return "xywh"
	case CXCYWH:
		return "cxcywh"
	default:
		return fmt.Sprintf("BoxFormat(%d)", int(f))
	}
}

// ParseBoxFormat accepts the names returned by BoxFormat.String.
func ParseBoxFormat(s string) (BoxFormat, error) {
	switch s {
	case "ltrb":
		return LTRB, nil
	case "xywh":
		return XYWH, nil
	case "cxcywh":
		return CXCYWH, nil
	}
	return 0, fmt.Errorf("%w: unknown box format %q", ErrInvalidParameter, s)
}

// Box is an axis-aligned box in LTRB form.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// Area returns the box area, 0 for degenerate boxes.
func (b Box) Area() float32 {
	w, h := b.X2-b.X1, b.Y2-b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Intersection returns the overlap area of a and b.
func (b Box) Intersection(o Box) float32 {
	w := min(b.X2, o.X2) - max(b.X1, o.X1)
	h := min(b.Y2, o.Y2) - max(b.Y1, o.Y1)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU returns intersection over union; 0 when the union is empty.
func (b Box) IoU(o Box) float32 {
	inter := b.Intersection(o)
	if inter <= 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// BoxAt reads row i of a [N, >=4] float32 box slice with the given row width.
func BoxAt(data []float32, width, i int) Box {
	row := data[i*width : i*width+4]
	return Box{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3]}
}

func toLTRB(v [4]float32, f BoxFormat) [4]float32 {
	switch f {
	case XYWH:
		return [4]float32{v[0], v[1], v[0] + v[2], v[1] + v[3]}
	case CXCYWH:
		return [4]float32{v[0] - v[2]/2, v[1] - v[3]/2, v[0] + v[2]/2, v[1] + v[3]/2}
	}
	return v
}

func fromLTRB(v [4]float32, f BoxFormat) [4]float32 {
	switch f {
	case XYWH:
		return [4]float32{v[0], v[1], v[2] - v[0], v[3] - v[1]}
	case CXCYWH:
		return [4]float32{(v[0] + v[2]) / 2, (v[1] + v[3]) / 2, v[2] - v[0], v[3] - v[1]}
	}
	return v
}

// ConvertBoxes re-encodes the last four values of each row of boxes [N, 4+k]
// from one format to another into a new tensor. Leading columns (k > 0, e.g. a
// batch index) are copied unchanged.
func ConvertBoxes(boxes *tensor.RawTensor, from, to BoxFormat) (*tensor.RawTensor, error) {
	const op = "convert_boxes"
	if err := CheckRank(op, "boxes", boxes, 2); err != nil {
		return nil, err
	}
	n, width := boxes.Shape()[0], boxes.Shape()[1]
	if width < 4 {
		return nil, shapeErrorf(op, "boxes last dimension must be at least 4, got %v", boxes.Shape())
	}

	out, err := tensor.NewRaw(boxes.Shape(), tensor.Float32, boxes.Device())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	src, dst := boxes.AsFloat32(), out.AsFloat32()
	copy(dst, src)

	lead := width - 4
	for i := 0; i < n; i++ {
		row := dst[i*width+lead : (i+1)*width]
		v := fromLTRB(toLTRB([4]float32(row), from), to)
		copy(row, v[:])
	}
	return out, nil
}
