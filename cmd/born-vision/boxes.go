package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/born-ml/vision/detection"
	"github.com/born-ml/vision/tensor"
)

// boxFile is the JSON document read by the nms and iou commands.
//
//	{"format": "xywh", "boxes": [[0, 0, 10, 10], ...], "scores": [0.9, ...]}
type boxFile struct {
	Format string       `json:"format,omitempty"`
	Boxes  [][4]float32 `json:"boxes"`
	Scores []float32    `json:"scores,omitempty"`
}

func readBoxFile(path string) (*boxFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f boxFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(f.Boxes) == 0 {
		return nil, fmt.Errorf("%s: no boxes", path)
	}
	if f.Scores != nil && len(f.Scores) != len(f.Boxes) {
		return nil, fmt.Errorf("%s: %d scores for %d boxes", path, len(f.Scores), len(f.Boxes))
	}
	return &f, nil
}

// ltrb returns the boxes as a flat [N*4] slice of (x1, y1, x2, y2) rows.
func (f *boxFile) ltrb() ([]float32, error) {
	format := detection.LTRB
	if f.Format != "" {
		var err error
		if format, err = detection.ParseBoxFormat(f.Format); err != nil {
			return nil, err
		}
	}

	flat := make([]float32, 0, len(f.Boxes)*4)
	for _, b := range f.Boxes {
		flat = append(flat, b[:]...)
	}
	if format == detection.LTRB {
		return flat, nil
	}

	raw, err := tensor.FromFloat32(flat, tensor.Shape{len(f.Boxes), 4}, tensor.CPU)
	if err != nil {
		return nil, err
	}
	converted, err := detection.ConvertBoxes(raw, format, detection.LTRB)
	if err != nil {
		return nil, err
	}
	return converted.AsFloat32(), nil
}

// scored returns the [N*5] (x1, y1, x2, y2, score) rows NMS consumes.
func (f *boxFile) scored() ([]float32, error) {
	if f.Scores == nil {
		return nil, fmt.Errorf("nms needs a score per box")
	}
	flat, err := f.ltrb()
	if err != nil {
		return nil, err
	}
	out := make([]float32, 0, len(f.Boxes)*5)
	for i, s := range f.Scores {
		out = append(out, flat[i*4:i*4+4]...)
		out = append(out, s)
	}
	return out, nil
}
