// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package detection

import (
	"github.com/born-ml/vision/internal/vision"
	"github.com/born-ml/vision/tensor"
)

// Backend runs the region and box operators.
type Backend = vision.Backend

// DeformableBackend runs the deformable sampler family.
type DeformableBackend = vision.DeformableBackend

// DeformGrads holds the gradients of a deformable convolution.
type DeformGrads = vision.DeformGrads

// PoolConfig parameterizes ROIAlign and PSROIAlign.
type PoolConfig = vision.PoolConfig

// DeformConfig parameterizes the deformable sampler family.
type DeformConfig = vision.DeformConfig

// Box is an axis-aligned (x1, y1, x2, y2) box.
type Box = vision.Box

// BoxFormat names a 4-value box encoding.
type BoxFormat = vision.BoxFormat

// Box formats.
const (
	LTRB   = vision.LTRB
	XYWH   = vision.XYWH
	CXCYWH = vision.CXCYWH
)

// Error taxonomy.
var (
	ErrShapeMismatch    = vision.ErrShapeMismatch
	ErrDeviceMismatch   = vision.ErrDeviceMismatch
	ErrInvalidParameter = vision.ErrInvalidParameter
	ErrAllocation       = vision.ErrAllocation
)

// ConvertBoxes re-encodes the last four columns of boxes from one format to another.
func ConvertBoxes(boxes *tensor.RawTensor, from, to BoxFormat) (*tensor.RawTensor, error) {
	return vision.ConvertBoxes(boxes, from, to)
}

// ParseBoxFormat parses "ltrb", "xywh" or "cxcywh".
func ParseBoxFormat(s string) (BoxFormat, error) {
	return vision.ParseBoxFormat(s)
}

// GreedyNMS is the serial reference for Backend.NMS.
func GreedyNMS(boxes []Box, scores []float32, threshold float32) []int {
	return vision.GreedyNMS(boxes, scores, threshold)
}
