// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package detection defines the object-detection operator contracts.
//
// # Operators
//
//   - ROIAlign / PSROIAlign: bilinear region pooling, plain and position-sensitive
//   - Deformable im2col / col2im / col2im_coord, plain and modulated
//   - Pairwise IoU and its gradient
//   - Bitmask non-maximum suppression
//
// Backends (see backend/cpu and backend/webgpu) implement Backend; the CPU backend
// also implements DeformableBackend.
//
// # Errors
//
// Every operator validates its arguments before launching any work. Failures wrap
// one of ErrShapeMismatch, ErrDeviceMismatch, ErrInvalidParameter or
// ErrAllocation and can be matched with errors.Is:
//
//	_, err := backend.NMS(boxes, 1.5)
//	if errors.Is(err, detection.ErrInvalidParameter) {
//	    // threshold outside [0, 1]
//	}
//
// # Sampling Conventions
//
// A bilinear sample at (y, x) contributes only when -1 < y < H and -1 < x < W.
// Within that window, neighbours outside the plane read as zero. Region boxes are
// (batch, x1, y1, x2, y2) scaled by the spatial scale, and are at least one
// feature pixel on each side. IoU has no +1 pixel term; NMS suppresses a box when
// its IoU with a kept box is strictly greater than the threshold.
package detection
