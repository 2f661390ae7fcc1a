// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the raw tensor type the vision operators consume.
//
// # Overview
//
// A RawTensor is a contiguous row-major buffer with a shape, a data type and the
// device it lives on. Operators borrow their inputs for the duration of a call
// and return freshly allocated outputs.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/vision/backend/cpu"
//	    "github.com/born-ml/vision/detection"
//	    "github.com/born-ml/vision/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    features, _ := tensor.NewRaw(tensor.Shape{1, 256, 50, 50}, tensor.Float32, tensor.CPU)
//	    rois, _ := tensor.FromFloat32([]float32{0, 10, 10, 120, 80}, tensor.Shape{1, 5}, tensor.CPU)
//
//	    pooled, err := backend.ROIAlign(features, rois, detection.PoolConfig{
//	        ScaleH: 0.0625, ScaleW: 0.0625, PooledH: 7, PooledW: 7, SamplingRatio: 2,
//	    })
//	}
//
// # Memory
//
// FromFloat32 wraps a caller slice without copying; the caller must keep it alive
// and unmodified while an operator reads it. Allocation is bounded by
// BORN_MAX_ALLOC when set; exceeding it fails with ErrAllocation.
package tensor
