//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend for the detection operators.
//
// ROIAlign, PSROIAlign, pairwise IoU and the NMS suppression mask run as WGSL
// compute kernels. Backward passes run on the host.
//
// Example:
//
//	import (
//	    "github.com/born-ml/vision/backend/cpu"
//	    "github.com/born-ml/vision/backend/webgpu"
//	    "github.com/born-ml/vision/detection"
//	)
//
//	func main() {
//	    var backend detection.Backend = cpu.New()
//	    if webgpu.IsAvailable() {
//	        gpu, err := webgpu.New()
//	        if err != nil {
//	            log.Fatal(err)
//	        }
//	        defer gpu.Release()
//	        backend = gpu
//	    }
//	}
package webgpu

import (
	"log/slog"

	"github.com/born-ml/vision/detection"
	internalwebgpu "github.com/born-ml/vision/internal/backend/webgpu"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Option configures a Backend.
type Option = internalwebgpu.Option

// Compile-time check that Backend implements detection.Backend.
var _ detection.Backend = (*Backend)(nil)

// New creates a new WebGPU backend.
//
// Call Release() when done to free GPU resources. Returns an error if WebGPU
// initialization fails (e.g., no compatible GPU).
func New(opts ...Option) (*Backend, error) {
	return internalwebgpu.New(opts...)
}

// WithLogger sets the logger used for dispatch tracing and rejected calls.
func WithLogger(logger *slog.Logger) Option {
	return internalwebgpu.WithLogger(logger)
}

// IsAvailable checks if WebGPU is available on the current system.
//
// Useful for graceful fallback to the CPU backend when no GPU is present.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
