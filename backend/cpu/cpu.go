// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"log/slog"

	internalcpu "github.com/born-ml/vision/internal/backend/cpu"
	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/detection"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Option configures a Backend.
type Option = internalcpu.Option

// ParallelConfig controls how launches are spread over goroutines.
type ParallelConfig = parallel.Config

// Compile-time check that Backend implements both operator contracts.
var (
	_ detection.Backend           = (*Backend)(nil)
	_ detection.DeformableBackend = (*Backend)(nil)
)

// New creates a new CPU backend configured from the BORN_* environment.
//
// Example:
//
//	import (
//	    "github.com/born-ml/vision/backend/cpu"
//	    "github.com/born-ml/vision/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New(cpu.WithParallel(cpu.ParallelConfig{Enabled: true, NumWorkers: 8, MinChunkSize: 64}))
//	    boxes, _ := tensor.FromFloat32(data, tensor.Shape{n, 5}, tensor.CPU)
//	    keep, err := backend.NMS(boxes, 0.5)
//	}
func New(opts ...Option) *Backend {
	return internalcpu.New(opts...)
}

// WithParallel overrides the launch configuration.
func WithParallel(cfg ParallelConfig) Option {
	return internalcpu.WithParallel(cfg)
}

// WithAccumulate selects gradient accumulation: "atomic" (default) or "striped".
func WithAccumulate(mode string) Option {
	return internalcpu.WithAccumulate(mode)
}

// WithLogger sets the logger used for launch tracing and rejected calls.
func WithLogger(logger *slog.Logger) Option {
	return internalcpu.WithLogger(logger)
}
