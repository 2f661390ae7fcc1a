// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for the detection operators.
//
// # Overview
//
// Every operator is a launch of independent units of work, one per output
// element, spread over goroutines:
//   - Pure Go implementation (no CGO)
//   - Atomic float accumulation for backward scatters
//   - Work stealing for adaptive ROI sampling, where bin cost varies
//   - Deformable convolution driven in ParallelImgs-sized chunks
//
// # Configuration
//
// Defaults come from the environment:
//   - BORN_NUM_THREADS: worker goroutines (default: number of CPUs)
//   - BORN_MIN_CHUNK: launches smaller than this run sequentially (default 64)
//   - BORN_ACCUMULATE: "atomic" or "striped" gradient accumulation
//   - BORN_MAX_ALLOC: allocation ceiling in bytes (0 = unlimited)
//   - BORN_DEBUG: log rejected calls at debug level
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Calls share no mutable state
// beyond the gradient buffers they were handed.
package cpu
