// Package parallel launches data-parallel kernels over goroutines.
//
// A launch runs one unit of work per output element. Units are independent; the
// launch returns once every unit has finished, which is the only barrier kernels
// rely on.
package parallel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/born-ml/vision/internal/envconfig"
	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns defaults from BORN_NUM_THREADS and BORN_MIN_CHUNK.
func DefaultConfig() Config {
	n := max(envconfig.NumThreads, 1)
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: envconfig.MinChunk,
	}
}

// Sequential returns a config that runs every launch on the calling goroutine.
func Sequential() Config {
	return Config{NumWorkers: 1}
}

func (cfg Config) sequential(n int) bool {
	return !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinChunkSize
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if cfg.sequential(n) {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForDynamic executes f(i) for i in [0, n), handing out indices by atomic work
// stealing. Use it when the cost per unit varies, e.g. ROIs of very different sizes.
func ForDynamic(n int, f func(i int), cfg Config) {
	if cfg.sequential(n) {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	workers := min(cfg.NumWorkers, n)
	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= n {
					return
				}
				f(i)
			}
		}()
	}
	wg.Wait()
}

// Chunks splits [0, n) into consecutive ranges of at most size items and runs
// f on each range, at most cfg.NumWorkers at a time. The first error cancels
// ctx for the remaining ranges and is returned.
func Chunks(ctx context.Context, n, size int, f func(ctx context.Context, start, end int) error, cfg Config) error {
	if n <= 0 {
		return nil
	}
	size = max(size, 1)

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Enabled && cfg.NumWorkers > 1 {
		g.SetLimit(cfg.NumWorkers)
	} else {
		g.SetLimit(1)
	}

	for start := 0; start < n; start += size {
		end := min(start+size, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return f(ctx, start, end)
		})
	}
	return g.Wait()
}
