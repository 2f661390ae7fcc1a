// Package cpu implements the vision operators on the CPU.
//
// Each operator is a launch of independent units of work, one per output element,
// spread over goroutines by internal/parallel. Backward kernels scatter into a
// shared gradient buffer through a parallel.Accumulator.
package cpu

import (
	"log/slog"

	"github.com/born-ml/vision/internal/envconfig"
	"github.com/born-ml/vision/internal/logutil"
	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/vision"
)

// CPUBackend runs the vision operators on goroutines.
type CPUBackend struct {
	device     tensor.Device
	par        parallel.Config
	accumulate string
	logger     *slog.Logger
}

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithParallel overrides the launch configuration.
func WithParallel(cfg parallel.Config) Option {
	return func(cpu *CPUBackend) { cpu.par = cfg }
}

// WithAccumulate selects the gradient accumulation strategy
// (envconfig.AccumulateAtomic or envconfig.AccumulateStriped).
func WithAccumulate(mode string) Option {
	return func(cpu *CPUBackend) { cpu.accumulate = mode }
}

// WithLogger sets the logger used for launch tracing and validation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(cpu *CPUBackend) { cpu.logger = logger }
}

// New creates a new CPU backend configured from the environment.
func New(opts ...Option) *CPUBackend {
	cpu := &CPUBackend{
		device:     tensor.CPU,
		par:        parallel.DefaultConfig(),
		accumulate: envconfig.Accumulate,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cpu)
	}
	return cpu
}

var (
	_ vision.Backend           = (*CPUBackend)(nil)
	_ vision.DeformableBackend = (*CPUBackend)(nil)
)

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// launch runs fn once per unit and traces the launch.
func (cpu *CPUBackend) launch(op string, units int, fn func(i int)) {
	logutil.Trace(cpu.logger, "launch", "op", op, "units", units, "workers", cpu.par.NumWorkers)
	parallel.For(units, fn, cpu.par)
}

// launchDynamic is launch with work stealing, for units of uneven cost.
func (cpu *CPUBackend) launchDynamic(op string, units int, fn func(i int)) {
	logutil.Trace(cpu.logger, "launch", "op", op, "units", units, "workers", cpu.par.NumWorkers, "dynamic", true)
	parallel.ForDynamic(units, fn, cpu.par)
}

func (cpu *CPUBackend) accumulator(buf []float32) parallel.Accumulator {
	return parallel.NewAccumulator(buf, cpu.accumulate)
}

// fail logs a rejected call at debug level and returns err unchanged.
func (cpu *CPUBackend) fail(op string, err error) error {
	cpu.logger.Debug("rejected call", "op", op, "error", err)
	return err
}

// alloc requests a zeroed float32 output.
func (cpu *CPUBackend) alloc(op string, shape tensor.Shape) (*tensor.RawTensor, error) {
	out, err := tensor.NewRaw(shape, tensor.Float32, cpu.device)
	if err != nil {
		return nil, cpu.fail(op, wrapOp(op, err))
	}
	return out, nil
}
