// Package envconfig reads process-level execution settings from the environment.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

var (
	// Set via BORN_DEBUG in the environment
	Debug bool
	// Set via BORN_NUM_THREADS in the environment
	NumThreads int
	// Set via BORN_MIN_CHUNK in the environment
	MinChunk int
	// Set via BORN_MAX_ALLOC in the environment, 0 means unlimited
	MaxAlloc uint64
	// Set via BORN_ACCUMULATE in the environment
	Accumulate string
)

// Accumulation modes accepted by BORN_ACCUMULATE.
const (
	AccumulateAtomic  = "atomic"
	AccumulateStriped = "striped"
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"BORN_DEBUG":       {"BORN_DEBUG", Debug, "Show additional debug information (e.g. BORN_DEBUG=1)"},
		"BORN_NUM_THREADS": {"BORN_NUM_THREADS", NumThreads, "Worker goroutines per launch (default: number of CPUs)"},
		"BORN_MIN_CHUNK":   {"BORN_MIN_CHUNK", MinChunk, "Units of work below which a launch runs sequentially (default 64)"},
		"BORN_MAX_ALLOC":   {"BORN_MAX_ALLOC", MaxAlloc, "Largest output or column buffer in bytes (default unlimited)"},
		"BORN_ACCUMULATE":  {"BORN_ACCUMULATE", Accumulate, "Gradient accumulation strategy: atomic or striped (default atomic)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	Debug = false
	NumThreads = runtime.NumCPU()
	MinChunk = 64
	MaxAlloc = 0
	Accumulate = AccumulateAtomic

	if debug := clean("BORN_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	if n := clean("BORN_NUM_THREADS"); n != "" {
		val, err := strconv.Atoi(n)
		if err != nil || val <= 0 {
			slog.Error("invalid setting must be greater than zero", "BORN_NUM_THREADS", n, "error", err)
		} else {
			NumThreads = val
		}
	}

	if c := clean("BORN_MIN_CHUNK"); c != "" {
		val, err := strconv.Atoi(c)
		if err != nil || val < 0 {
			slog.Error("invalid setting, ignoring", "BORN_MIN_CHUNK", c, "error", err)
		} else {
			MinChunk = val
		}
	}

	if limit := clean("BORN_MAX_ALLOC"); limit != "" {
		val, err := strconv.ParseUint(limit, 10, 64)
		if err != nil {
			slog.Error("invalid setting, ignoring", "BORN_MAX_ALLOC", limit, "error", err)
		} else {
			MaxAlloc = val
		}
	}

	if mode := strings.ToLower(clean("BORN_ACCUMULATE")); mode != "" {
		switch mode {
		case AccumulateAtomic, AccumulateStriped:
			Accumulate = mode
		default:
			slog.Error("invalid setting, ignoring", "BORN_ACCUMULATE", mode)
		}
	}
}
