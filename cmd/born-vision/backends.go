package main

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/born-ml/vision/backend/cpu"
	"github.com/born-ml/vision/detection"
)

// backendFactory opens a backend and returns the function that releases it.
type backendFactory func(logger *slog.Logger) (detection.Backend, func(), error)

var backends = map[string]backendFactory{
	"cpu": func(logger *slog.Logger) (detection.Backend, func(), error) {
		return cpu.New(cpu.WithLogger(logger)), func() {}, nil
	},
}

func backendNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func openBackend(name string, logger *slog.Logger) (detection.Backend, func(), error) {
	factory, ok := backends[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown backend %q (available: %s)", name, strings.Join(backendNames(), ", "))
	}
	return factory(logger)
}
