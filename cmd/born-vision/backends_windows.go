//go:build windows

package main

import (
	"log/slog"

	"github.com/born-ml/vision/backend/webgpu"
	"github.com/born-ml/vision/detection"
)

func init() {
	backends["webgpu"] = func(logger *slog.Logger) (detection.Backend, func(), error) {
		b, err := webgpu.New(webgpu.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return b, b.Release, nil
	}
}
