//go:build gocv

package main

import (
	"log/slog"

	"github.com/ironsheep/omr-mcp/internal/config"
	"github.com/ironsheep/omr-mcp/internal/vision"
	"github.com/ironsheep/omr-mcp/internal/vision/opencv"
)

const backendName = "opencv"

func newPrimitives(cfg config.Config, log *slog.Logger) (vision.Primitives, error) {
	b, err := opencv.New(cfg.VisionParams())
	if err != nil {
		return nil, err
	}
	log.Debug("opencv backend", "dictionary", cfg.MarkerDictionary)
	return b, nil
}
