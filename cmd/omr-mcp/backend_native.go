//go:build !gocv

package main

import (
	"log/slog"

	"github.com/ironsheep/omr-mcp/internal/config"
	"github.com/ironsheep/omr-mcp/internal/vision"
)

const backendName = "native"

// newPrimitives returns the pure-Go backend. It has no fiducial detector, so
// marker detection fails until the binary is built with -tags gocv.
func newPrimitives(cfg config.Config, log *slog.Logger) (vision.Primitives, error) {
	log.Warn("built without gocv: marker detection is unavailable", "rebuild", "go build -tags gocv")
	return vision.NewNative(cfg.VisionParams()), nil
}
