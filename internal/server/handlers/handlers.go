// Package handlers implements the HTTP endpoints of the recognition
// service.
package handlers

import (
	"github.com/pagelens/pagelens/pkg/engine"
	"github.com/pagelens/pagelens/pkg/pipeline"
	"github.com/pagelens/pagelens/pkg/progress"
)

// Deps carries the shared components the handlers operate on.
type Deps struct {
	// Handle is the process-wide engine handle.
	Handle *engine.Handle

	// Orchestrator drives recognition jobs.
	Orchestrator *pipeline.Orchestrator

	// Registry is the progress record table.
	Registry *progress.Registry

	// MaxImageMB is the configured upload bound, surfaced to clients.
	MaxImageMB float64

	// BuildVersion is the build version reported by /version.
	BuildVersion string
}
