// Package engine defines the recognition engine collaborator and the
// process-wide serialization gate in front of it.
//
// The engine itself (model weights, tokenization, accelerator use) is
// external to this service and consumed through the Engine interface.
// Exactly one inference call may execute at any instant, system-wide;
// the Handle enforces that.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/pagelens/pagelens/pkg/ocr"
)

// Sentinel errors for engine operations.
var (
	// ErrNotReady indicates the engine has not completed its one-time load.
	ErrNotReady = errors.New("engine not loaded")

	// ErrInvalidMode indicates the requested mode key is unknown.
	ErrInvalidMode = errors.New("unknown recognition mode")

	// ErrEmptyOutput indicates the engine returned no output.
	ErrEmptyOutput = errors.New("engine returned empty output")

	// ErrUnavailable indicates the engine backend could not be reached.
	ErrUnavailable = errors.New("engine unavailable")
)

// LoadOptions carries the opaque hints passed to the engine loader.
type LoadOptions struct {
	// ModelDir overrides the engine's model directory, if non-empty.
	ModelDir string

	// AttnImpl is the attention-implementation hint, passed through
	// without interpretation.
	AttnImpl string
}

// InferRequest describes one page's recognition call.
type InferRequest struct {
	Prompt    string
	ImagePath string

	// OutputDir is scratch space the engine may write intermediate
	// artifacts into. Owned by the job's workspace.
	OutputDir string

	Mode ocr.ModeConfig
}

// Engine is the narrow interface to the recognition backend.
//
// Implementations are not required to be safe for concurrent Infer
// calls; the Handle serializes access.
type Engine interface {
	// Load performs the engine's one-time initialization. Blocking.
	Load(ctx context.Context, opts LoadOptions) error

	// Infer runs one page through the engine and returns raw text.
	Infer(ctx context.Context, req InferRequest) (string, error)
}

// EngineError wraps engine failures with operation context.
type EngineError struct {
	// Op is the operation that failed (e.g., "Load", "Infer").
	Op string

	// Err is the underlying error.
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsNotReady reports whether err indicates the engine has not loaded.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

// IsInvalidMode reports whether err indicates an unknown mode key.
func IsInvalidMode(err error) bool {
	return errors.Is(err, ErrInvalidMode)
}

// IsEmptyOutput reports whether err indicates the engine produced nothing.
func IsEmptyOutput(err error) bool {
	return errors.Is(err, ErrEmptyOutput)
}
