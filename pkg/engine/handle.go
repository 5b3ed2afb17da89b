package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/observability"
	"github.com/pagelens/pagelens/pkg/ocr"
)

// Handle owns the shared engine for the lifetime of the process.
//
// It enforces two disciplines: the engine is loaded exactly once, and
// at most one inference call executes at any instant. Requests arriving
// before the load has completed observe ErrNotReady instead of blocking.
type Handle struct {
	engine Engine

	// gate serializes inference. Held for the duration of one page's
	// recognition call. Waiters acquire in the order the runtime's
	// mutex grants; there is no priority or preemption.
	gate sync.Mutex

	loadMu sync.Mutex
	loaded atomic.Bool
}

// NewHandle wraps an engine in a process-wide handle.
func NewHandle(e Engine) *Handle {
	return &Handle{engine: e}
}

// Load performs the one-time engine initialization. Concurrent callers
// block on the same load; once any load has succeeded, subsequent calls
// are no-ops.
func (h *Handle) Load(ctx context.Context, opts LoadOptions) error {
	h.loadMu.Lock()
	defer h.loadMu.Unlock()

	if h.loaded.Load() {
		return nil
	}

	start := time.Now()
	if err := h.engine.Load(ctx, opts); err != nil {
		return &EngineError{Op: "Load", Err: err}
	}
	h.loaded.Store(true)
	observability.ServerLogger.Info("Engine loaded",
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Loaded reports whether the one-time load has completed.
func (h *Handle) Loaded() bool {
	return h.loaded.Load()
}

// Recognize runs exactly one page through the engine under the gate and
// returns the raw model text.
//
// The mode key is resolved before any engine work: an unknown key fails
// without touching the gate. No retries; failures propagate.
func (h *Handle) Recognize(ctx context.Context, modeKey, prompt, imagePath, outputDir string) (string, error) {
	if !h.loaded.Load() {
		return "", ErrNotReady
	}

	mode, ok := ocr.Lookup(modeKey)
	if !ok {
		return "", &EngineError{Op: "Recognize", Err: ErrInvalidMode}
	}

	h.gate.Lock()
	defer h.gate.Unlock()

	raw, err := h.engine.Infer(ctx, InferRequest{
		Prompt:    prompt,
		ImagePath: imagePath,
		OutputDir: outputDir,
		Mode:      mode,
	})
	if err != nil {
		return "", &EngineError{Op: "Infer", Err: err}
	}
	if strings.TrimSpace(raw) == "" {
		return "", &EngineError{Op: "Infer", Err: ErrEmptyOutput}
	}
	return raw, nil
}
