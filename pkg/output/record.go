// Package output provides JSONL output for CLI recognition runs.
//
// Output is structured as typed record envelopes containing progress
// updates, per-page results, errors, and a final summary. Each line is
// a self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: pagelens.<type>.v<version>
const (
	// TypeProgress identifies progress update records.
	TypeProgress = "pagelens.progress.v1"

	// TypePage identifies per-page result records.
	TypePage = "pagelens.page.v1"

	// TypeError identifies error records.
	TypeError = "pagelens.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "pagelens.summary.v1"
)

// ErrWriterClosed indicates a write after Close.
var ErrWriterClosed = errors.New("writer is closed")

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "pagelens.page.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this recognition job.
	JobID string `json:"job_id"`

	// Mode is the recognition mode key in effect.
	Mode string `json:"mode"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ProgressRecord is the data payload for progress updates.
type ProgressRecord struct {
	Stage   string `json:"stage"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// PageRecord is the data payload for one recognized page.
type PageRecord struct {
	// PageIndex is the zero-based source page position.
	PageIndex int `json:"page_index"`

	// Text is the cleaned recognition text.
	Text string `json:"text"`

	// DurationMs is the page's inference duration.
	DurationMs float64 `json:"duration_ms"`

	// LayoutItems is the number of extracted layout regions.
	LayoutItems int `json:"layout_items"`
}

// ErrorRecord is the data payload for failures.
type ErrorRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SummaryRecord is the data payload for the final job summary.
type SummaryRecord struct {
	FileName   string  `json:"file_name"`
	FileSize   int64   `json:"file_size"`
	Pages      int     `json:"pages"`
	DurationMs float64 `json:"duration_ms"`
}

// WriteError wraps output failures with operation context.
type WriteError struct {
	// Op is the step that failed (e.g., "marshal_data", "write").
	Op string

	// Err is the underlying error.
	Err error
}

func (e *WriteError) Error() string {
	return "output " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
