package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/pagelens/pagelens/internal/errors"
	"github.com/pagelens/pagelens/pkg/progress"
)

// timeoutPayload is the body of the timeout marker event.
type timeoutPayload struct {
	Message string `json:"message"`
}

// Progress streams a task's progress records as server-sent events.
//
// The stream carries plain data frames for changed snapshots and named
// terminal events: "complete" after the final snapshot, or "timeout"
// when the record has not changed within the inactivity budget. Job
// failures are not reflected on the stream; abnormal jobs terminate via
// the timeout marker only.
func (d *Deps) Progress(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if taskID == "" {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.ErrorBody{
			Code:      apperrors.CodeValidation,
			Message:   "缺少任务 ID。",
			RequestID: apperrors.RequestIDFromContext(r.Context()),
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		apperrors.WriteError(w, http.StatusInternalServerError, apperrors.ErrorBody{
			Code:    apperrors.CodeInternal,
			Message: "streaming unsupported",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range d.Registry.Watch(r.Context(), taskID) {
		switch ev.Type {
		case progress.EventSnapshot:
			writeSSE(w, "", ev.Record)
		case progress.EventComplete:
			writeSSE(w, "complete", ev.Record)
		case progress.EventTimeout:
			writeSSE(w, "timeout", timeoutPayload{Message: "连接超时"})
		}
		flusher.Flush()
	}
}

// writeSSE emits one server-sent event frame. An empty event name
// produces a bare data frame.
func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
