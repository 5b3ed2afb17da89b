package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/pagelens/pagelens/internal/errors"
	"github.com/pagelens/pagelens/pkg/ocr"
)

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status      string   `json:"status"`
	ModelLoaded bool     `json:"modelLoaded"`
	Modes       []string `json:"modes"`
}

// VersionResponse is the /version payload.
type VersionResponse struct {
	Version string `json:"version"`
}

// Health reports service status and whether the engine has loaded.
// The endpoint is healthy even before the model load completes, so
// deploy tooling can distinguish liveness from readiness.
func (d *Deps) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		ModelLoaded: d.Handle.Loaded(),
		Modes:       ocr.ModeKeys(),
	})
}

// Liveness always succeeds while the process serves traffic.
func (d *Deps) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness succeeds only once the engine's one-time load has finished.
func (d *Deps) Readiness(w http.ResponseWriter, r *http.Request) {
	if !d.Handle.Loaded() {
		apperrors.WriteError(w, http.StatusServiceUnavailable, apperrors.ErrorBody{
			Code:      apperrors.CodeServiceUnavailable,
			Message:   "模型尚未加载完成。",
			RequestID: apperrors.RequestIDFromContext(r.Context()),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Version reports the build version.
func (d *Deps) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: d.BuildVersion})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
