package handlers

import (
	"net/http"

	"github.com/pagelens/pagelens/pkg/ocr"
)

// ModesResponse is the /api/modes payload.
type ModesResponse struct {
	DefaultPrompt string                    `json:"defaultPrompt"`
	Modes         map[string]ocr.ModeConfig `json:"modes"`
	MaxImageMB    float64                   `json:"maxImageMb"`
}

// Modes lists the recognition mode table and upload bound.
func (d *Deps) Modes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModesResponse{
		DefaultPrompt: ocr.DefaultPrompt(),
		Modes:         ocr.Modes(),
		MaxImageMB:    d.MaxImageMB,
	})
}
