package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/pagelens/pagelens/internal/errors"
	"github.com/pagelens/pagelens/internal/observability"
	"github.com/pagelens/pagelens/pkg/intake"
	"github.com/pagelens/pagelens/pkg/pipeline"
)

// multipartOverhead is slack added on top of the upload bound for the
// multipart framing and the small form fields.
const multipartOverhead = 1 << 20

// formMemoryLimit caps how much of the multipart form is buffered in
// memory; larger file parts spill to disk.
const formMemoryLimit = 8 << 20

// OCR runs one recognition job from a multipart form.
//
// Form fields: image (binary, required), mode, prompt, task_id. The
// exact upload bound is enforced by the intake's chunked copy; the
// request body is additionally capped so an oversize payload fails
// during form parsing instead of being spooled in full.
func (d *Deps) OCR(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(d.MaxImageMB * 1024 * 1024)
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(formMemoryLimit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apperrors.RespondWithError(w, r, intake.ErrSizeLimitExceeded)
			return
		}
		apperrors.RespondWithError(w, r, intake.ErrNoFilename)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		apperrors.RespondWithError(w, r, intake.ErrNoFilename)
		return
	}
	defer func() { _ = file.Close() }()

	req := pipeline.Request{
		Body:        file,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Mode:        r.FormValue("mode"),
		Prompt:      r.FormValue("prompt"),
		TaskID:      r.FormValue("task_id"),
	}

	result, err := d.Orchestrator.Run(r.Context(), req)
	if err != nil {
		observability.ServerLogger.Warn("Job failed",
			zap.String("file", header.Filename),
			zap.String("request_id", apperrors.RequestIDFromContext(r.Context())),
			zap.Error(err))
		apperrors.RespondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
