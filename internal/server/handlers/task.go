package handlers

import (
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/pagelens/pagelens/internal/errors"
)

// TaskResponse is the /api/task/create payload.
type TaskResponse struct {
	TaskID string `json:"taskId"`
}

// CreateTask issues a task id and registers its progress record in the
// pending stage.
func (d *Deps) CreateTask(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	if err := d.Registry.Create(id); err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TaskResponse{TaskID: id})
}
