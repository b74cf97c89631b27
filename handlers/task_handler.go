package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"taskdeploy-backend/apperr"
	"taskdeploy-backend/models"
)

// Admitter validates raw submissions.
type Admitter interface {
	Admit(raw map[string]json.RawMessage) (models.TaskRequest, error)
}

// Runner executes an admitted round.
type Runner interface {
	Run(ctx context.Context, req models.TaskRequest) apperr.Result[models.ResultRecord]
}

// TaskHandler serves the task submission endpoint.
type TaskHandler struct {
	*BaseHandler
	gate   Admitter
	runner Runner
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(gate Admitter, runner Runner) *TaskHandler {
	return &TaskHandler{
		BaseHandler: NewBaseHandler(),
		gate:        gate,
		runner:      runner,
	}
}

// HandleTask admits a submission and runs the requested round to completion
// before responding.
// @Summary Run a task round
// @Description Round 1 creates and publishes the project; round 2 updates it.
// @Tags Tasks
// @Accept json
// @Produce json
// @Param request body models.TaskRequest true "task submission"
// @Success 200 {object} models.TaskResponse
// @Failure 400 {object} models.TaskErrorResponse
// @Failure 401 {object} models.TaskErrorResponse
// @Failure 500 {object} models.TaskErrorResponse
// @Router /handle_task [post]
func (h *TaskHandler) HandleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendJSON(w, http.StatusMethodNotAllowed, models.TaskErrorResponse{Error: "Method not allowed"})
		return
	}

	var raw map[string]json.RawMessage
	if err := h.parseJSON(r, &raw); err != nil || raw == nil {
		h.sendTaskError(w, apperr.Validation("Request body must be a JSON object"), "")
		return
	}

	req, err := h.gate.Admit(raw)
	if err != nil {
		e := apperr.As(err)
		if e.Kind == apperr.KindAuth {
			log.Printf("handle_task: rejected submission with invalid secret")
		}
		h.sendTaskError(w, e, "")
		return
	}

	res := h.runner.Run(r.Context(), req)
	if !res.IsSuccess() {
		h.sendTaskError(w, res.Err(), fmt.Sprintf("Round %d failed: ", req.Round))
		return
	}
	h.sendJSON(w, http.StatusOK, models.TaskResponse{
		Message: fmt.Sprintf("Round %d completed successfully", req.Round),
		Result:  res.Value(),
	})
}

func (h *TaskHandler) sendTaskError(w http.ResponseWriter, e *apperr.Error, prefix string) {
	status := e.HTTPStatus()
	msg := e.Error()
	if status == http.StatusInternalServerError {
		msg = prefix + msg
	}
	h.sendJSON(w, status, models.TaskErrorResponse{
		Error:  msg,
		Kind:   string(e.Kind),
		Fields: e.Fields,
	})
}
