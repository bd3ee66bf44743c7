package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"admintask/internal/core"

	"github.com/go-chi/chi/v5"
)

type scheduleTaskRequest struct {
	TaskName     string `json:"taskName"`
	Params       any    `json:"params"`
	DelayMS      int64  `json:"delayMs"`
	IntervalMS   *int64 `json:"intervalMs"`
	ParentTaskID *int64 `json:"parentTaskId"`
}

type invokeTaskRequest struct {
	Password string `json:"password"`
	TaskID   *int64 `json:"taskId"`
	TaskName string `json:"taskName"`
	Params   any    `json:"params"`
}

type taskResponse struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Params       json.RawMessage `json:"params,omitempty"`
	ParentTaskID *int64          `json:"parent_task_id,omitempty"`
	IntervalMS   *int64          `json:"interval_ms,omitempty"`
	ScheduledAt  string          `json:"scheduled_at"`
	Result       *string         `json:"result,omitempty"`
	Logs         json.RawMessage `json:"logs,omitempty"`
	RuntimeMS    *int64          `json:"runtime_ms,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

func (s *Server) handleScheduleTask(w http.ResponseWriter, r *http.Request) {
	var req scheduleTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.TaskName = strings.TrimSpace(req.TaskName)
	if req.TaskName == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "taskName is required")
		return
	}
	if req.DelayMS < 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "delayMs must be non-negative")
		return
	}
	if req.IntervalMS != nil && *req.IntervalMS <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "intervalMs must be positive")
		return
	}

	id, err := s.scheduler.ScheduleTask(r.Context(), core.ScheduleRequest{
		TaskName:     req.TaskName,
		Params:       req.Params,
		Delay:        time.Duration(req.DelayMS) * time.Millisecond,
		IntervalMS:   req.IntervalMS,
		ParentTaskID: req.ParentTaskID,
	})
	if err != nil {
		s.logger.Error("schedule task", "task", req.TaskName, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to schedule task")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// handleInvoke executes a task in-process on behalf of a caller that cannot
// run it directly. Authentication is the shared secret carried in the body.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if s.invokeSecret == "" || req.Password != s.invokeSecret {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid invocation password")
		return
	}
	if (req.TaskID == nil) == (req.TaskName == "") {
		writeError(w, http.StatusBadRequest, "invalid_input", "exactly one of taskId and taskName is required")
		return
	}

	var result core.TaskResult
	var err error
	if req.TaskID != nil {
		result, err = s.runner.Run(r.Context(), s.scheduler, core.ByID(*req.TaskID))
	} else {
		result, err = s.runner.RunNamed(r.Context(), s.scheduler, req.TaskName, req.Params)
	}
	if err != nil {
		s.logger.Error("invoke task", "err", err)
		writeError(w, http.StatusInternalServerError, "task_fault", "task execution faulted")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": string(result)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseTaskID(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid task id")
		return
	}
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		s.logger.Error("get task", "task_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, s.taskToResponse(task))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

	tasks, err := s.store.ListTasks(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list tasks", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list tasks")
		return
	}
	resp := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		resp = append(resp, s.taskToResponse(task))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": resp})
}

// handleRerunTask schedules a fresh occurrence of a previously completed
// task. The new row carries the original's identifier as its parent so any
// inherited repeat interval is discarded at finalize time.
func (s *Server) handleRerunTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseTaskID(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid task id")
		return
	}
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		s.logger.Error("load task for rerun", "task_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load task")
		return
	}

	var params any
	if task.Params != "" {
		if err := json.Unmarshal([]byte(task.Params), &params); err != nil {
			writeError(w, http.StatusConflict, "invalid_params", "stored task parameters are not valid JSON")
			return
		}
	}
	newID, err := s.scheduler.ScheduleTask(r.Context(), core.ScheduleRequest{
		TaskName:     task.Name,
		Params:       params,
		IntervalMS:   task.IntervalMS,
		ParentTaskID: &task.ID,
	})
	if err != nil {
		s.logger.Error("rerun task", "task_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to schedule rerun")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": newID})
}

func (s *Server) taskToResponse(task *core.TaskRow) taskResponse {
	resp := taskResponse{
		ID:           task.ID,
		Name:         task.Name,
		ParentTaskID: task.ParentTaskID,
		IntervalMS:   task.IntervalMS,
		ScheduledAt:  task.ScheduledAt.UTC().Format(time.RFC3339),
		RuntimeMS:    task.RuntimeMS,
		CreatedAt:    task.CreatedAt.UTC().Format(time.RFC3339),
	}
	if json.Valid([]byte(task.Params)) {
		resp.Params = json.RawMessage(task.Params)
	}
	if task.Result != nil {
		result := string(*task.Result)
		resp.Result = &result
	}
	if task.Logs != nil && json.Valid([]byte(*task.Logs)) {
		resp.Logs = json.RawMessage(*task.Logs)
	}
	var params any
	if task.Params != "" {
		_ = json.Unmarshal([]byte(task.Params), &params)
	}
	resp.Description = s.registry.Describe(task.Name, params)
	return resp
}

func parseTaskID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
