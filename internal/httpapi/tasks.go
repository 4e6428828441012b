package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/brandstudio/internal/executor"
	"github.com/antoniostano/brandstudio/internal/policy"
	"github.com/antoniostano/brandstudio/internal/taskruntime"
	"github.com/antoniostano/brandstudio/internal/tasks"
)

type createTaskRequest struct {
	Type     string         `json:"type"`
	BrandID  string         `json:"brandId"`
	Payload  map[string]any `json:"payload"`
	Priority string         `json:"priority"`
	Silent   bool           `json:"silent"`
}

func (s *Server) runtimeAvailable(w http.ResponseWriter) bool {
	if s.runtime == nil {
		respondError(w, http.StatusNotImplemented, "task_runtime_disabled", "Task runtime is not configured.")
		return false
	}
	return true
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if !s.runtimeAvailable(w) {
		return
	}
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	taskType, ok := tasks.ParseTaskType(req.Type)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_request", "unknown task type "+strconv.Quote(req.Type))
		return
	}

	task, err := s.runtime.SubmitAndTrack(r.Context(), taskruntime.SubmitRequest{
		Type:     taskType,
		Payload:  req.Payload,
		BrandID:  req.BrandID,
		Priority: tasks.Priority(strings.ToLower(strings.TrimSpace(req.Priority))),
	}, taskruntime.TrackOptions{Silent: req.Silent})
	if err != nil {
		var creation *taskruntime.TaskCreationError
		switch {
		case errors.Is(err, taskruntime.ErrInvalidSubmission):
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.As(err, &creation):
			respondJSON(w, http.StatusBadGateway, map[string]any{
				"error":       policy.Redact(creation.Message),
				"code":        "task_create_failed",
				"type":        creation.Type,
				"status_code": creation.StatusCode,
			})
		default:
			s.respondUpstream(w, "task_create_failed", err)
		}
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if !s.runtimeAvailable(w) {
		return
	}
	brandID := strings.TrimSpace(r.URL.Query().Get("brandId"))
	list := s.runtime.Registry().List()
	if brandID != "" {
		filtered := list[:0]
		for _, t := range list {
			if t.BrandID == brandID {
				filtered = append(filtered, t)
			}
		}
		list = filtered
	}
	respondJSON(w, http.StatusOK, map[string]any{"tasks": list})
}

func (s *Server) handleListActiveTasks(w http.ResponseWriter, _ *http.Request) {
	if !s.runtimeAvailable(w) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tasks": s.runtime.Registry().Active()})
}

func (s *Server) handleUntrackTask(w http.ResponseWriter, r *http.Request) {
	if !s.runtimeAvailable(w) {
		return
	}
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	s.runtime.Untrack(taskID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	if !s.runtimeAvailable(w) {
		return
	}
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}

	accepted, err := s.runtime.CancelTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, executor.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "task_not_found", err.Error())
			return
		}
		s.respondUpstream(w, "task_cancel_failed", err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"task_id":  taskID,
		"accepted": accepted,
	})
}

func (s *Server) handleReloadBrandTasks(w http.ResponseWriter, r *http.Request) {
	if !s.runtimeAvailable(w) {
		return
	}
	brandID := strings.TrimSpace(chi.URLParam(r, "id"))
	if brandID == "" {
		respondError(w, http.StatusBadRequest, "invalid_brand_id", "missing brand id")
		return
	}
	list, err := s.runtime.LoadBrandTasks(r.Context(), brandID)
	if err != nil {
		s.respondUpstream(w, "task_reload_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"brand_id": brandID, "tasks": list})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, _ *http.Request) {
	if !s.runtimeAvailable(w) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"notifications": s.runtime.Notifications().List()})
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	if !s.runtimeAvailable(w) {
		return
	}
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if !s.runtime.Notifications().Remove(taskID) {
		respondError(w, http.StatusNotFound, "notification_not_found", "no notification for task "+taskID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
