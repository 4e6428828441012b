package taskruntime

import (
	"context"

	"github.com/antoniostano/brandstudio/internal/tasks"
)

// bridge keeps gauges and transition counters in step with the registry.
// Registry fan-out drops events for slow readers, so nothing here may carry
// task semantics; terminal handling runs from the poll loop in finish.
func (s *Service) bridge(ctx context.Context, events <-chan tasks.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			s.observeEvent(evt)
		}
	}
}

func (s *Service) observeEvent(evt tasks.Event) {
	s.metrics.SetActiveTasks(len(s.registry.Active()))
	if evt.Type != tasks.EventTaskUpdated || evt.Task == nil {
		return
	}
	if evt.Task.Status != evt.Previous {
		s.metrics.ObserveTransition(string(evt.Task.Type), string(evt.Task.Status))
	}
}

// finish runs once per task, on the poll goroutine that observed the
// terminal status: it applies the result, then notifies the host unless the
// task is tracked silently.
func (s *Service) finish(ctx context.Context, task tasks.BackgroundTask) {
	if task.CompletedAt != nil {
		s.metrics.ObserveTaskDuration(string(task.Type), task.CompletedAt.Sub(task.QueuedAt))
	}

	s.mu.Lock()
	silent := s.silent[task.TaskID]
	handler := s.completions[task.Type]
	onNotify, onRefresh := s.onNotify, s.onRefresh
	s.mu.Unlock()

	logger := s.logger.With("task_id", task.TaskID, "type", task.Type)
	if task.Status == tasks.TaskStatusCompleted && handler != nil {
		if err := handler(ctx, task); err != nil {
			logger.Error("applying task result failed", "error", err)
		}
	}
	if task.Status == tasks.TaskStatusFailed {
		logger.Warn("task failed", "error", task.LastError)
	} else {
		logger.Info("task finished", "status", task.Status)
	}

	if silent {
		return
	}
	s.notifications.Add(task)
	if onNotify != nil {
		onNotify(task.TaskID, task.Status)
	}
	if brandID := refreshTarget(task); onRefresh != nil && brandID != "" {
		onRefresh(brandID)
	}
}

// refreshTarget is the brand to reload. Bootstrap tasks have no brand until
// the executor reports the one it created.
func refreshTarget(task tasks.BackgroundTask) string {
	if task.BrandID != "" {
		return task.BrandID
	}
	if id, ok := task.Result["brandId"].(string); ok {
		return id
	}
	return ""
}
