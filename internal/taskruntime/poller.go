package taskruntime

import (
	"context"
	"errors"
	"time"

	"github.com/antoniostano/brandstudio/internal/executor"
	"github.com/antoniostano/brandstudio/internal/tasks"
)

// startPolling launches the poll loop for taskID unless one is running.
func (s *Service) startPolling(taskID string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if _, ok := s.runningCancels[taskID]; ok {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.runningCancels[taskID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()
		defer s.clearRunningCancel(ctx, taskID)
		s.poll(ctx, taskID)
	}()
	return true
}

// clearRunningCancel forgets a loop that ended on its own. A cancelled loop
// was already removed by whoever cancelled it, and a later Track may have
// registered a new one under the same id.
func (s *Service) clearRunningCancel(ctx context.Context, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() == nil {
		delete(s.runningCancels, taskID)
	}
}

func (s *Service) poll(ctx context.Context, taskID string) {
	logger := s.logger.With("task_id", taskID)
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.wait(ctx, s.backoff.Delay(attempt-1)); err != nil {
				return
			}
		}
		done, err := s.pollOnce(ctx, taskID)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, executor.ErrTaskNotFound) {
			logger.Warn("executor no longer knows the task, polling stopped", "attempt", attempt+1)
			return
		}
		if err != nil {
			logger.Warn("task status poll failed", "attempt", attempt+1, "error", err)
			continue
		}
		if done {
			return
		}
	}
	s.metrics.ObservePoll("abandoned")
	logger.Warn("task polling abandoned", "attempts", s.cfg.MaxAttempts)
}

// pollOnce fetches one status and merges it. done is true when polling
// should stop: the task is terminal or no longer tracked.
func (s *Service) pollOnce(ctx context.Context, taskID string) (done bool, err error) {
	resp, err := s.executor.GetTaskStatus(ctx, taskID)
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.ObservePoll("error")
		}
		return false, err
	}
	s.metrics.ObservePoll("ok")

	updated, previous, err := s.registry.Apply(taskID, resp.Patch())
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		return true, nil
	case errors.Is(err, tasks.ErrInvalidTransition):
		s.metrics.ObservePoll("rejected")
		s.logger.Debug("ignoring out-of-order status", "task_id", taskID, "error", err)
		if updated.Terminal() {
			return true, nil
		}
		return false, nil
	case err != nil:
		return false, err
	}
	if updated.Terminal() {
		if !previous.Terminal() {
			s.finish(ctx, updated)
		}
		s.scheduleRemoval(taskID)
		return true, nil
	}
	return false, nil
}

// scheduleRemoval drops a terminal task from the registry after the grace
// window. Notification entries are not touched.
func (s *Service) scheduleRemoval(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if timer, ok := s.graceTimers[taskID]; ok {
		timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.cfg.GraceWindow, func() {
		s.mu.Lock()
		current, ok := s.graceTimers[taskID]
		if !ok || current != timer {
			s.mu.Unlock()
			return
		}
		delete(s.graceTimers, taskID)
		delete(s.silent, taskID)
		s.mu.Unlock()
		s.registry.Remove(taskID)
	})
	s.graceTimers[taskID] = timer
}
