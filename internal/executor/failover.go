package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/antoniostano/brandstudio/internal/reliability"
	"github.com/antoniostano/brandstudio/internal/tasks"
)

// Backend is one named executor in a failover set.
type Backend struct {
	Name     string
	Executor Executor
}

// FailoverExecutor creates tasks on the first backend that accepts them and
// routes later status and cancel calls for that task to the same backend.
type FailoverExecutor struct {
	backends   []Backend
	onFallback func(from string, err error)

	mu     sync.RWMutex
	owners map[string]int
}

func NewFailoverExecutor(backends ...Backend) *FailoverExecutor {
	filtered := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Executor != nil {
			filtered = append(filtered, b)
		}
	}
	return &FailoverExecutor{
		backends: filtered,
		owners:   make(map[string]int),
	}
}

// OnFallback registers a hook called when a backend fails and the next one
// is tried.
func (e *FailoverExecutor) OnFallback(fn func(from string, err error)) *FailoverExecutor {
	e.onFallback = fn
	return e
}

func (e *FailoverExecutor) CreateTask(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	type created struct {
		resp  CreateResponse
		owner int
	}
	strategies := make([]reliability.Strategy[created], 0, len(e.backends))
	for i, b := range e.backends {
		i, b := i, b
		strategies = append(strategies, reliability.Strategy[created]{
			Name: b.Name,
			Run: func(ctx context.Context) (created, error) {
				resp, err := b.Executor.CreateTask(ctx, req)
				return created{resp: resp, owner: i}, err
			},
		})
	}
	out, err := reliability.NewChain(strategies...).OnFallback(e.onFallback).Run(ctx)
	if err != nil {
		return CreateResponse{}, err
	}
	e.mu.Lock()
	e.owners[out.resp.TaskID] = out.owner
	e.mu.Unlock()
	return out.resp, nil
}

func (e *FailoverExecutor) GetTaskStatus(ctx context.Context, taskID string) (StatusResponse, error) {
	b, err := e.owner(taskID)
	if err != nil {
		return StatusResponse{}, err
	}
	return b.Executor.GetTaskStatus(ctx, taskID)
}

func (e *FailoverExecutor) CancelTask(ctx context.Context, taskID, userID string) (bool, error) {
	b, err := e.owner(taskID)
	if err != nil {
		return false, err
	}
	return b.Executor.CancelTask(ctx, taskID, userID)
}

// ListTasks merges every reachable backend's view. Tasks listed by a backend
// are routed to it afterwards.
func (e *FailoverExecutor) ListTasks(ctx context.Context, brandID string) ([]tasks.BackgroundTask, error) {
	if len(e.backends) == 0 {
		return nil, reliability.ErrNoStrategies
	}
	var (
		out     []tasks.BackgroundTask
		lastErr error
		ok      bool
	)
	seen := make(map[string]struct{})
	for i, b := range e.backends {
		list, err := b.Executor.ListTasks(ctx, brandID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("%s: %w", b.Name, err)
			continue
		}
		ok = true
		e.mu.Lock()
		for _, task := range list {
			if _, dup := seen[task.TaskID]; dup {
				continue
			}
			seen[task.TaskID] = struct{}{}
			if _, known := e.owners[task.TaskID]; !known {
				e.owners[task.TaskID] = i
			}
			out = append(out, task)
		}
		e.mu.Unlock()
	}
	if !ok {
		return nil, lastErr
	}
	return out, nil
}

// owner falls back to the first backend for ids this process never saw.
func (e *FailoverExecutor) owner(taskID string) (Backend, error) {
	if len(e.backends) == 0 {
		return Backend{}, reliability.ErrNoStrategies
	}
	e.mu.RLock()
	idx, ok := e.owners[taskID]
	e.mu.RUnlock()
	if !ok {
		idx = 0
	}
	return e.backends[idx], nil
}
