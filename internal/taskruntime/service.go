// Package taskruntime submits background tasks to the executor, polls them
// to a terminal status and fans the results out to the registry,
// notifications and asset completion handlers.
package taskruntime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/antoniostano/brandstudio/internal/config"
	"github.com/antoniostano/brandstudio/internal/executor"
	"github.com/antoniostano/brandstudio/internal/observability"
	"github.com/antoniostano/brandstudio/internal/reliability"
	"github.com/antoniostano/brandstudio/internal/tasks"
)

var ErrInvalidSubmission = errors.New("invalid task submission")

// settingsKey is the payload key the user settings are forwarded under.
const settingsKey = "settings"

type Config struct {
	UserID   string
	Settings config.Settings

	BaseDelay   time.Duration
	Growth      float64
	MaxDelay    time.Duration
	MaxAttempts int
	GraceWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.Growth < 1 {
		c.Growth = 1.5
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.GraceWindow < 0 {
		c.GraceWindow = 0
	}
	return c
}

type SubmitRequest struct {
	Type     tasks.TaskType `json:"type" validate:"required"`
	Payload  map[string]any `json:"payload"`
	BrandID  string         `json:"brandId"`
	Priority tasks.Priority `json:"priority" validate:"omitempty,oneof=low normal high"`
}

type TrackOptions struct {
	// Silent tasks are polled and kept in the registry but never surface a
	// notification.
	Silent bool
}

// TaskCreationError is returned when a task could not be created. Remote
// rejections carry the executor's status code and message.
type TaskCreationError struct {
	Type       tasks.TaskType
	Message    string
	StatusCode int
	Err        error
}

func (e *TaskCreationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("create %s task: status %d: %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("create %s task: %s", e.Type, e.Message)
}

func (e *TaskCreationError) Unwrap() error { return e.Err }

// CompletionHandler applies the result of a completed task.
type CompletionHandler func(ctx context.Context, task tasks.BackgroundTask) error

type Service struct {
	cfg           Config
	backoff       reliability.Backoff
	executor      executor.Executor
	registry      *tasks.Registry
	notifications *tasks.NotificationStore
	logger        *slog.Logger
	metrics       *observability.Metrics
	validate      *validator.Validate

	// wait blocks between polls; tests replace it to record delays.
	wait func(ctx context.Context, d time.Duration) error

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu             sync.Mutex
	closed         bool
	runningCancels map[string]context.CancelFunc
	graceTimers    map[string]*time.Timer
	silent         map[string]bool
	completions    map[tasks.TaskType]CompletionHandler
	onNotify       func(taskID string, status tasks.TaskStatus)
	onRefresh      func(brandID string)
}

func New(cfg Config, exec executor.Executor, logger *slog.Logger, metrics *observability.Metrics) *Service {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = observability.Discard()
	}
	ctx, stop := context.WithCancel(context.Background())
	s := &Service{
		cfg:            cfg,
		backoff:        reliability.Backoff{Base: cfg.BaseDelay, Growth: cfg.Growth, Cap: cfg.MaxDelay},
		executor:       exec,
		registry:       tasks.NewRegistry(),
		notifications:  tasks.NewNotificationStore(),
		logger:         logger.With("component", "taskruntime"),
		metrics:        metrics,
		validate:       validator.New(),
		wait:           sleepContext,
		baseCtx:        ctx,
		stop:           stop,
		runningCancels: make(map[string]context.CancelFunc),
		graceTimers:    make(map[string]*time.Timer),
		silent:         make(map[string]bool),
		completions:    make(map[tasks.TaskType]CompletionHandler),
	}
	events, unsubscribe := s.registry.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsubscribe()
		s.bridge(ctx, events)
	}()
	return s
}

func (s *Service) Registry() *tasks.Registry { return s.registry }

func (s *Service) Notifications() *tasks.NotificationStore { return s.notifications }

// OnNotify sets the callback invoked when a non-silent task reaches a
// terminal status.
func (s *Service) OnNotify(fn func(taskID string, status tasks.TaskStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNotify = fn
}

// OnRefresh sets the callback asking the host to reload brand data after a
// non-silent task finished.
func (s *Service) OnRefresh(fn func(brandID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefresh = fn
}

func (s *Service) RegisterCompletion(t tasks.TaskType, h CompletionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.completions, t)
		return
	}
	s.completions[t] = h
}

// Submit creates the task on the executor and returns its id. It does not
// register or poll the task; see Track and SubmitAndTrack.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	taskID, err := s.submit(ctx, req)
	s.metrics.ObserveSubmission(string(req.Type), err)
	return taskID, err
}

func (s *Service) submit(ctx context.Context, req SubmitRequest) (string, error) {
	req.BrandID = strings.TrimSpace(req.BrandID)
	if req.Priority == "" {
		req.Priority = tasks.PriorityNormal
	}
	if err := s.validate.Struct(req); err != nil {
		return "", invalid(req.Type, err.Error())
	}
	if !req.Type.Valid() {
		return "", invalid(req.Type, "unknown task type")
	}
	if req.BrandID == "" && !req.Type.Bootstrap() {
		return "", invalid(req.Type, "brandId is required")
	}

	payload := make(map[string]any, len(req.Payload)+1)
	maps.Copy(payload, req.Payload)
	if _, ok := payload[settingsKey]; !ok {
		payload[settingsKey] = s.cfg.Settings.Payload()
	}
	if _, err := json.Marshal(payload); err != nil {
		return "", invalid(req.Type, "payload is not serializable: "+err.Error())
	}

	resp, err := s.executor.CreateTask(ctx, executor.CreateRequest{
		Type:     req.Type,
		Payload:  payload,
		UserID:   s.cfg.UserID,
		BrandID:  req.BrandID,
		Priority: req.Priority,
	})
	if err != nil {
		out := &TaskCreationError{Type: req.Type, Message: err.Error(), Err: err}
		var remote *executor.RemoteError
		if errors.As(err, &remote) {
			out.StatusCode = remote.StatusCode
			if msg := strings.TrimSpace(remote.Message); msg != "" {
				out.Message = msg
			}
		}
		return "", out
	}
	if strings.TrimSpace(resp.TaskID) == "" {
		return "", &TaskCreationError{Type: req.Type, Message: "executor returned no task id"}
	}
	return resp.TaskID, nil
}

// SubmitAndTrack submits the task and starts tracking it as queued.
func (s *Service) SubmitAndTrack(ctx context.Context, req SubmitRequest, opts TrackOptions) (tasks.BackgroundTask, error) {
	taskID, err := s.Submit(ctx, req)
	if err != nil {
		return tasks.BackgroundTask{}, err
	}
	priority := req.Priority
	if priority == "" {
		priority = tasks.PriorityNormal
	}
	return s.Track(tasks.BackgroundTask{
		TaskID:   taskID,
		UserID:   s.cfg.UserID,
		BrandID:  strings.TrimSpace(req.BrandID),
		Type:     req.Type,
		Payload:  req.Payload,
		Status:   tasks.TaskStatusQueued,
		Priority: priority,
	}, opts)
}

// Track adds the task to the registry and polls it until it reaches a
// terminal status. Tracking an id that is already tracked changes nothing.
func (s *Service) Track(task tasks.BackgroundTask, opts TrackOptions) (tasks.BackgroundTask, error) {
	stored, err := s.registry.Add(task)
	if errors.Is(err, tasks.ErrTaskExists) {
		return s.registry.Get(task.TaskID)
	}
	if err != nil {
		return tasks.BackgroundTask{}, err
	}
	if opts.Silent {
		s.mu.Lock()
		s.silent[stored.TaskID] = true
		s.mu.Unlock()
	}
	if stored.Terminal() {
		s.scheduleRemoval(stored.TaskID)
		return stored, nil
	}
	s.startPolling(stored.TaskID)
	return stored, nil
}

// Untrack stops polling taskID and drops it from the registry. Unknown ids
// are ignored.
func (s *Service) Untrack(taskID string) {
	taskID = strings.TrimSpace(taskID)
	s.mu.Lock()
	if cancel, ok := s.runningCancels[taskID]; ok {
		cancel()
		delete(s.runningCancels, taskID)
	}
	if timer, ok := s.graceTimers[taskID]; ok {
		timer.Stop()
		delete(s.graceTimers, taskID)
	}
	delete(s.silent, taskID)
	s.mu.Unlock()
	s.registry.Remove(taskID)
}

// LoadBrandTasks replaces the registry with the executor's listing for
// brandID and resumes polling for the tasks still running. Tasks this
// session was not already tracking are picked up silently; tracked ones
// keep the notification behavior they were submitted with.
func (s *Service) LoadBrandTasks(ctx context.Context, brandID string) ([]tasks.BackgroundTask, error) {
	list, err := s.executor.ListTasks(ctx, strings.TrimSpace(brandID))
	if err != nil {
		return nil, fmt.Errorf("list tasks for brand %q: %w", brandID, err)
	}

	keep := make(map[string]bool, len(list))
	for _, t := range list {
		keep[t.TaskID] = true
	}
	s.mu.Lock()
	for id, cancel := range s.runningCancels {
		if !keep[id] {
			cancel()
			delete(s.runningCancels, id)
		}
	}
	for id, timer := range s.graceTimers {
		timer.Stop()
		delete(s.graceTimers, id)
	}
	for id := range s.silent {
		if !keep[id] {
			delete(s.silent, id)
		}
	}
	for _, t := range list {
		if t.Terminal() {
			continue
		}
		if _, err := s.registry.Get(t.TaskID); err != nil {
			s.silent[t.TaskID] = true
		}
	}
	s.mu.Unlock()

	s.registry.SetList(list)
	for _, t := range list {
		if !t.Terminal() {
			s.startPolling(t.TaskID)
		}
	}
	return s.registry.List(), nil
}

// CancelTask forwards a cancel request to the executor. The local record
// only changes once a poll observes the cancelled status.
func (s *Service) CancelTask(ctx context.Context, taskID string) (bool, error) {
	ok, err := s.executor.CancelTask(ctx, strings.TrimSpace(taskID), s.cfg.UserID)
	if err != nil {
		return false, fmt.Errorf("cancel task %s: %w", taskID, err)
	}
	return ok, nil
}

// Polling reports whether a poll loop is running for taskID.
func (s *Service) Polling(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runningCancels[taskID]
	return ok
}

// Close stops every poll loop, pending removal and the event bridge.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, cancel := range s.runningCancels {
		cancel()
		delete(s.runningCancels, id)
	}
	for id, timer := range s.graceTimers {
		timer.Stop()
		delete(s.graceTimers, id)
	}
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()
	return nil
}

func invalid(t tasks.TaskType, msg string) error {
	return &TaskCreationError{Type: t, Message: msg, Err: ErrInvalidSubmission}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
