package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/brandstudio/internal/tasks"
)

// MockExecutor replays scripted status sequences. A task with no script
// completes on its first status call. It is used for local runs without a
// worker and in tests.
type MockExecutor struct {
	mu        sync.Mutex
	scripts   map[tasks.TaskType][]StatusResponse
	createErr error
	records   map[string]*mockRecord
	now       func() time.Time

	statusCalls int
	cancelled   []string
}

type mockRecord struct {
	task  tasks.BackgroundTask
	steps []StatusResponse
	calls int
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		scripts: make(map[tasks.TaskType][]StatusResponse),
		records: make(map[string]*mockRecord),
		now:     time.Now,
	}
}

// Script sets the status replies returned, in order, for tasks of type t.
// The last reply repeats once the script is exhausted.
func (m *MockExecutor) Script(t tasks.TaskType, replies ...StatusResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[t] = append([]StatusResponse(nil), replies...)
}

// FailCreate makes every CreateTask call return err.
func (m *MockExecutor) FailCreate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// Seed registers an existing remote task, as if created elsewhere.
func (m *MockExecutor) Seed(task tasks.BackgroundTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[task.TaskID] = &mockRecord{task: task.Clone(), steps: m.scripts[task.Type]}
}

func (m *MockExecutor) CreateTask(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	if err := ctx.Err(); err != nil {
		return CreateResponse{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return CreateResponse{}, m.createErr
	}
	id := uuid.NewString()
	m.records[id] = &mockRecord{
		task: tasks.BackgroundTask{
			TaskID:   id,
			UserID:   req.UserID,
			BrandID:  req.BrandID,
			Type:     req.Type,
			Payload:  req.Payload,
			Status:   tasks.TaskStatusQueued,
			Priority: req.Priority,
			QueuedAt: m.now().UTC(),
		},
		steps: m.scripts[req.Type],
	}
	return CreateResponse{TaskID: id}, nil
}

func (m *MockExecutor) GetTaskStatus(ctx context.Context, taskID string) (StatusResponse, error) {
	if err := ctx.Err(); err != nil {
		return StatusResponse{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	rec, ok := m.records[taskID]
	if !ok {
		return StatusResponse{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	var reply StatusResponse
	switch {
	case rec.task.Status == tasks.TaskStatusCancelled:
		reply = statusFromTask(rec.task)
	case len(rec.steps) == 0:
		reply = StatusResponse{Status: tasks.TaskStatusCompleted, Progress: 100}
	case rec.calls < len(rec.steps):
		reply = rec.steps[rec.calls]
	default:
		reply = rec.steps[len(rec.steps)-1]
	}
	rec.calls++
	reply.TaskID = taskID
	rec.task.Status = reply.Status
	rec.task.Progress = reply.Progress
	rec.task.Result = reply.Result
	rec.task.LastError = reply.Error
	return reply, nil
}

func (m *MockExecutor) CancelTask(ctx context.Context, taskID, _ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, taskID)
	rec, ok := m.records[taskID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if rec.task.Terminal() {
		return false, nil
	}
	rec.task.Status = tasks.TaskStatusCancelled
	return true, nil
}

func (m *MockExecutor) ListTasks(ctx context.Context, brandID string) ([]tasks.BackgroundTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tasks.BackgroundTask
	for _, rec := range m.records {
		if rec.task.BrandID == brandID {
			out = append(out, rec.task.Clone())
		}
	}
	return out, nil
}

// Calls reports how many status calls have been served.
func (m *MockExecutor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

// CancelledIDs lists the task ids passed to CancelTask.
func (m *MockExecutor) CancelledIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancelled...)
}
