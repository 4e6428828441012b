// Package executor talks to the remote worker that runs background
// generation tasks.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antoniostano/brandstudio/internal/tasks"
)

var ErrTaskNotFound = errors.New("remote task not found")

// CreateRequest is the createTask call.
type CreateRequest struct {
	Type     tasks.TaskType `json:"type"`
	Payload  map[string]any `json:"payload"`
	UserID   string         `json:"userId"`
	BrandID  string         `json:"brandId"`
	Priority tasks.Priority `json:"priority"`
}

type CreateResponse struct {
	TaskID string `json:"taskId"`
}

// StatusResponse is the getTaskStatus reply.
type StatusResponse struct {
	TaskID      string           `json:"taskId"`
	Status      tasks.TaskStatus `json:"status"`
	Progress    int              `json:"progress"`
	CurrentStep string           `json:"currentStep,omitempty"`
	Steps       []tasks.TaskStep `json:"steps,omitempty"`
	Result      map[string]any   `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	RetryCount  int              `json:"retryCount,omitempty"`
	MaxRetries  int              `json:"maxRetries,omitempty"`
}

// Patch converts the reply into a registry update.
func (r StatusResponse) Patch() tasks.Patch {
	status := r.Status
	progress := r.Progress
	p := tasks.Patch{
		Status:   &status,
		Progress: &progress,
		Steps:    r.Steps,
		Result:   r.Result,
	}
	if r.CurrentStep != "" {
		step := r.CurrentStep
		p.CurrentStep = &step
	}
	if r.Error != "" {
		msg := r.Error
		p.LastError = &msg
	}
	if r.RetryCount > 0 {
		n := r.RetryCount
		p.RetryCount = &n
	}
	if r.MaxRetries > 0 {
		n := r.MaxRetries
		p.MaxRetries = &n
	}
	return p
}

// Executor is the remote task executor.
type Executor interface {
	CreateTask(ctx context.Context, req CreateRequest) (CreateResponse, error)
	GetTaskStatus(ctx context.Context, taskID string) (StatusResponse, error)
	// CancelTask is advisory: success means the request was accepted, not
	// that remote work stopped.
	CancelTask(ctx context.Context, taskID, userID string) (bool, error)
	ListTasks(ctx context.Context, brandID string) ([]tasks.BackgroundTask, error)
}

// RemoteError is a non-success reply from the executor.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "no message"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("executor %s: status %d: %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("executor %s: %s", e.Op, msg)
}
