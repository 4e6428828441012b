package tasks

import (
	"strings"
	"time"
)

type TaskType string

const (
	TaskTypeGenerateMediaPlan       TaskType = "GENERATE_MEDIA_PLAN"
	TaskTypeCreateBrandFromIdea     TaskType = "CREATE_BRAND_FROM_IDEA"
	TaskTypeGenerateImage           TaskType = "GENERATE_IMAGE"
	TaskTypeAutoGeneratePersonas    TaskType = "AUTO_GENERATE_PERSONAS"
	TaskTypeGenerateViralIdeas      TaskType = "GENERATE_VIRAL_IDEAS"
	TaskTypeGenerateTrends          TaskType = "GENERATE_TRENDS"
	TaskTypeGenerateContentPackage  TaskType = "GENERATE_CONTENT_PACKAGE"
	TaskTypeGenerateFunnelCampaign  TaskType = "GENERATE_FUNNEL_CAMPAIGN"
	TaskTypeGenerateInCharacterPost TaskType = "GENERATE_IN_CHARACTER_POST"
)

var knownTaskTypes = map[TaskType]bool{
	TaskTypeGenerateMediaPlan:       true,
	TaskTypeCreateBrandFromIdea:     true,
	TaskTypeGenerateImage:           true,
	TaskTypeAutoGeneratePersonas:    true,
	TaskTypeGenerateViralIdeas:      true,
	TaskTypeGenerateTrends:          true,
	TaskTypeGenerateContentPackage:  true,
	TaskTypeGenerateFunnelCampaign:  true,
	TaskTypeGenerateInCharacterPost: true,
}

// Valid reports whether t is one of the recognized task kinds.
func (t TaskType) Valid() bool {
	return knownTaskTypes[t]
}

// Bootstrap reports whether the task kind may run before a brand exists.
func (t TaskType) Bootstrap() bool {
	return t == TaskTypeCreateBrandFromIdea
}

// ParseTaskType accepts the canonical upper-case name as well as the
// kebab-case spelling used by some callers ("generate-image").
func ParseTaskType(raw string) (TaskType, bool) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_"))
	t := TaskType(norm)
	return t, t.Valid()
}

type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusRetrying   TaskStatus = "retrying"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled, TaskStatusRetrying:
		return true
	default:
		return false
	}
}

func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	default:
		return false
	}
}

type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusProcessing StepStatus = "processing"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
)

type TaskStep struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	RetryCount int        `json:"retryCount,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type BackgroundTask struct {
	TaskID      string         `json:"taskId"`
	UserID      string         `json:"userId"`
	BrandID     string         `json:"brandId"`
	Type        TaskType       `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Status      TaskStatus     `json:"status"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"currentStep,omitempty"`
	Steps       []TaskStep     `json:"steps,omitempty"`
	Priority    Priority       `json:"priority"`
	QueuedAt    time.Time      `json:"queuedAt"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	LastError   string         `json:"lastError,omitempty"`
	RetryCount  int            `json:"retryCount"`
	MaxRetries  int            `json:"maxRetries"`
}

// Clone copies the slices owned by the record. Payload and Result are
// shared: the orchestration layer never mutates them in place.
func (t BackgroundTask) Clone() BackgroundTask {
	out := t
	if t.Steps != nil {
		out.Steps = make([]TaskStep, len(t.Steps))
		copy(out.Steps, t.Steps)
	}
	return out
}

func (t BackgroundTask) Terminal() bool {
	return t.Status.Terminal()
}

// Active is true for tasks the UI shows as running.
func (t BackgroundTask) Active() bool {
	return t.Status == TaskStatusQueued || t.Status == TaskStatusProcessing
}

// Patch is a partial update merged into a registry record. Nil fields are
// left untouched.
type Patch struct {
	Status      *TaskStatus
	Progress    *int
	CurrentStep *string
	Steps       []TaskStep
	Result      map[string]any
	LastError   *string
	RetryCount  *int
	MaxRetries  *int
}

type EventType string

const (
	EventTaskAdded    EventType = "task_added"
	EventTaskUpdated  EventType = "task_updated"
	EventTaskRemoved  EventType = "task_removed"
	EventTaskReplaced EventType = "task_list_replaced"

	EventNotificationAdded   EventType = "notification_added"
	EventNotificationRemoved EventType = "notification_removed"
)

type Event struct {
	Type     EventType       `json:"type"`
	TaskID   string          `json:"task_id,omitempty"`
	Task     *BackgroundTask `json:"task,omitempty"`
	Previous TaskStatus      `json:"previous_status,omitempty"`
	At       time.Time       `json:"at"`
}

// BecameTerminal reports whether the event records the first observation of
// a terminal status for the task.
func (e Event) BecameTerminal() bool {
	if e.Type != EventTaskUpdated || e.Task == nil {
		return false
	}
	return e.Task.Terminal() && !e.Previous.Terminal()
}
