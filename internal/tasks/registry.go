package tasks

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskExists   = errors.New("task already tracked")
)

const subscriberBuffer = 256

// Registry is the in-memory source of truth for the tasks known to the
// current session.
type Registry struct {
	mu sync.RWMutex

	tasks map[string]*BackgroundTask
	now   func() time.Time

	subscribers map[int]chan Event
	nextSubID   int
}

func NewRegistry() *Registry {
	return &Registry{
		tasks:       make(map[string]*BackgroundTask),
		now:         func() time.Time { return time.Now().UTC() },
		subscribers: make(map[int]chan Event),
	}
}

// Subscribe returns a channel receiving every registry event. Slow
// subscribers lose events rather than block writers.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	return subscribe(&r.mu, r.subscribers, &r.nextSubID)
}

func (r *Registry) Add(task BackgroundTask) (BackgroundTask, error) {
	task.TaskID = strings.TrimSpace(task.TaskID)
	if task.TaskID == "" {
		return BackgroundTask{}, errors.New("taskId is required")
	}
	if task.Status == "" {
		task.Status = TaskStatusQueued
	}
	if task.Priority == "" {
		task.Priority = PriorityNormal
	}
	now := r.now()
	if task.QueuedAt.IsZero() {
		task.QueuedAt = now
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.TaskID]; ok {
		return BackgroundTask{}, ErrTaskExists
	}
	stored := task.Clone()
	r.tasks[task.TaskID] = &stored
	r.publishLocked(Event{
		Type:   EventTaskAdded,
		TaskID: task.TaskID,
		Task:   clonePtr(&stored),
		At:     now,
	})
	return stored.Clone(), nil
}

// Update merges patch into the record. Status changes must follow the task
// state machine; a record in a terminal status is never modified.
func (r *Registry) Update(taskID string, patch Patch) (BackgroundTask, error) {
	task, _, err := r.Apply(taskID, patch)
	return task, err
}

// Apply is Update that also returns the status the record had before the
// patch. Callers use it to act exactly once on a transition without
// depending on event delivery.
func (r *Registry) Apply(taskID string, patch Patch) (BackgroundTask, TaskStatus, error) {
	taskID = strings.TrimSpace(taskID)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return BackgroundTask{}, "", ErrTaskNotFound
	}
	previous := task.Status
	next := previous
	if patch.Status != nil {
		next = *patch.Status
	}
	if err := checkTransition(previous, next); err != nil {
		return task.Clone(), previous, err
	}

	updated := task.Clone()
	updated.Status = next
	if patch.Progress != nil {
		updated.Progress = mergeProgress(updated.Progress, *patch.Progress)
	}
	if patch.CurrentStep != nil {
		updated.CurrentStep = *patch.CurrentStep
	}
	if patch.Steps != nil {
		updated.Steps = append([]TaskStep(nil), patch.Steps...)
	}
	if patch.Result != nil {
		updated.Result = patch.Result
	}
	if patch.LastError != nil {
		updated.LastError = *patch.LastError
	}
	if patch.RetryCount != nil {
		updated.RetryCount = *patch.RetryCount
	}
	if patch.MaxRetries != nil {
		updated.MaxRetries = *patch.MaxRetries
	}
	if updated.StartedAt == nil && next != TaskStatusQueued {
		started := now
		updated.StartedAt = &started
	}
	if next.Terminal() {
		completed := now
		updated.CompletedAt = &completed
		if next == TaskStatusCompleted {
			updated.Progress = 100
		}
	}

	*task = updated
	r.publishLocked(Event{
		Type:     EventTaskUpdated,
		TaskID:   taskID,
		Task:     clonePtr(task),
		Previous: previous,
		At:       now,
	})
	return task.Clone(), previous, nil
}

// Remove drops the record. Removing an unknown id is a no-op.
func (r *Registry) Remove(taskID string) bool {
	taskID = strings.TrimSpace(taskID)
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return false
	}
	delete(r.tasks, taskID)
	r.publishLocked(Event{
		Type:     EventTaskRemoved,
		TaskID:   taskID,
		Task:     clonePtr(task),
		Previous: task.Status,
		At:       r.now(),
	})
	return true
}

// SetList replaces every record with list. The server is authoritative for
// brand-scoped listings, so nothing from the previous contents survives.
func (r *Registry) SetList(list []BackgroundTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = make(map[string]*BackgroundTask, len(list))
	for _, t := range list {
		if strings.TrimSpace(t.TaskID) == "" {
			continue
		}
		stored := t.Clone()
		if stored.Priority == "" {
			stored.Priority = PriorityNormal
		}
		r.tasks[stored.TaskID] = &stored
	}
	r.publishLocked(Event{
		Type: EventTaskReplaced,
		At:   r.now(),
	})
}

func (r *Registry) Get(taskID string) (BackgroundTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[strings.TrimSpace(taskID)]
	if !ok {
		return BackgroundTask{}, ErrTaskNotFound
	}
	return task.Clone(), nil
}

// List returns every record, most recently queued first.
func (r *Registry) List() []BackgroundTask {
	return r.filter(func(BackgroundTask) bool { return true })
}

// Active returns queued and processing tasks, most recently queued first.
func (r *Registry) Active() []BackgroundTask {
	return r.filter(BackgroundTask.Active)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

func (r *Registry) filter(keep func(BackgroundTask) bool) []BackgroundTask {
	r.mu.RLock()
	out := make([]BackgroundTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		if keep(*t) {
			out = append(out, t.Clone())
		}
	}
	r.mu.RUnlock()
	sortByQueuedDesc(out)
	return out
}

func (r *Registry) publishLocked(evt Event) {
	publish(r.subscribers, evt)
}

func mergeProgress(current, reported int) int {
	if reported < 0 {
		reported = 0
	}
	if reported > 100 {
		reported = 100
	}
	return max(current, reported)
}

func sortByQueuedDesc(list []BackgroundTask) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].QueuedAt.Equal(list[j].QueuedAt) {
			return list[i].TaskID < list[j].TaskID
		}
		return list[i].QueuedAt.After(list[j].QueuedAt)
	})
}

func clonePtr(t *BackgroundTask) *BackgroundTask {
	cp := t.Clone()
	return &cp
}

func subscribe(mu *sync.RWMutex, subs map[int]chan Event, nextID *int) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	mu.Lock()
	*nextID++
	id := *nextID
	subs[id] = ch
	mu.Unlock()

	return ch, func() {
		mu.Lock()
		defer mu.Unlock()
		if c, ok := subs[id]; ok {
			delete(subs, id)
			close(c)
		}
	}
}

func publish(subs map[int]chan Event, evt Event) {
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
