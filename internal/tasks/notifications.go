package tasks

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Notification is a task record surfaced to the user. It is a copy taken at
// the moment the entry was added and does not follow later registry changes.
type Notification struct {
	Task    BackgroundTask `json:"task"`
	AddedAt time.Time      `json:"addedAt"`
}

// NotificationStore keeps the user-facing subset of task records. Its
// lifecycle is independent of the Registry.
type NotificationStore struct {
	mu      sync.RWMutex
	entries map[string]Notification
	now     func() time.Time

	subscribers map[int]chan Event
	nextSubID   int
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		entries:     make(map[string]Notification),
		now:         func() time.Time { return time.Now().UTC() },
		subscribers: make(map[int]chan Event),
	}
}

func (s *NotificationStore) Subscribe() (<-chan Event, func()) {
	return subscribe(&s.mu, s.subscribers, &s.nextSubID)
}

// Add inserts or refreshes the entry for task.TaskID.
func (s *NotificationStore) Add(task BackgroundTask) Notification {
	now := s.now()
	n := Notification{Task: task.Clone(), AddedAt: now}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[task.TaskID] = n
	publish(s.subscribers, Event{
		Type:   EventNotificationAdded,
		TaskID: task.TaskID,
		Task:   clonePtr(&n.Task),
		At:     now,
	})
	return n
}

// Remove deletes the entry; unknown ids are ignored.
func (s *NotificationStore) Remove(taskID string) bool {
	taskID = strings.TrimSpace(taskID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[taskID]; !ok {
		return false
	}
	delete(s.entries, taskID)
	publish(s.subscribers, Event{
		Type:   EventNotificationRemoved,
		TaskID: taskID,
		At:     s.now(),
	})
	return true
}

func (s *NotificationStore) Get(taskID string) (Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.entries[strings.TrimSpace(taskID)]
	return n, ok
}

// List returns the entries, newest first.
func (s *NotificationStore) List() []Notification {
	s.mu.RLock()
	out := make([]Notification, 0, len(s.entries))
	for _, n := range s.entries {
		out = append(out, n)
	}
	s.mu.RUnlock()
	sortNotifications(out)
	return out
}

func (s *NotificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func sortNotifications(list []Notification) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].AddedAt.Equal(list[j].AddedAt) {
			return list[i].Task.TaskID < list[j].Task.TaskID
		}
		return list[i].AddedAt.After(list[j].AddedAt)
	})
}
