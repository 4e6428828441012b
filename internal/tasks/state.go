package tasks

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid task status transition")

var statusEdges = map[TaskStatus][]TaskStatus{
	TaskStatusQueued:     {TaskStatusProcessing},
	TaskStatusProcessing: {TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusRetrying},
	TaskStatusRetrying:   {TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled},
}

// IsEdge reports whether from->to is a single edge of the task state machine.
func IsEdge(from, to TaskStatus) bool {
	for _, next := range statusEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransition reports whether a record in status from may be updated to
// status to. Polling can miss intermediate states, so any state reachable
// along the edges is accepted; a repeated status is accepted as a progress
// update. Terminal states have no way out.
func CanTransition(from, to TaskStatus) bool {
	if !to.Valid() {
		return false
	}
	if from.Terminal() {
		return false
	}
	if from == to {
		return true
	}
	seen := map[TaskStatus]bool{from: true}
	queue := []TaskStatus{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range statusEdges[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

func checkTransition(from, to TaskStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
