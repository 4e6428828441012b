package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/antoniostano/brandstudio/internal/reliability"
	"github.com/antoniostano/brandstudio/internal/tasks"
)

const (
	queueName       = "bgtasks"
	recordRetention = 24 * time.Hour
	defaultMaxRetry = 3
)

// QueueExecutor runs tasks through an asynq queue. Task state lives in Redis
// records that workers update; status polling reads them back.
type QueueExecutor struct {
	redis       *redis.Client
	asynqClient *asynq.Client
	now         func() time.Time
}

func NewQueueExecutor(redisClient *redis.Client, asynqClient *asynq.Client) *QueueExecutor {
	return &QueueExecutor{
		redis:       redisClient,
		asynqClient: asynqClient,
		now:         time.Now,
	}
}

func recordKey(taskID string) string { return fmt.Sprintf("bgtask:%s", taskID) }
func brandKey(brandID string) string { return fmt.Sprintf("bgtasks:brand:%s", brandID) }
func queueTaskType(t tasks.TaskType) string {
	return "bgtask:" + strings.ToLower(string(t))
}

func (e *QueueExecutor) CreateTask(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	taskID := uuid.NewString()
	task := tasks.BackgroundTask{
		TaskID:     taskID,
		UserID:     req.UserID,
		BrandID:    req.BrandID,
		Type:       req.Type,
		Payload:    req.Payload,
		Status:     tasks.TaskStatusQueued,
		Priority:   req.Priority,
		QueuedAt:   e.now().UTC(),
		MaxRetries: defaultMaxRetry,
	}
	if err := e.saveRecord(ctx, task); err != nil {
		return CreateResponse{}, fmt.Errorf("save task record: %w", err)
	}
	if req.BrandID != "" {
		if err := e.redis.SAdd(ctx, brandKey(req.BrandID), taskID).Err(); err != nil {
			return CreateResponse{}, fmt.Errorf("index task record: %w", err)
		}
		e.redis.Expire(ctx, brandKey(req.BrandID), recordRetention)
	}

	qt, err := newQueueTask(taskID, req)
	if err != nil {
		return CreateResponse{}, reliability.Permanent(fmt.Errorf("create queue task: %w", err))
	}
	if _, err := e.asynqClient.EnqueueContext(ctx, qt,
		asynq.Queue(queueName),
		asynq.MaxRetry(defaultMaxRetry),
		asynq.Retention(recordRetention),
	); err != nil {
		return CreateResponse{}, fmt.Errorf("enqueue task: %w", err)
	}
	return CreateResponse{TaskID: taskID}, nil
}

func (e *QueueExecutor) GetTaskStatus(ctx context.Context, taskID string) (StatusResponse, error) {
	task, err := e.loadRecord(ctx, taskID)
	if err != nil {
		return StatusResponse{}, err
	}
	return statusFromTask(task), nil
}

func (e *QueueExecutor) CancelTask(ctx context.Context, taskID, _ string) (bool, error) {
	task, err := e.loadRecord(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task.Terminal() {
		return false, nil
	}
	now := e.now().UTC()
	task.Status = tasks.TaskStatusCancelled
	task.CompletedAt = &now
	if err := e.saveRecord(ctx, task); err != nil {
		return false, err
	}
	return true, nil
}

func (e *QueueExecutor) ListTasks(ctx context.Context, brandID string) ([]tasks.BackgroundTask, error) {
	ids, err := e.redis.SMembers(ctx, brandKey(brandID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list brand tasks: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, recordKey(id))
	}
	raw, err := e.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load brand tasks: %w", err)
	}
	out := make([]tasks.BackgroundTask, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			// expired record still present in the brand index
			continue
		}
		var task tasks.BackgroundTask
		if err := json.Unmarshal([]byte(s), &task); err != nil {
			continue
		}
		out = append(out, task)
	}
	return out, nil
}

func (e *QueueExecutor) saveRecord(ctx context.Context, task tasks.BackgroundTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return e.redis.Set(ctx, recordKey(task.TaskID), data, recordRetention).Err()
}

func (e *QueueExecutor) loadRecord(ctx context.Context, taskID string) (tasks.BackgroundTask, error) {
	data, err := e.redis.Get(ctx, recordKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return tasks.BackgroundTask{}, reliability.Permanent(fmt.Errorf("%w: %s", ErrTaskNotFound, taskID))
		}
		return tasks.BackgroundTask{}, err
	}
	var task tasks.BackgroundTask
	if err := json.Unmarshal(data, &task); err != nil {
		return tasks.BackgroundTask{}, fmt.Errorf("decode task record: %w", err)
	}
	return task, nil
}

func newQueueTask(taskID string, req CreateRequest) (*asynq.Task, error) {
	data, err := json.Marshal(map[string]any{
		"taskId":   taskID,
		"brandId":  req.BrandID,
		"userId":   req.UserID,
		"priority": req.Priority,
		"payload":  req.Payload,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(queueTaskType(req.Type), data), nil
}

func statusFromTask(task tasks.BackgroundTask) StatusResponse {
	return StatusResponse{
		TaskID:      task.TaskID,
		Status:      task.Status,
		Progress:    task.Progress,
		CurrentStep: task.CurrentStep,
		Steps:       task.Steps,
		Result:      task.Result,
		Error:       task.LastError,
		RetryCount:  task.RetryCount,
		MaxRetries:  task.MaxRetries,
	}
}
