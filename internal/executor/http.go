package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antoniostano/brandstudio/internal/reliability"
	"github.com/antoniostano/brandstudio/internal/tasks"
)

// HTTPExecutor calls an executor exposing a JSON API:
//
//	POST {base}/tasks              createTask
//	GET  {base}/tasks/{id}         getTaskStatus
//	POST {base}/tasks/{id}/cancel  cancelTask
//	GET  {base}/tasks?brandId=...  listTasks
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
}

func NewHTTPExecutor(baseURL string, timeout time.Duration) *HTTPExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPExecutor{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (e *HTTPExecutor) CreateTask(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	var out CreateResponse
	if err := e.do(ctx, "createTask", http.MethodPost, "/tasks", req, &out); err != nil {
		return CreateResponse{}, err
	}
	if strings.TrimSpace(out.TaskID) == "" {
		return CreateResponse{}, &RemoteError{Op: "createTask", Message: "response missing taskId"}
	}
	return out, nil
}

func (e *HTTPExecutor) GetTaskStatus(ctx context.Context, taskID string) (StatusResponse, error) {
	var out StatusResponse
	path := "/tasks/" + url.PathEscape(taskID)
	if err := e.do(ctx, "getTaskStatus", http.MethodGet, path, nil, &out); err != nil {
		return StatusResponse{}, err
	}
	if out.TaskID == "" {
		out.TaskID = taskID
	}
	if !out.Status.Valid() {
		return StatusResponse{}, fmt.Errorf("executor getTaskStatus: unknown status %q", out.Status)
	}
	return out, nil
}

func (e *HTTPExecutor) CancelTask(ctx context.Context, taskID, userID string) (bool, error) {
	var out struct {
		Success bool `json:"success"`
	}
	path := "/tasks/" + url.PathEscape(taskID) + "/cancel"
	body := map[string]string{"userId": userID}
	if err := e.do(ctx, "cancelTask", http.MethodPost, path, body, &out); err != nil {
		return false, err
	}
	return out.Success, nil
}

func (e *HTTPExecutor) ListTasks(ctx context.Context, brandID string) ([]tasks.BackgroundTask, error) {
	var out struct {
		Tasks []tasks.BackgroundTask `json:"tasks"`
	}
	path := "/tasks?brandId=" + url.QueryEscape(brandID)
	if err := e.do(ctx, "listTasks", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (e *HTTPExecutor) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return reliability.Permanent(fmt.Errorf("marshal %s request: %w", op, err))
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
	if err != nil {
		return reliability.Permanent(fmt.Errorf("create %s request: %w", op, err))
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	res, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send %s request: %w", op, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		remote := &RemoteError{Op: op, StatusCode: res.StatusCode, Message: extractMessage(raw)}
		if res.StatusCode == http.StatusNotFound {
			return reliability.Permanent(fmt.Errorf("%w: %w", ErrTaskNotFound, remote))
		}
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return remote
		}
		return reliability.Permanent(remote)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 8<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func extractMessage(raw []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, k := range []string{"error", "message", "detail"} {
			if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return strings.TrimSpace(string(raw))
}
