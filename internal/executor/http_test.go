package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/brandstudio/internal/reliability"
	"github.com/antoniostano/brandstudio/internal/tasks"
)

func TestHTTPExecutorCreateTask(t *testing.T) {
	var got CreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/tasks", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"taskId": "t-1"})
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(srv.URL+"/", time.Second)
	resp, err := exec.CreateTask(context.Background(), CreateRequest{
		Type:     tasks.TaskTypeGenerateImage,
		Payload:  map[string]any{"prompt": "a cat"},
		UserID:   "u1",
		BrandID:  "b1",
		Priority: tasks.PriorityNormal,
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", resp.TaskID)
	assert.Equal(t, tasks.TaskTypeGenerateImage, got.Type)
	assert.Equal(t, "a cat", got.Payload["prompt"])
	assert.Equal(t, "b1", got.BrandID)
}

func TestHTTPExecutorCreateTaskMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewHTTPExecutor(srv.URL, time.Second).CreateTask(context.Background(), CreateRequest{})
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "taskId")
}

func TestHTTPExecutorErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		code      int
		body      string
		retryable bool
		message   string
	}{
		{name: "bad request", code: 400, body: `{"error":"payload rejected"}`, retryable: false, message: "payload rejected"},
		{name: "overloaded", code: 503, body: `{"message":"try later"}`, retryable: true, message: "try later"},
		{name: "plain text", code: 502, body: "gateway down", retryable: true, message: "gateway down"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewHTTPExecutor(srv.URL, time.Second).CreateTask(context.Background(), CreateRequest{})
			require.Error(t, err)
			assert.Equal(t, tc.retryable, reliability.IsRetryable(err))
			var remote *RemoteError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, tc.code, remote.StatusCode)
			assert.Equal(t, tc.message, remote.Message)
		})
	}
}

func TestHTTPExecutorGetTaskStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tasks/t-1":
			_, _ = w.Write([]byte(`{"status":"processing","progress":40,"currentStep":"render"}`))
		case "/tasks/t-2":
			_, _ = w.Write([]byte(`{"status":"exploded"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"no such task"}`))
		}
	}))
	defer srv.Close()
	exec := NewHTTPExecutor(srv.URL, time.Second)

	status, err := exec.GetTaskStatus(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", status.TaskID)
	assert.Equal(t, tasks.TaskStatusProcessing, status.Status)
	assert.Equal(t, 40, status.Progress)

	patch := status.Patch()
	require.NotNil(t, patch.Status)
	assert.Equal(t, tasks.TaskStatusProcessing, *patch.Status)
	require.NotNil(t, patch.CurrentStep)
	assert.Equal(t, "render", *patch.CurrentStep)
	assert.Nil(t, patch.LastError)

	_, err = exec.GetTaskStatus(context.Background(), "t-2")
	require.Error(t, err)

	_, err = exec.GetTaskStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.False(t, reliability.IsRetryable(err))
}

func TestHTTPExecutorCancelAndList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/tasks/t-1/cancel":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "u1", body["userId"])
			_, _ = w.Write([]byte(`{"success":true}`))
		case r.Method == http.MethodGet && r.URL.Path == "/tasks":
			assert.Equal(t, "brand 7", r.URL.Query().Get("brandId"))
			_, _ = w.Write([]byte(`{"tasks":[{"taskId":"a","type":"GENERATE_TRENDS","status":"queued"}]}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()
	exec := NewHTTPExecutor(srv.URL, time.Second)

	ok, err := exec.CancelTask(context.Background(), "t-1", "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := exec.ListTasks(context.Background(), "brand 7")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tasks.TaskTypeGenerateTrends, list[0].Type)
}

func TestHTTPExecutorHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewHTTPExecutor(srv.URL, time.Second).GetTaskStatus(ctx, "t-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
