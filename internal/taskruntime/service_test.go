package taskruntime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/brandstudio/internal/assets"
	"github.com/antoniostano/brandstudio/internal/config"
	"github.com/antoniostano/brandstudio/internal/executor"
	"github.com/antoniostano/brandstudio/internal/tasks"
)

type delayLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (l *delayLog) wait(ctx context.Context, d time.Duration) error {
	l.mu.Lock()
	l.delays = append(l.delays, d)
	l.mu.Unlock()
	return ctx.Err()
}

func (l *delayLog) list() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Duration(nil), l.delays...)
}

// blockingWait lets exactly one poll run per loop.
func blockingWait(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func testSettings() config.Settings {
	return config.Settings{
		Language:             "Italian",
		TotalPostsPerMonth:   8,
		TextGenerationModel:  "text-model",
		ImageGenerationModel: "image-model",
	}
}

func newTestService(t *testing.T, exec executor.Executor, cfg Config) (*Service, *delayLog) {
	t.Helper()
	if cfg.UserID == "" {
		cfg.UserID = "user-1"
	}
	if cfg.Settings == (config.Settings{}) {
		cfg.Settings = testSettings()
	}
	if cfg.GraceWindow == 0 {
		cfg.GraceWindow = time.Hour
	}
	svc := New(cfg, exec, nil, nil)
	log := &delayLog{}
	svc.wait = log.wait
	t.Cleanup(func() { _ = svc.Close() })
	return svc, log
}

func TestSubmitValidation(t *testing.T) {
	svc, _ := newTestService(t, executor.NewMockExecutor(), Config{})

	cases := []struct {
		name string
		req  SubmitRequest
	}{
		{name: "missing type", req: SubmitRequest{BrandID: "b"}},
		{name: "unknown type", req: SubmitRequest{Type: "MAKE_COFFEE", BrandID: "b"}},
		{name: "missing brand", req: SubmitRequest{Type: tasks.TaskTypeGenerateImage}},
		{name: "bad priority", req: SubmitRequest{Type: tasks.TaskTypeGenerateImage, BrandID: "b", Priority: "urgent"}},
		{
			name: "unserializable payload",
			req: SubmitRequest{
				Type:    tasks.TaskTypeGenerateImage,
				BrandID: "b",
				Payload: map[string]any{"callback": func() {}},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSubmission)
			var creation *TaskCreationError
			require.ErrorAs(t, err, &creation)
			assert.Equal(t, tc.req.Type, creation.Type)
		})
	}

	id, err := svc.Submit(context.Background(), SubmitRequest{Type: tasks.TaskTypeCreateBrandFromIdea})
	require.NoError(t, err, "bootstrap tasks need no brand")
	assert.NotEmpty(t, id)
}

func TestSubmitForwardsSettings(t *testing.T) {
	mock := executor.NewMockExecutor()
	svc, _ := newTestService(t, mock, Config{})
	ctx := context.Background()

	payload := map[string]any{"prompt": "sunset over the harbour"}
	_, err := svc.Submit(ctx, SubmitRequest{Type: tasks.TaskTypeGenerateImage, BrandID: "brand-1", Payload: payload})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, SubmitRequest{
		Type:    tasks.TaskTypeGenerateTrends,
		BrandID: "brand-2",
		Payload: map[string]any{"settings": "caller-owned"},
	})
	require.NoError(t, err)

	_, mutated := payload["settings"]
	assert.False(t, mutated, "caller payload is copied")

	list, err := mock.ListTasks(ctx, "brand-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "sunset over the harbour", list[0].Payload["prompt"])
	assert.Equal(t, testSettings().Payload(), list[0].Payload["settings"])
	assert.Equal(t, "user-1", list[0].UserID)
	assert.Equal(t, tasks.PriorityNormal, list[0].Priority)

	list, err = mock.ListTasks(ctx, "brand-2")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "caller-owned", list[0].Payload["settings"])
}

func TestSubmitReportsRemoteRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"brand is archived"}`))
	}))
	defer srv.Close()

	svc, _ := newTestService(t, executor.NewHTTPExecutor(srv.URL, time.Second), Config{})
	_, err := svc.Submit(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateMediaPlan, BrandID: "brand-1"})

	var creation *TaskCreationError
	require.ErrorAs(t, err, &creation)
	assert.Equal(t, http.StatusUnprocessableEntity, creation.StatusCode)
	assert.Equal(t, "brand is archived", creation.Message)
	assert.Equal(t, tasks.TaskTypeGenerateMediaPlan, creation.Type)
	assert.NotErrorIs(t, err, ErrInvalidSubmission)
}

func TestGenerateImageTaskLifecycle(t *testing.T) {
	mock := executor.NewMockExecutor()
	mock.Script(tasks.TaskTypeGenerateImage,
		executor.StatusResponse{Status: tasks.TaskStatusProcessing, Progress: 30, CurrentStep: "render"},
		executor.StatusResponse{Status: tasks.TaskStatusProcessing, Progress: 70, CurrentStep: "upload"},
		executor.StatusResponse{
			Status:   tasks.TaskStatusCompleted,
			Progress: 100,
			Result:   map[string]any{"imageUrl": "https://cdn.example/img-1.png", "imageKey": "img-1"},
		},
	)
	svc, delays := newTestService(t, mock, Config{GraceWindow: 40 * time.Millisecond})

	store := assets.NewStore(&assets.Document{
		ID: "brand-1",
		MediaPlans: []*assets.MediaPlanGroup{{
			ID:   "P1",
			Plan: []*assets.MediaPlanWeek{{Week: 1, Posts: []*assets.MediaPlanPost{{ID: "post-1"}}}},
		}},
	}, nil)
	svc.RegisterAssetCompletions(store)

	var (
		mu        sync.Mutex
		notified  []tasks.TaskStatus
		refreshed []string
	)
	svc.OnNotify(func(_ string, status tasks.TaskStatus) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, status)
	})
	svc.OnRefresh(func(brandID string) {
		mu.Lock()
		defer mu.Unlock()
		refreshed = append(refreshed, brandID)
	})

	task, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{
		Type:    tasks.TaskTypeGenerateImage,
		BrandID: "brand-1",
		Payload: map[string]any{"planId": "P1", "postId": "post-1"},
	}, TrackOptions{})
	require.NoError(t, err)
	assert.Equal(t, tasks.TaskStatusQueued, task.Status)

	require.Eventually(t, func() bool { return svc.Notifications().Len() == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, 3, mock.Calls())
	assert.Equal(t, []time.Duration{time.Second, 1500 * time.Millisecond}, delays.list())

	n, ok := svc.Notifications().Get(task.TaskID)
	require.True(t, ok)
	assert.Equal(t, tasks.TaskStatusCompleted, n.Task.Status)
	assert.Equal(t, 100, n.Task.Progress)
	require.NotNil(t, n.Task.CompletedAt)

	require.Eventually(t, func() bool { return svc.Registry().Len() == 0 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, 1, svc.Notifications().Len(), "grace removal leaves notifications alone")
	assert.False(t, svc.Polling(task.TaskID))

	doc := store.Snapshot()
	assert.Equal(t, "https://cdn.example/img-1.png", doc.GeneratedImages["img-1"])
	assert.Equal(t, "img-1", doc.MediaPlans[0].Plan[0].Posts[0].ImageKey)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []tasks.TaskStatus{tasks.TaskStatusCompleted}, notified)
	assert.Equal(t, []string{"brand-1"}, refreshed)
}

func TestGeneratedImageKeyComesFromPayload(t *testing.T) {
	mock := executor.NewMockExecutor()
	mock.Script(tasks.TaskTypeGenerateImage,
		executor.StatusResponse{Status: tasks.TaskStatusProcessing},
		executor.StatusResponse{Status: tasks.TaskStatusProcessing},
		executor.StatusResponse{Status: tasks.TaskStatusCompleted, Result: map[string]any{"url": "https://cdn.example/tea.png"}},
	)
	svc, _ := newTestService(t, mock, Config{})
	store := assets.NewStore(&assets.Document{ID: "B1"}, nil)
	svc.RegisterAssetCompletions(store)

	_, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{
		Type:    tasks.TaskTypeGenerateImage,
		BrandID: "B1",
		Payload: map[string]any{"mediaPrompt": "a cup of tea", "imageKey": "k1"},
	}, TrackOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return svc.Notifications().Len() == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, 3, mock.Calls())
	assert.Equal(t, "https://cdn.example/tea.png", store.Snapshot().GeneratedImages["k1"])
}

func TestPollingBacksOffAndGivesUp(t *testing.T) {
	mock := executor.NewMockExecutor()
	mock.Script(tasks.TaskTypeGenerateTrends, executor.StatusResponse{Status: tasks.TaskStatusProcessing, Progress: 10})
	svc, delays := newTestService(t, mock, Config{})

	task, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateTrends, BrandID: "brand-1"}, TrackOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !svc.Polling(task.TaskID) }, time.Second, 2*time.Millisecond)
	assert.Equal(t, 10, mock.Calls())
	assert.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		5062500 * time.Microsecond,
		7593750 * time.Microsecond,
		11390625 * time.Microsecond,
		17085937500 * time.Nanosecond,
		25628906250 * time.Nanosecond,
	}, delays.list())

	got, err := svc.Registry().Get(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, tasks.TaskStatusProcessing, got.Status, "abandoned task keeps its last status")
	assert.Zero(t, svc.Notifications().Len())
}

func TestPollingBackoffIsCapped(t *testing.T) {
	mock := executor.NewMockExecutor()
	mock.Script(tasks.TaskTypeGenerateTrends, executor.StatusResponse{Status: tasks.TaskStatusProcessing})
	svc, delays := newTestService(t, mock, Config{
		BaseDelay:   time.Second,
		Growth:      3,
		MaxDelay:    5 * time.Second,
		MaxAttempts: 4,
	})

	task, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateTrends, BrandID: "b"}, TrackOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !svc.Polling(task.TaskID) }, time.Second, 2*time.Millisecond)
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second, 5 * time.Second}, delays.list())
}

type flakyExecutor struct {
	*executor.MockExecutor
	mu       sync.Mutex
	failures int
}

func (f *flakyExecutor) GetTaskStatus(ctx context.Context, taskID string) (executor.StatusResponse, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return executor.StatusResponse{}, errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.MockExecutor.GetTaskStatus(ctx, taskID)
}

func TestTransientPollErrorsAreRetried(t *testing.T) {
	flaky := &flakyExecutor{MockExecutor: executor.NewMockExecutor(), failures: 2}
	svc, delays := newTestService(t, flaky, Config{})

	task, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateViralIdeas, BrandID: "b"}, TrackOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return svc.Notifications().Len() == 1 }, time.Second, 2*time.Millisecond)
	got, err := svc.Registry().Get(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, tasks.TaskStatusCompleted, got.Status)
	assert.Len(t, delays.list(), 2, "each failed attempt waits on the normal schedule")
}

func TestPollingStopsWhenExecutorForgetsTask(t *testing.T) {
	mock := executor.NewMockExecutor()
	svc, delays := newTestService(t, mock, Config{})

	_, err := svc.Track(tasks.BackgroundTask{TaskID: "ghost", BrandID: "b", Type: tasks.TaskTypeGenerateTrends}, TrackOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !svc.Polling("ghost") }, time.Second, 2*time.Millisecond)
	assert.Equal(t, 1, mock.Calls())
	assert.Empty(t, delays.list())
	got, err := svc.Registry().Get("ghost")
	require.NoError(t, err)
	assert.Equal(t, tasks.TaskStatusQueued, got.Status)
}

func TestSlowHostCallbackDoesNotLoseCompletions(t *testing.T) {
	mock := executor.NewMockExecutor()
	mock.Script(tasks.TaskTypeGenerateImage, executor.StatusResponse{Status: tasks.TaskStatusProcessing})
	svc, _ := newTestService(t, mock, Config{})

	release := make(chan struct{})
	defer close(release)
	var blocked atomic.Bool
	svc.OnRefresh(func(string) {
		if blocked.CompareAndSwap(false, true) {
			<-release
		}
	})
	var mu sync.Mutex
	notified := map[string]bool{}
	svc.OnNotify(func(id string, _ tasks.TaskStatus) {
		mu.Lock()
		notified[id] = true
		mu.Unlock()
	})

	first, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateTrends, BrandID: "b"}, TrackOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := svc.Notifications().Get(first.TaskID)
		return ok
	}, time.Second, 2*time.Millisecond)

	for i := 0; i < 30; i++ {
		_, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateImage, BrandID: "b"}, TrackOptions{})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return mock.Calls() >= 1+30*10 }, 2*time.Second, 2*time.Millisecond)

	last, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateTrends, BrandID: "b"}, TrackOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return notified[last.TaskID]
	}, time.Second, 2*time.Millisecond)
	_, ok := svc.Notifications().Get(last.TaskID)
	assert.True(t, ok)
}

func TestTrackTwiceStartsOneLoop(t *testing.T) {
	mock := executor.NewMockExecutor()
	mock.Script(tasks.TaskTypeGenerateImage, executor.StatusResponse{Status: tasks.TaskStatusProcessing})
	svc, _ := newTestService(t, mock, Config{})
	svc.wait = blockingWait

	id, err := svc.Submit(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateImage, BrandID: "b"})
	require.NoError(t, err)
	record := tasks.BackgroundTask{TaskID: id, BrandID: "b", Type: tasks.TaskTypeGenerateImage}
	_, err = svc.Track(record, TrackOptions{})
	require.NoError(t, err)
	_, err = svc.Track(record, TrackOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return mock.Calls() >= 1 }, time.Second, 2*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, mock.Calls())
	assert.Equal(t, 1, svc.Registry().Len())
}

func TestUntrackStopsPolling(t *testing.T) {
	mock := executor.NewMockExecutor()
	mock.Script(tasks.TaskTypeGenerateImage, executor.StatusResponse{Status: tasks.TaskStatusProcessing})
	svc, _ := newTestService(t, mock, Config{})
	svc.wait = blockingWait

	task, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateImage, BrandID: "b"}, TrackOptions{})
	require.NoError(t, err)
	require.True(t, svc.Polling(task.TaskID))

	svc.Untrack(task.TaskID)
	assert.False(t, svc.Polling(task.TaskID))
	assert.Zero(t, svc.Registry().Len())

	svc.Untrack(task.TaskID)
	svc.Untrack("never-tracked")
}

func TestSilentTasksDoNotNotify(t *testing.T) {
	mock := executor.NewMockExecutor()
	svc, _ := newTestService(t, mock, Config{})

	var calls int
	var mu sync.Mutex
	svc.OnNotify(func(string, tasks.TaskStatus) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	quiet, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateTrends, BrandID: "b"}, TrackOptions{Silent: true})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := svc.Registry().Get(quiet.TaskID)
		return err == nil && got.Status == tasks.TaskStatusCompleted
	}, time.Second, 2*time.Millisecond)

	loud, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateTrends, BrandID: "b"}, TrackOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return svc.Notifications().Len() == 1 }, time.Second, 2*time.Millisecond)

	_, ok := svc.Notifications().Get(loud.TaskID)
	assert.True(t, ok)
	_, ok = svc.Notifications().Get(quiet.TaskID)
	assert.False(t, ok)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestLoadBrandTasksReplacesRegistry(t *testing.T) {
	mock := executor.NewMockExecutor()
	now := time.Now().UTC()
	mock.Seed(tasks.BackgroundTask{TaskID: "t-running", BrandID: "brand-1", Type: tasks.TaskTypeGenerateMediaPlan, Status: tasks.TaskStatusProcessing, QueuedAt: now})
	mock.Seed(tasks.BackgroundTask{TaskID: "t-done", BrandID: "brand-1", Type: tasks.TaskTypeGenerateTrends, Status: tasks.TaskStatusCompleted, QueuedAt: now.Add(-time.Minute)})
	mock.Seed(tasks.BackgroundTask{TaskID: "t-other", BrandID: "brand-2", Type: tasks.TaskTypeGenerateTrends, Status: tasks.TaskStatusQueued, QueuedAt: now})
	mock.Script(tasks.TaskTypeGenerateImage, executor.StatusResponse{Status: tasks.TaskStatusProcessing})

	svc, _ := newTestService(t, mock, Config{})
	svc.wait = blockingWait
	local, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateImage, BrandID: "brand-0"}, TrackOptions{})
	require.NoError(t, err)
	require.True(t, svc.Polling(local.TaskID))

	list, err := svc.LoadBrandTasks(context.Background(), "brand-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, svc.Polling(local.TaskID))
	_, err = svc.Registry().Get(local.TaskID)
	assert.ErrorIs(t, err, tasks.ErrTaskNotFound)
	_, err = svc.Registry().Get("t-other")
	assert.ErrorIs(t, err, tasks.ErrTaskNotFound)

	require.Eventually(t, func() bool {
		got, err := svc.Registry().Get("t-running")
		return err == nil && got.Status == tasks.TaskStatusCompleted
	}, time.Second, 2*time.Millisecond)
	assert.Zero(t, svc.Notifications().Len(), "reloaded tasks are tracked silently")
}

func TestReloadKeepsSubmittedTasksNotifying(t *testing.T) {
	mock := executor.NewMockExecutor()
	mock.Script(tasks.TaskTypeGenerateTrends,
		executor.StatusResponse{Status: tasks.TaskStatusProcessing},
		executor.StatusResponse{Status: tasks.TaskStatusCompleted},
	)
	svc, _ := newTestService(t, mock, Config{})
	gate := make(chan struct{})
	svc.wait = func(ctx context.Context, _ time.Duration) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	task, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateTrends, BrandID: "b"}, TrackOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return mock.Calls() == 1 }, time.Second, 2*time.Millisecond)

	list, err := svc.LoadBrandTasks(context.Background(), "b")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, svc.Polling(task.TaskID))

	close(gate)
	require.Eventually(t, func() bool {
		_, ok := svc.Notifications().Get(task.TaskID)
		return ok
	}, time.Second, 2*time.Millisecond)
}

func TestCancelTaskIsAdvisory(t *testing.T) {
	mock := executor.NewMockExecutor()
	mock.Script(tasks.TaskTypeGenerateImage, executor.StatusResponse{Status: tasks.TaskStatusProcessing})
	svc, _ := newTestService(t, mock, Config{})
	svc.wait = blockingWait

	task, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateImage, BrandID: "b"}, TrackOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return mock.Calls() == 1 }, time.Second, 2*time.Millisecond)

	ok, err := svc.CancelTask(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{task.TaskID}, mock.CancelledIDs())

	got, err := svc.Registry().Get(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, tasks.TaskStatusProcessing, got.Status, "local status waits for a poll")

	_, err = svc.CancelTask(context.Background(), "missing")
	assert.ErrorIs(t, err, executor.ErrTaskNotFound)
}

func TestBootstrapTaskRefreshesCreatedBrand(t *testing.T) {
	mock := executor.NewMockExecutor()
	mock.Script(tasks.TaskTypeCreateBrandFromIdea, executor.StatusResponse{
		Status: tasks.TaskStatusCompleted,
		Result: map[string]any{"brandId": "brand-9"},
	})
	svc, _ := newTestService(t, mock, Config{})

	refreshed := make(chan string, 1)
	svc.OnRefresh(func(brandID string) { refreshed <- brandID })

	_, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeCreateBrandFromIdea}, TrackOptions{})
	require.NoError(t, err)
	select {
	case got := <-refreshed:
		assert.Equal(t, "brand-9", got)
	case <-time.After(time.Second):
		t.Fatal("refresh callback not invoked")
	}
}

func TestCloseStopsEverything(t *testing.T) {
	mock := executor.NewMockExecutor()
	mock.Script(tasks.TaskTypeGenerateImage, executor.StatusResponse{Status: tasks.TaskStatusProcessing})
	svc := New(Config{}, mock, nil, nil)
	svc.wait = blockingWait

	task, err := svc.SubmitAndTrack(context.Background(), SubmitRequest{Type: tasks.TaskTypeGenerateImage, BrandID: "b"}, TrackOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.Close())
	assert.False(t, svc.Polling(task.TaskID))
	require.NoError(t, svc.Close())

	_, err = svc.Track(tasks.BackgroundTask{TaskID: "late", Type: tasks.TaskTypeGenerateImage}, TrackOptions{})
	require.NoError(t, err)
	assert.False(t, svc.Polling("late"))
}
