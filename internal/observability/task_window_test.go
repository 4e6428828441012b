package observability

import (
	"errors"
	"testing"
	"time"
)

func TestTaskWindowSnapshot(t *testing.T) {
	w := newTaskWindow(8)
	w.Observe("GENERATE_IMAGE", 500)
	w.Observe("GENERATE_IMAGE", 700)
	w.Observe("GENERATE_IMAGE", 900)
	w.Observe("", 100)
	w.ObserveIndicator("poll_abandoned")
	w.ObserveIndicator("poll_abandoned")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Types) != 1 {
		t.Fatalf("len(Types) = %d, want 1", len(snap.Types))
	}
	s := snap.Types[0]
	if s.TaskType != "GENERATE_IMAGE" {
		t.Fatalf("TaskType = %q, want %q", s.TaskType, "GENERATE_IMAGE")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 || s.MaxMS != 900 {
		t.Fatalf("LastMS, MaxMS = %.2f, %.2f, want 900, 900", s.LastMS, s.MaxMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want one entry with count 2", snap.Indicators)
	}
}

func TestTaskWindowWrapsAround(t *testing.T) {
	w := newTaskWindow(2)
	for _, ms := range []float64{10, 20, 30} {
		w.Observe("GENERATE_TRENDS", ms)
	}
	s := w.Snapshot().Types[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 25 {
		t.Fatalf("AvgMS = %.2f, want 25", s.AvgMS)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSubmission("GENERATE_IMAGE", errors.New("boom"))
	m.ObservePoll("ok")
	m.ObserveTransition("GENERATE_IMAGE", "completed")
	m.ObserveTaskDuration("GENERATE_IMAGE", time.Second)
	m.SetActiveTasks(3)
	m.ObserveAssetAction("UPDATE_POST", nil)
	m.ObserveAutosave(nil)
	m.SetAutosaveStatus("saved")
	m.ObserveFailover("primary")
	m.ObserveWSMessage("out", "task_updated")
	if got := m.TaskStats(); len(got.Types) != 0 {
		t.Fatalf("TaskStats() = %+v, want empty", got)
	}
}
