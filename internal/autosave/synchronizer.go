// Package autosave persists the brand document after edits settle.
package autosave

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/antoniostano/brandstudio/internal/assets"
	"github.com/antoniostano/brandstudio/internal/observability"
)

type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// Saver is the subset of documents.Store autosave needs.
type Saver interface {
	CreateOrUpdate(ctx context.Context, doc *assets.Document, id string) (string, error)
}

type Config struct {
	Debounce      time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	StatusDisplay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = 2 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.StatusDisplay <= 0 {
		c.StatusDisplay = 3 * time.Second
	}
	return c
}

// Snapshot is the externally visible autosave state.
type Snapshot struct {
	Status     Status `json:"status"`
	DocumentID string `json:"documentId,omitempty"`
	Saving     bool   `json:"saving"`
	Pending    bool   `json:"pending"`
	LastError  string `json:"lastError,omitempty"`
}

// Synchronizer watches documents and saves the tracked subset after a
// quiet period. At most one save runs at a time.
type Synchronizer struct {
	cfg     Config
	saver   Saver
	logger  *slog.Logger
	metrics *observability.Metrics

	mu          sync.Mutex
	baseCtx     context.Context
	timer       *time.Timer
	timerGen    int
	saving      bool
	docID       string
	latest      *assets.Document
	latestHash  uint64
	savedHash   uint64
	status      Status
	statusGen   int
	statusTimer *time.Timer
	lastErr     error

	subscribers map[int]chan Status
	nextSubID   int
}

func New(cfg Config, saver Saver, logger *slog.Logger, metrics *observability.Metrics) *Synchronizer {
	if logger == nil {
		logger = observability.Discard()
	}
	empty := assets.ContentHash(nil)
	return &Synchronizer{
		cfg:         cfg.withDefaults(),
		saver:       saver,
		logger:      logger.With("component", "autosave"),
		metrics:     metrics,
		baseCtx:     context.Background(),
		latestHash:  empty,
		savedHash:   empty,
		status:      StatusIdle,
		subscribers: make(map[int]chan Status),
	}
}

// Run observes docs until ctx is done or docs is closed, then stops all
// timers. Saves started by Run use ctx.
func (s *Synchronizer) Run(ctx context.Context, docs <-chan *assets.Document) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	defer s.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case doc, ok := <-docs:
			if !ok {
				return
			}
			s.Observe(doc)
		}
	}
}

// Observe records doc as the latest state and arms the debounce timer if
// its tracked subset differs from the last saved one.
func (s *Synchronizer) Observe(doc *assets.Document) {
	if doc == nil {
		return
	}
	h := assets.ContentHash(doc)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = doc
	s.latestHash = h
	if doc.ID != "" {
		s.docID = doc.ID
	}
	if h == s.savedHash {
		s.stopTimerLocked()
		return
	}
	s.armLocked()
}

// ForceSave saves now when nothing is in flight and a document id is
// known. It reports whether a save was started.
func (s *Synchronizer) ForceSave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saving || s.latest == nil || s.documentIDLocked() == "" {
		return false
	}
	s.stopTimerLocked()
	s.lastErr = nil
	s.startSaveLocked()
	return true
}

// SyncLastSaved declares doc as already persisted.
func (s *Synchronizer) SyncLastSaved(doc *assets.Document) {
	h := assets.ContentHash(doc)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedHash = h
	s.latest = doc
	s.latestHash = h
	if doc != nil && doc.ID != "" {
		s.docID = doc.ID
	}
	s.stopTimerLocked()
}

// MarkSaved records that doc was persisted by someone else, such as an
// immediate save of one action. The latest observed document is kept: it
// may already be newer than doc, and is still saved if it differs.
func (s *Synchronizer) MarkSaved(doc *assets.Document) {
	h := assets.ContentHash(doc)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedHash = h
	if doc != nil && doc.ID != "" && s.docID == "" {
		s.docID = doc.ID
	}
	if s.latestHash == h {
		s.stopTimerLocked()
	}
}

func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError is the error of the last failed save. It is kept until a save
// succeeds or ForceSave is called, even after Status reverts to idle.
func (s *Synchronizer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Synchronizer) DocumentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentIDLocked()
}

func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{
		Status:     s.status,
		DocumentID: s.documentIDLocked(),
		Saving:     s.saving,
		Pending:    s.timer != nil,
	}
	if s.lastErr != nil {
		out.LastError = s.lastErr.Error()
	}
	return out
}

// SubscribeStatus delivers status changes. Slow readers miss updates
// rather than block saves.
func (s *Synchronizer) SubscribeStatus() (<-chan Status, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Status, 16)
	s.subscribers[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
}

// Stop cancels pending timers. A save already in flight completes.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	if s.statusTimer != nil {
		s.statusTimer.Stop()
		s.statusTimer = nil
	}
}

func (s *Synchronizer) documentIDLocked() string {
	if s.latest != nil && s.latest.ID != "" {
		return s.latest.ID
	}
	return s.docID
}

// armLocked replaces any pending timer. The generation check drops a timer
// that fired while being replaced.
func (s *Synchronizer) armLocked() {
	s.stopTimerLocked()
	gen := s.timerGen
	s.timer = time.AfterFunc(s.cfg.Debounce, func() { s.fire(gen) })
}

func (s *Synchronizer) stopTimerLocked() {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Synchronizer) fire(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.timerGen {
		return
	}
	s.timer = nil
	if s.saving {
		s.logger.Debug("save in flight, skipping debounced save")
		return
	}
	s.startSaveLocked()
}

func (s *Synchronizer) startSaveLocked() {
	s.saving = true
	doc, hash, id, ctx := s.latest, s.latestHash, s.documentIDLocked(), s.baseCtx
	s.setStatusLocked(StatusSaving)
	go s.save(ctx, doc, hash, id)
}

func (s *Synchronizer) save(ctx context.Context, doc *assets.Document, hash uint64, id string) {
	var (
		savedID string
		err     error
	)
	for attempt := 0; ; attempt++ {
		savedID, err = s.saver.CreateOrUpdate(ctx, doc, id)
		s.metrics.ObserveAutosave(err)
		if err == nil || attempt >= s.cfg.MaxRetries || ctx.Err() != nil {
			break
		}
		s.logger.Warn("autosave failed, retrying", "attempt", attempt+1, "error", err)
		t := time.NewTimer(s.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		s.lastErr = err
		s.logger.Error("autosave gave up", "retries", s.cfg.MaxRetries, "error", err)
		s.setStatusLocked(StatusError)
		return
	}
	s.lastErr = nil
	s.savedHash = hash
	if savedID != "" {
		s.docID = savedID
	}
	s.setStatusLocked(StatusSaved)
	if s.latestHash != s.savedHash && s.timer == nil {
		s.armLocked()
	}
}

func (s *Synchronizer) setStatusLocked(st Status) {
	s.statusGen++
	if s.statusTimer != nil {
		s.statusTimer.Stop()
		s.statusTimer = nil
	}
	s.status = st
	s.metrics.SetAutosaveStatus(string(st))
	s.publishLocked(st)
	if st != StatusSaved && st != StatusError {
		return
	}
	gen := s.statusGen
	s.statusTimer = time.AfterFunc(s.cfg.StatusDisplay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.statusGen {
			return
		}
		s.statusTimer = nil
		s.status = StatusIdle
		s.metrics.SetAutosaveStatus(string(StatusIdle))
		s.publishLocked(StatusIdle)
	})
}

func (s *Synchronizer) publishLocked(st Status) {
	for _, ch := range s.subscribers {
		select {
		case ch <- st:
		default:
		}
	}
}
