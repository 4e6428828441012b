package httpapi

import "net/http"

type settingsResponse struct {
	Generation   map[string]any `json:"generation"`
	ExecutorMode string         `json:"executorMode"`
	Polling      pollingView    `json:"polling"`
	Autosave     autosaveView   `json:"autosave"`
}

type pollingView struct {
	BaseDelayMS   int64   `json:"baseDelayMs"`
	Growth        float64 `json:"growth"`
	MaxDelayMS    int64   `json:"maxDelayMs"`
	MaxAttempts   int     `json:"maxAttempts"`
	GraceWindowMS int64   `json:"graceWindowMs"`
}

type autosaveView struct {
	DebounceMS      int64 `json:"debounceMs"`
	MaxRetries      int   `json:"maxRetries"`
	RetryDelayMS    int64 `json:"retryDelayMs"`
	StatusDisplayMS int64 `json:"statusDisplayMs"`
}

func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	p, a := s.cfg.Polling, s.cfg.Autosave
	respondJSON(w, http.StatusOK, settingsResponse{
		Generation:   s.cfg.Settings.Payload(),
		ExecutorMode: s.cfg.Executor.Mode,
		Polling: pollingView{
			BaseDelayMS:   p.BaseDelay.Milliseconds(),
			Growth:        p.Growth,
			MaxDelayMS:    p.MaxDelay.Milliseconds(),
			MaxAttempts:   p.MaxAttempts,
			GraceWindowMS: p.GraceWindow.Milliseconds(),
		},
		Autosave: autosaveView{
			DebounceMS:      a.Debounce.Milliseconds(),
			MaxRetries:      a.MaxRetries,
			RetryDelayMS:    a.RetryDelay.Milliseconds(),
			StatusDisplayMS: a.StatusDisplay.Milliseconds(),
		},
	})
}
