package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/brandstudio/internal/assets"
	"github.com/antoniostano/brandstudio/internal/autosave"
	"github.com/antoniostano/brandstudio/internal/config"
	"github.com/antoniostano/brandstudio/internal/documents"
	"github.com/antoniostano/brandstudio/internal/observability"
	"github.com/antoniostano/brandstudio/internal/policy"
	"github.com/antoniostano/brandstudio/internal/taskruntime"
)

// Deps are the components the HTTP surface drives.
type Deps struct {
	Runtime   *taskruntime.Service
	Assets    *assets.Store
	Autosave  *autosave.Synchronizer
	Documents documents.Store
	StoreMode string
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

type Server struct {
	cfg       config.Config
	runtime   *taskruntime.Service
	assets    *assets.Store
	autosave  *autosave.Synchronizer
	documents documents.Store
	storeMode string
	metrics   *observability.Metrics
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = observability.Discard()
	}
	return &Server{
		cfg:       cfg,
		runtime:   deps.Runtime,
		assets:    deps.Assets,
		autosave:  deps.Autosave,
		documents: deps.Documents,
		storeMode: deps.StoreMode,
		metrics:   deps.Metrics,
		logger:    logger.With("component", "httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only subscribe from the same origin unless
				// explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/settings", s.handleSettings)
		r.Get("/stats/tasks", s.handleTaskStats)
		r.Get("/events", s.handleEventsWS)

		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/active", s.handleListActiveTasks)
		r.Post("/tasks", s.handleCreateTask)
		r.Delete("/tasks/{id}", s.handleUntrackTask)
		r.Post("/tasks/{id}/cancel", s.handleCancelTask)
		r.Post("/brands/{id}/tasks/reload", s.handleReloadBrandTasks)
		r.Post("/brands/{id}/load", s.handleLoadBrand)

		r.Get("/notifications", s.handleListNotifications)
		r.Delete("/notifications/{id}", s.handleDismissNotification)

		r.Get("/assets", s.handleGetAssets)
		r.Post("/assets/actions", s.handleAssetAction)
		r.Get("/autosave", s.handleAutosaveStatus)
		r.Post("/autosave/force", s.handleForceSave)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"executor_mode":       s.cfg.Executor.Mode,
		"document_store_mode": s.documentStoreMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := s.runtime != nil && s.assets != nil
	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "starting"
	}
	respondJSON(w, status, map[string]any{
		"status":              state,
		"executor_mode":       s.cfg.Executor.Mode,
		"document_store_mode": s.documentStoreMode(),
	})
}

func (s *Server) documentStoreMode() string {
	mode := strings.TrimSpace(s.storeMode)
	if mode == "" {
		return "disabled"
	}
	return mode
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondUpstream reports a failure from the executor or document store.
// Remote messages can echo connection strings or tokens back, so they are
// scrubbed first.
func (s *Server) respondUpstream(w http.ResponseWriter, code string, err error) {
	s.logger.Warn("upstream call failed", "code", code, "error", policy.Redact(err.Error()))
	respondError(w, http.StatusBadGateway, code, policy.Redact(err.Error()))
}
