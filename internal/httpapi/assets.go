package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/brandstudio/internal/assets"
	"github.com/antoniostano/brandstudio/internal/documents"
)

func (s *Server) assetsAvailable(w http.ResponseWriter) bool {
	if s.assets == nil {
		respondError(w, http.StatusNotImplemented, "assets_unavailable", "Assets store is not configured.")
		return false
	}
	return true
}

func (s *Server) handleGetAssets(w http.ResponseWriter, _ *http.Request) {
	if !s.assetsAvailable(w) {
		return
	}
	doc := s.assets.Snapshot()
	if doc == nil {
		doc = &assets.Document{}
	}
	respondJSON(w, http.StatusOK, doc)
}

// handleAssetAction applies one action. With ?persist=true a compensable
// action is saved right away and rolled back if the save fails; every
// other action is left to autosave.
func (s *Server) handleAssetAction(w http.ResponseWriter, r *http.Request) {
	if !s.assetsAvailable(w) {
		return
	}
	var env assets.Envelope
	if err := decodeJSON(r, &env); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	action, err := assets.DecodeAction(env)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_action", err.Error())
		return
	}

	persist, _ := strconv.ParseBool(r.URL.Query().Get("persist"))
	var doc *assets.Document
	if persist && s.documents != nil {
		doc, err = s.assets.Optimistic(r.Context(), action, s.persistDocument)
		if errors.Is(err, assets.ErrNoCompensation) {
			doc, err = s.assets.Dispatch(action)
		}
	} else {
		doc, err = s.assets.Dispatch(action)
	}
	if err != nil {
		if isReducerError(err) {
			respondError(w, http.StatusUnprocessableEntity, "action_rejected", err.Error())
			return
		}
		s.respondUpstream(w, "persist_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) persistDocument(ctx context.Context, doc *assets.Document) error {
	if _, err := s.documents.CreateOrUpdate(ctx, doc, doc.ID); err != nil {
		return err
	}
	if s.autosave != nil {
		s.autosave.MarkSaved(doc)
	}
	return nil
}

func isReducerError(err error) bool {
	for _, target := range []error{
		assets.ErrUnknownAction,
		assets.ErrPlanNotFound,
		assets.ErrPostNotFound,
		assets.ErrPostRefMismatch,
		assets.ErrMissingID,
		assets.ErrDuplicateID,
		assets.ErrPersonaNotFound,
		assets.ErrIndexOutOfRange,
		assets.ErrInvalidReference,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// handleLoadBrand switches the session to another brand: the stored
// document replaces the current one and the brand's tasks are reloaded.
func (s *Server) handleLoadBrand(w http.ResponseWriter, r *http.Request) {
	if !s.assetsAvailable(w) {
		return
	}
	if s.documents == nil {
		respondError(w, http.StatusNotImplemented, "documents_unavailable", "Document store is not configured.")
		return
	}
	brandID := strings.TrimSpace(chi.URLParam(r, "id"))
	if brandID == "" {
		respondError(w, http.StatusBadRequest, "invalid_brand_id", "missing brand id")
		return
	}

	doc, err := s.documents.Load(r.Context(), brandID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			respondError(w, http.StatusNotFound, "brand_not_found", err.Error())
			return
		}
		s.respondUpstream(w, "document_load_failed", err)
		return
	}
	if s.autosave != nil {
		s.autosave.SyncLastSaved(doc)
	}
	if _, err := s.assets.Dispatch(assets.Hydrate{Document: doc}); err != nil {
		respondError(w, http.StatusInternalServerError, "hydrate_failed", err.Error())
		return
	}
	if s.runtime != nil {
		if _, err := s.runtime.LoadBrandTasks(r.Context(), brandID); err != nil {
			s.logger.Warn("reloading brand tasks failed", "brand_id", brandID, "error", err)
		}
	}
	respondJSON(w, http.StatusOK, s.assets.Snapshot())
}

func (s *Server) handleAutosaveStatus(w http.ResponseWriter, _ *http.Request) {
	if s.autosave == nil {
		respondError(w, http.StatusNotImplemented, "autosave_unavailable", "Autosave is not configured.")
		return
	}
	respondJSON(w, http.StatusOK, s.autosave.Snapshot())
}

func (s *Server) handleForceSave(w http.ResponseWriter, _ *http.Request) {
	if s.autosave == nil {
		respondError(w, http.StatusNotImplemented, "autosave_unavailable", "Autosave is not configured.")
		return
	}
	started := s.autosave.ForceSave()
	respondJSON(w, http.StatusAccepted, map[string]any{
		"started":  started,
		"autosave": s.autosave.Snapshot(),
	})
}
