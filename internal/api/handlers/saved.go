package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gradboard/internal/core"
	"gradboard/internal/types"
)

// SavedPositionStore is the saved-position persistence used by the save
// endpoints. Save enforces the free-tier quota atomically at the database,
// so the handler never pre-checks counts.
type SavedPositionStore interface {
	Save(ctx context.Context, profileID, positionID string) (*types.SavedPosition, error)
	Delete(ctx context.Context, profileID, positionID string) error
	ListByProfile(ctx context.Context, profileID string) ([]types.SavedPositionWithDetails, error)
}

// SavedPositionHandler serves the bookmark endpoints.
type SavedPositionHandler struct {
	saved    SavedPositionStore
	profiles ProfileReconciler
	logger   *slog.Logger
}

// NewSavedPositionHandler creates a new SavedPositionHandler.
func NewSavedPositionHandler(saved SavedPositionStore, profiles ProfileReconciler, logger *slog.Logger) *SavedPositionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SavedPositionHandler{
		saved:    saved,
		profiles: profiles,
		logger:   logger,
	}
}

// RegisterRoutes mounts the saved-position endpoints onto the authenticated
// router group.
func (h *SavedPositionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/positions/{positionID}/save", h.Save)
	r.Delete("/positions/{positionID}/save", h.Unsave)
	r.Get("/saved-positions", h.List)
}

// Save handles POST /v1/positions/{positionID}/save. Free-tier profiles are
// capped; the quota decision and the insert happen in a single statement so
// concurrent saves cannot slip past the limit.
func (h *SavedPositionHandler) Save(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "positionID")

	profile, err := reconcileActor(r.Context(), h.profiles)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	saved, err := h.saved.Save(r.Context(), profile.ID, positionID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, saved)
}

// Unsave handles DELETE /v1/positions/{positionID}/save. Removing a
// bookmark that does not exist succeeds, so clients can retry freely.
func (h *SavedPositionHandler) Unsave(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "positionID")

	profile, err := reconcileActor(r.Context(), h.profiles)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.saved.Delete(r.Context(), profile.ID, positionID); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// List handles GET /v1/saved-positions, returning the actor's bookmarks
// with the full position embedded, newest first.
func (h *SavedPositionHandler) List(w http.ResponseWriter, r *http.Request) {
	profile, err := reconcileActor(r.Context(), h.profiles)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	saved, err := h.saved.ListByProfile(r.Context(), profile.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if saved == nil {
		saved = []types.SavedPositionWithDetails{}
	}

	core.JSON(w, r, http.StatusOK, saved)
}
