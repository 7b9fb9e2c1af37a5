package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gradboard/internal/core"
	"gradboard/internal/types"
)

// ProfileReconciler lazily materializes the profile row for an authenticated
// actor. Every authenticated handler goes through this so a profile exists
// even when the identity provider's user.created webhook was lost.
type ProfileReconciler interface {
	Ensure(ctx context.Context, clerkUserID, email, fullName string) (*types.Profile, error)
}

// ProfileHandler serves the authenticated user's own profile.
type ProfileHandler struct {
	profiles ProfileReconciler
	logger   *slog.Logger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(profiles ProfileReconciler, logger *slog.Logger) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileHandler{
		profiles: profiles,
		logger:   logger,
	}
}

// RegisterRoutes mounts the profile endpoints onto the authenticated router
// group.
func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Get("/profiles/me", h.GetMe)
}

// GetMe handles GET /v1/profiles/me. Reconciliation runs first, so the
// first authenticated request after signup returns a fresh free-tier
// profile rather than a 404.
func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	profile, err := reconcileActor(r.Context(), h.profiles)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, profile)
}

// reconcileActor resolves the request's actor into a profile row, creating
// it when absent. Identity comes exclusively from the verified token in the
// context.
func reconcileActor(ctx context.Context, profiles ProfileReconciler) (*types.Profile, error) {
	actor, ok := types.GetActor(ctx)
	if !ok {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil)
	}

	profile, err := profiles.Ensure(ctx, actor.ClerkUserID, actor.Email, actor.Name)
	if err != nil {
		return nil, err
	}
	return profile, nil
}
