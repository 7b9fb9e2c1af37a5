package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gradboard/internal/core"
	"gradboard/internal/types"
)

// CreateApplicationRequest is the body for POST /v1/applications.
type CreateApplicationRequest struct {
	PositionID string `json:"position_id" validate:"required"`
	Status     string `json:"status" validate:"omitempty,application_status"`
	Notes      string `json:"notes" validate:"omitempty,max=10000"`
}

// UpdateApplicationRequest is the body for PATCH /v1/applications/{id}.
// Absent fields are left untouched.
type UpdateApplicationRequest struct {
	Status *string `json:"status" validate:"omitempty,application_status"`
	Notes  *string `json:"notes" validate:"omitempty,max=10000"`
}

// ApplicationStore is the application persistence used by the handler. All
// reads and writes are scoped to the owning profile.
type ApplicationStore interface {
	Create(ctx context.Context, profileID, positionID string, status types.ApplicationStatus, notes string) (*types.Application, error)
	GetByID(ctx context.Context, id, profileID string) (*types.Application, error)
	ListByProfile(ctx context.Context, profileID string) ([]types.Application, error)
	Update(ctx context.Context, id, profileID string, status *types.ApplicationStatus, notes *string) (*types.Application, error)
	Delete(ctx context.Context, id, profileID string) error
}

// ApplicationHandler serves the application tracking endpoints.
type ApplicationHandler struct {
	applications ApplicationStore
	profiles     ProfileReconciler
	validator    *core.Validator
	logger       *slog.Logger
}

// NewApplicationHandler creates a new ApplicationHandler.
func NewApplicationHandler(applications ApplicationStore, profiles ProfileReconciler, v *core.Validator, logger *slog.Logger) *ApplicationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApplicationHandler{
		applications: applications,
		profiles:     profiles,
		validator:    v,
		logger:       logger,
	}
}

// RegisterRoutes mounts the application endpoints onto the authenticated
// router group.
func (h *ApplicationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/applications", h.List)
	r.Post("/applications", h.Create)
	r.Patch("/applications/{applicationID}", h.Update)
	r.Delete("/applications/{applicationID}", h.Delete)
}

// List handles GET /v1/applications.
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	profile, err := reconcileActor(r.Context(), h.profiles)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	applications, err := h.applications.ListByProfile(r.Context(), profile.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if applications == nil {
		applications = []types.Application{}
	}

	core.JSON(w, r, http.StatusOK, applications)
}

// Create handles POST /v1/applications. Status defaults to "saved" when
// omitted; "applied" stamps the applied_at timestamp.
func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateApplicationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if appErr := h.validator.ValidateStruct(req); appErr != nil {
		core.Error(w, r, appErr)
		return
	}

	profile, err := reconcileActor(r.Context(), h.profiles)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	application, err := h.applications.Create(r.Context(), profile.ID, req.PositionID, types.ApplicationStatus(req.Status), req.Notes)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, application)
}

// Update handles PATCH /v1/applications/{applicationID}.
func (h *ApplicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	applicationID := chi.URLParam(r, "applicationID")

	var req UpdateApplicationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if appErr := h.validator.ValidateStruct(req); appErr != nil {
		core.Error(w, r, appErr)
		return
	}

	profile, err := reconcileActor(r.Context(), h.profiles)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var status *types.ApplicationStatus
	if req.Status != nil {
		s := types.ApplicationStatus(*req.Status)
		status = &s
	}

	application, err := h.applications.Update(r.Context(), applicationID, profile.ID, status, req.Notes)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, application)
}

// Delete handles DELETE /v1/applications/{applicationID}.
func (h *ApplicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	applicationID := chi.URLParam(r, "applicationID")

	profile, err := reconcileActor(r.Context(), h.profiles)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.applications.Delete(r.Context(), applicationID, profile.ID); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
}
