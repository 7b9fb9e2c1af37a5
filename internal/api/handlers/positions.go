package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gradboard/internal/core"
	"gradboard/internal/types"
)

// PositionReader is the read-only position access needed by the listing
// endpoints.
type PositionReader interface {
	List(ctx context.Context, filter types.PositionFilter) ([]types.Position, *types.PageInfo, error)
	GetByID(ctx context.Context, id string) (*types.Position, error)
}

// PositionHandler serves the assistantship listing catalog.
type PositionHandler struct {
	positions PositionReader
	logger    *slog.Logger
}

// NewPositionHandler creates a new PositionHandler.
func NewPositionHandler(positions PositionReader, logger *slog.Logger) *PositionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// RegisterRoutes mounts the position read endpoints.
func (h *PositionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/positions", h.List)
	r.Get("/positions/{positionID}", h.Get)
}

// List handles GET /v1/positions with optional filters and cursor
// pagination, newest first.
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := types.PositionFilter{
		University:  q.Get("university"),
		Department:  q.Get("department"),
		DegreeLevel: q.Get("degree_level"),
		Search:      q.Get("q"),
		Cursor:      q.Get("cursor"),
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidField,
				"limit must be a positive integer",
				err,
			))
			return
		}
		filter.Limit = limit
	}

	positions, page, err := h.positions.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if positions == nil {
		positions = []types.Position{}
	}

	core.JSONWithMeta(w, r, http.StatusOK, positions, page)
}

// Get handles GET /v1/positions/{positionID}.
func (h *PositionHandler) Get(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "positionID")

	position, err := h.positions.GetByID(r.Context(), positionID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, position)
}
