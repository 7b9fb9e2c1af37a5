package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradboard/internal/types"
)

// mockPositionReader implements PositionReader.
type mockPositionReader struct {
	positions []types.Position
	page      *types.PageInfo
	position  *types.Position

	listErr error
	getErr  error

	lastFilter types.PositionFilter
}

func (m *mockPositionReader) List(_ context.Context, filter types.PositionFilter) ([]types.Position, *types.PageInfo, error) {
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, nil, m.listErr
	}
	page := m.page
	if page == nil {
		page = &types.PageInfo{}
	}
	return m.positions, page, nil
}

func (m *mockPositionReader) GetByID(_ context.Context, id string) (*types.Position, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.position, nil
}

func newPositionFixture() (*mockPositionReader, chi.Router) {
	reader := &mockPositionReader{}
	handler := NewPositionHandler(reader, nil)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return reader, router
}

func TestPositions_List_ParsesFilters(t *testing.T) {
	reader, router := newPositionFixture()

	req := httptest.NewRequest(http.MethodGet,
		"/positions?university=State+University&department=Physics&degree_level=masters&q=quantum&cursor=pos_9&limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "State University", reader.lastFilter.University)
	assert.Equal(t, "Physics", reader.lastFilter.Department)
	assert.Equal(t, "masters", reader.lastFilter.DegreeLevel)
	assert.Equal(t, "quantum", reader.lastFilter.Search)
	assert.Equal(t, "pos_9", reader.lastFilter.Cursor)
	assert.Equal(t, 10, reader.lastFilter.Limit)
}

func TestPositions_List_EnvelopeWithMeta(t *testing.T) {
	reader, router := newPositionFixture()
	reader.positions = []types.Position{
		{ID: "pos_1", Title: "RA", University: "State University", Department: "CS",
			PostedAt: time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)},
	}
	reader.page = &types.PageInfo{HasMore: true, NextCursor: "pos_1"}

	req := httptest.NewRequest(http.MethodGet, "/positions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []types.Position `json:"data"`
		Meta *types.PageInfo  `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.NotNil(t, resp.Meta)
	assert.True(t, resp.Meta.HasMore)
	assert.Equal(t, "pos_1", resp.Meta.NextCursor)
}

func TestPositions_List_InvalidLimit(t *testing.T) {
	_, router := newPositionFixture()

	req := httptest.NewRequest(http.MethodGet, "/positions?limit=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPositions_Get_Success(t *testing.T) {
	reader, router := newPositionFixture()
	reader.position = &types.Position{ID: "pos_1", Title: "TA, Intro Algorithms"}

	req := httptest.NewRequest(http.MethodGet, "/positions/pos_1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var position types.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &position))
	assert.Equal(t, "TA, Intro Algorithms", position.Title)
}

func TestPositions_Get_NotFound(t *testing.T) {
	reader, router := newPositionFixture()
	reader.getErr = types.NewAppError(types.ErrCodeNotFoundPosition, "position not found", nil)

	req := httptest.NewRequest(http.MethodGet, "/positions/pos_ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
