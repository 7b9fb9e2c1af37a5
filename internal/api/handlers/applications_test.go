package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradboard/internal/core"
	"gradboard/internal/types"
)

// mockApplicationStore implements ApplicationStore, recording calls.
type mockApplicationStore struct {
	applications []types.Application

	createErr error
	updateErr error
	deleteErr error
	listErr   error

	createCalls []createApplicationCall
	updateCalls []updateApplicationCall
	deleteCalls []string
}

type createApplicationCall struct {
	ProfileID  string
	PositionID string
	Status     types.ApplicationStatus
	Notes      string
}

type updateApplicationCall struct {
	ID        string
	ProfileID string
	Status    *types.ApplicationStatus
	Notes     *string
}

func (m *mockApplicationStore) Create(_ context.Context, profileID, positionID string, status types.ApplicationStatus, notes string) (*types.Application, error) {
	m.createCalls = append(m.createCalls, createApplicationCall{profileID, positionID, status, notes})
	if m.createErr != nil {
		return nil, m.createErr
	}
	if status == "" {
		status = types.AppStatusSaved
	}
	return &types.Application{
		ID:         "app_1",
		ProfileID:  profileID,
		PositionID: positionID,
		Status:     status,
		Notes:      notes,
		CreatedAt:  time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}, nil
}

func (m *mockApplicationStore) GetByID(_ context.Context, id, profileID string) (*types.Application, error) {
	for i := range m.applications {
		if m.applications[i].ID == id && m.applications[i].ProfileID == profileID {
			return &m.applications[i], nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundApplication, "application not found", nil)
}

func (m *mockApplicationStore) ListByProfile(_ context.Context, profileID string) ([]types.Application, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.applications, nil
}

func (m *mockApplicationStore) Update(_ context.Context, id, profileID string, status *types.ApplicationStatus, notes *string) (*types.Application, error) {
	m.updateCalls = append(m.updateCalls, updateApplicationCall{id, profileID, status, notes})
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	app := &types.Application{ID: id, ProfileID: profileID, PositionID: "pos_1", Status: types.AppStatusSaved}
	if status != nil {
		app.Status = *status
	}
	if notes != nil {
		app.Notes = *notes
	}
	return app, nil
}

func (m *mockApplicationStore) Delete(_ context.Context, id, profileID string) error {
	m.deleteCalls = append(m.deleteCalls, id)
	return m.deleteErr
}

func newApplicationFixture() (*mockApplicationStore, chi.Router) {
	store := &mockApplicationStore{}
	profiles := &mockCheckoutProfileStore{
		profile: &types.Profile{ID: "prof_1", ClerkUserID: "user_1", Email: "grad@example.edu"},
	}
	handler := NewApplicationHandler(store, profiles, core.NewValidator(nil), nil)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return store, router
}

func applicationRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	}
	return req.WithContext(testActorContext())
}

func TestApplications_Create_Success(t *testing.T) {
	store, router := newApplicationFixture()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, applicationRequest(http.MethodPost, "/applications",
		`{"position_id":"pos_1","status":"applied","notes":"emailed the PI"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.createCalls, 1)
	call := store.createCalls[0]
	assert.Equal(t, "prof_1", call.ProfileID)
	assert.Equal(t, "pos_1", call.PositionID)
	assert.Equal(t, types.AppStatusApplied, call.Status)
	assert.Equal(t, "emailed the PI", call.Notes)
}

func TestApplications_Create_DefaultsStatus(t *testing.T) {
	store, router := newApplicationFixture()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, applicationRequest(http.MethodPost, "/applications",
		`{"position_id":"pos_1"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.createCalls, 1)
	// Status is left empty for the store to default.
	assert.Empty(t, store.createCalls[0].Status)
}

func TestApplications_Create_InvalidStatus(t *testing.T) {
	store, router := newApplicationFixture()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, applicationRequest(http.MethodPost, "/applications",
		`{"position_id":"pos_1","status":"daydreaming"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.createCalls)
}

func TestApplications_Create_MissingPositionID(t *testing.T) {
	_, router := newApplicationFixture()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, applicationRequest(http.MethodPost, "/applications", `{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplications_Create_DuplicateConflict(t *testing.T) {
	store, router := newApplicationFixture()
	store.createErr = types.NewAppError(types.ErrCodeConflictApplicationExists, "already exists", nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, applicationRequest(http.MethodPost, "/applications",
		`{"position_id":"pos_1"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApplications_List(t *testing.T) {
	store, router := newApplicationFixture()
	store.applications = []types.Application{
		{ID: "app_1", ProfileID: "prof_1", PositionID: "pos_1", Status: types.AppStatusInterviewing},
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, applicationRequest(http.MethodGet, "/applications", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var list []types.Application
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, types.AppStatusInterviewing, list[0].Status)
}

func TestApplications_List_EmptyIsArray(t *testing.T) {
	_, router := newApplicationFixture()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, applicationRequest(http.MethodGet, "/applications", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestApplications_Update_PartialPatch(t *testing.T) {
	store, router := newApplicationFixture()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, applicationRequest(http.MethodPatch, "/applications/app_1",
		`{"status":"offered"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.updateCalls, 1)
	call := store.updateCalls[0]
	assert.Equal(t, "app_1", call.ID)
	require.NotNil(t, call.Status)
	assert.Equal(t, types.AppStatusOffered, *call.Status)
	assert.Nil(t, call.Notes)
}

func TestApplications_Update_InvalidStatus(t *testing.T) {
	store, router := newApplicationFixture()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, applicationRequest(http.MethodPatch, "/applications/app_1",
		`{"status":"ghosted"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.updateCalls)
}

func TestApplications_Update_NotFound(t *testing.T) {
	store, router := newApplicationFixture()
	store.updateErr = types.NewAppError(types.ErrCodeNotFoundApplication, "application not found", nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, applicationRequest(http.MethodPatch, "/applications/app_ghost",
		`{"notes":"x"}`))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplications_Delete_Success(t *testing.T) {
	store, router := newApplicationFixture()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, applicationRequest(http.MethodDelete, "/applications/app_1", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.deleteCalls, 1)
	assert.Equal(t, "app_1", store.deleteCalls[0])
}

func TestApplications_NoActor(t *testing.T) {
	store, router := newApplicationFixture()

	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, store.createCalls)
}
