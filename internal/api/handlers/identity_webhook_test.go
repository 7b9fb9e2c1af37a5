package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradboard/internal/external"
	"gradboard/internal/types"
)

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

// mockIdentityVerifier implements external.IdentityWebhookVerifier.
type mockIdentityVerifier struct {
	shouldFail bool
}

func (m *mockIdentityVerifier) Verify(payload []byte, msgID, timestamp, signature, secret string) error {
	if m.shouldFail {
		return errors.New("signature verification failed")
	}
	return nil
}

// mockIdentityProfileStore implements IdentityProfileStore, recording calls.
type mockIdentityProfileStore struct {
	ensureCalls []contactCall
	updateCalls []contactCall
	deleteCalls []string

	ensureErr error
	updateErr error
	deleteErr error
}

type contactCall struct {
	ClerkUserID string
	Email       string
	FullName    string
}

func (m *mockIdentityProfileStore) Ensure(_ context.Context, clerkUserID, email, fullName string) (*types.Profile, error) {
	m.ensureCalls = append(m.ensureCalls, contactCall{clerkUserID, email, fullName})
	if m.ensureErr != nil {
		return nil, m.ensureErr
	}
	return &types.Profile{ID: "prof_1", ClerkUserID: clerkUserID, Email: email}, nil
}

func (m *mockIdentityProfileStore) UpdateContact(_ context.Context, clerkUserID, email, fullName string) error {
	m.updateCalls = append(m.updateCalls, contactCall{clerkUserID, email, fullName})
	return m.updateErr
}

func (m *mockIdentityProfileStore) Delete(_ context.Context, clerkUserID string) error {
	m.deleteCalls = append(m.deleteCalls, clerkUserID)
	return m.deleteErr
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func buildIdentityEvent(eventType, userID, firstName, lastName string, emails ...string) []byte {
	addresses := make([]map[string]string, 0, len(emails))
	for i, email := range emails {
		addresses = append(addresses, map[string]string{
			"id":            "idn_" + string(rune('a'+i)),
			"email_address": email,
		})
	}
	data := map[string]interface{}{
		"id":              userID,
		"first_name":      firstName,
		"last_name":       lastName,
		"email_addresses": addresses,
	}
	if len(addresses) > 0 {
		data["primary_email_address_id"] = addresses[0]["id"]
	}
	event := map[string]interface{}{"type": eventType, "data": data}
	b, _ := json.Marshal(event)
	return b
}

func postIdentityWebhook(t *testing.T, h *IdentityWebhookHandler, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewReader(payload))
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", "1756700000")
	req.Header.Set("svix-signature", "v1,abc")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func newIdentityFixture() (*IdentityWebhookHandler, *mockIdentityProfileStore, *mockWebhookMetrics) {
	profiles := &mockIdentityProfileStore{}
	metrics := newMockWebhookMetrics()
	handler := NewIdentityWebhookHandler(&mockIdentityVerifier{}, profiles, metrics, "whsec_test", nil)
	return handler, profiles, metrics
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestIdentityWebhook_InvalidSignature(t *testing.T) {
	handler, profiles, _ := newIdentityFixture()
	handler.verifier = &mockIdentityVerifier{shouldFail: true}

	payload := buildIdentityEvent(external.EventIdentityUserCreated, "user_1", "Ada", "Lovelace", "ada@example.edu")
	rec := postIdentityWebhook(t, handler, payload)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, profiles.ensureCalls)

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeWebhookSignatureInvalid), resp.Error.Code)
}

func TestIdentityWebhook_UserCreated(t *testing.T) {
	handler, profiles, metrics := newIdentityFixture()

	payload := buildIdentityEvent(external.EventIdentityUserCreated, "user_1", "Ada", "Lovelace", "ada@example.edu", "alt@example.edu")
	rec := postIdentityWebhook(t, handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, profiles.ensureCalls, 1)
	call := profiles.ensureCalls[0]
	assert.Equal(t, "user_1", call.ClerkUserID)
	assert.Equal(t, "ada@example.edu", call.Email) // primary, not alt
	assert.Equal(t, "Ada Lovelace", call.FullName)
	assert.Equal(t, 1, metrics.outcomes["identity/user.created/applied"])
}

func TestIdentityWebhook_UserCreated_MissingID(t *testing.T) {
	handler, profiles, _ := newIdentityFixture()

	payload := buildIdentityEvent(external.EventIdentityUserCreated, "", "Ada", "", "ada@example.edu")
	rec := postIdentityWebhook(t, handler, payload)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, profiles.ensureCalls)
}

func TestIdentityWebhook_UserUpdated(t *testing.T) {
	handler, profiles, _ := newIdentityFixture()

	payload := buildIdentityEvent(external.EventIdentityUserUpdated, "user_1", "Ada", "King", "ada@example.edu")
	rec := postIdentityWebhook(t, handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, profiles.updateCalls, 1)
	assert.Equal(t, "Ada King", profiles.updateCalls[0].FullName)
}

func TestIdentityWebhook_UserUpdated_UnknownUserAcknowledged(t *testing.T) {
	handler, profiles, metrics := newIdentityFixture()
	profiles.updateErr = notFoundProfile()

	payload := buildIdentityEvent(external.EventIdentityUserUpdated, "user_ghost", "A", "B", "a@example.edu")
	rec := postIdentityWebhook(t, handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, metrics.outcomes["identity/user.updated/ignored"])
}

func TestIdentityWebhook_UserDeleted(t *testing.T) {
	handler, profiles, _ := newIdentityFixture()

	payload := buildIdentityEvent(external.EventIdentityUserDeleted, "user_1", "", "")
	rec := postIdentityWebhook(t, handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, profiles.deleteCalls, 1)
	assert.Equal(t, "user_1", profiles.deleteCalls[0])
}

func TestIdentityWebhook_UserDeleted_ReplayAcknowledged(t *testing.T) {
	handler, profiles, metrics := newIdentityFixture()
	profiles.deleteErr = notFoundProfile()

	payload := buildIdentityEvent(external.EventIdentityUserDeleted, "user_gone", "", "")
	rec := postIdentityWebhook(t, handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, metrics.outcomes["identity/user.deleted/ignored"])
}

func TestIdentityWebhook_UnknownEventTypeAcknowledged(t *testing.T) {
	handler, _, metrics := newIdentityFixture()

	payload := []byte(`{"type":"session.created","data":{"id":"sess_1"}}`)
	rec := postIdentityWebhook(t, handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, metrics.outcomes["identity/session.created/ignored"])
}

func TestIdentityWebhook_ProcessingFailureRetried(t *testing.T) {
	handler, profiles, _ := newIdentityFixture()
	profiles.ensureErr = types.NewAppError(types.ErrCodeInternalDB, "db down", nil)

	payload := buildIdentityEvent(external.EventIdentityUserCreated, "user_1", "Ada", "", "ada@example.edu")
	rec := postIdentityWebhook(t, handler, payload)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
