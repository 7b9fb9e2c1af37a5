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

// mockWebhookVerifier implements external.WebhookVerifier for testing.
type mockWebhookVerifier struct {
	shouldFail bool
}

func (m *mockWebhookVerifier) Verify(payload []byte, header string, secret string) error {
	if m.shouldFail {
		return errors.New("signature verification failed")
	}
	return nil
}

// mockBillingProfileStore implements BillingProfileStore backed by an
// in-memory profile set.
type mockBillingProfileStore struct {
	profiles []*types.Profile

	activateCalls  []activateCall
	statusCalls    []statusCall
	downgradeCalls []string

	activateErr  error
	statusErr    error
	downgradeErr error
}

type activateCall struct {
	ProfileID      string
	SubscriptionID string
	Tier           types.Tier
}

type statusCall struct {
	SubscriptionID string
	Status         types.SubscriptionStatus
}

func notFoundProfile() error {
	return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
}

func (m *mockBillingProfileStore) GetByID(_ context.Context, id string) (*types.Profile, error) {
	for _, p := range m.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, notFoundProfile()
}

func (m *mockBillingProfileStore) GetByClerkUserID(_ context.Context, clerkUserID string) (*types.Profile, error) {
	for _, p := range m.profiles {
		if p.ClerkUserID == clerkUserID {
			return p, nil
		}
	}
	return nil, notFoundProfile()
}

func (m *mockBillingProfileStore) GetByEmail(_ context.Context, email string) (*types.Profile, error) {
	for _, p := range m.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, notFoundProfile()
}

func (m *mockBillingProfileStore) ActivateSubscription(_ context.Context, profileID, subscriptionID string, tier types.Tier) error {
	m.activateCalls = append(m.activateCalls, activateCall{profileID, subscriptionID, tier})
	return m.activateErr
}

func (m *mockBillingProfileStore) UpdateStatusBySubscriptionID(_ context.Context, subscriptionID string, status types.SubscriptionStatus) error {
	m.statusCalls = append(m.statusCalls, statusCall{subscriptionID, status})
	return m.statusErr
}

func (m *mockBillingProfileStore) DowngradeBySubscriptionID(_ context.Context, subscriptionID string) error {
	m.downgradeCalls = append(m.downgradeCalls, subscriptionID)
	return m.downgradeErr
}

// mockSubscriptionFetcher implements SubscriptionFetcher.
type mockSubscriptionFetcher struct {
	sub *types.SubscriptionDetails
	err error
}

func (m *mockSubscriptionFetcher) GetSubscription(_ context.Context, subscriptionID string) (*types.SubscriptionDetails, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sub, nil
}

// mockTierResolver implements TierResolver with a fixed price table.
type mockTierResolver struct {
	table map[string]types.Tier
}

func (m *mockTierResolver) TierFromPrice(priceID string, unitAmountCents int64) types.Tier {
	if tier, ok := m.table[priceID]; ok {
		return tier
	}
	return types.TierPro
}

// mockWebhookMetrics implements WebhookMetrics, counting outcomes.
type mockWebhookMetrics struct {
	outcomes   map[string]int // "source/type/outcome" -> count
	unresolved int
}

func newMockWebhookMetrics() *mockWebhookMetrics {
	return &mockWebhookMetrics{outcomes: make(map[string]int)}
}

func (m *mockWebhookMetrics) RecordWebhookEvent(source, eventType, outcome string) {
	m.outcomes[source+"/"+eventType+"/"+outcome]++
}

func (m *mockWebhookMetrics) RecordUnresolvedCheckout() {
	m.unresolved++
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

// buildStripeEvent creates a JSON-encoded Stripe event for testing.
func buildStripeEvent(eventType, eventID string, dataObject interface{}) []byte {
	objBytes, _ := json.Marshal(dataObject)
	event := map[string]interface{}{
		"id":      eventID,
		"type":    eventType,
		"created": int64(1756700000),
		"data": map[string]interface{}{
			"object": json.RawMessage(objBytes),
		},
	}
	b, _ := json.Marshal(event)
	return b
}

func buildCheckoutEvent(metadata map[string]string, clientRef, subscriptionID string) []byte {
	obj := map[string]interface{}{
		"id":                  "cs_test_1",
		"mode":                "subscription",
		"client_reference_id": clientRef,
		"metadata":            metadata,
		"subscription":        subscriptionID,
	}
	return buildStripeEvent(external.EventStripeCheckoutCompleted, "evt_checkout_1", obj)
}

type stripeWebhookFixture struct {
	handler  *StripeWebhookHandler
	profiles *mockBillingProfileStore
	fetcher  *mockSubscriptionFetcher
	metrics  *mockWebhookMetrics
}

func newStripeWebhookFixture() *stripeWebhookFixture {
	profiles := &mockBillingProfileStore{}
	fetcher := &mockSubscriptionFetcher{
		sub: &types.SubscriptionDetails{
			ID:            "sub_1",
			Status:        types.SubStatusActive,
			PriceID:       "price_premium",
			UnitAmount:    2900,
			CustomerEmail: "grad@example.edu",
		},
	}
	metrics := newMockWebhookMetrics()
	resolver := &mockTierResolver{table: map[string]types.Tier{
		"price_pro":     types.TierPro,
		"price_premium": types.TierPremium,
	}}

	handler := NewStripeWebhookHandler(
		&mockWebhookVerifier{},
		profiles,
		fetcher,
		resolver,
		metrics,
		"whsec_test",
		nil,
	)
	return &stripeWebhookFixture{handler: handler, profiles: profiles, fetcher: fetcher, metrics: metrics}
}

func postStripeWebhook(t *testing.T, h *StripeWebhookHandler, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Signature and Routing Tests
// ---------------------------------------------------------------------------

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	f := newStripeWebhookFixture()
	f.handler.verifier = &mockWebhookVerifier{shouldFail: true}

	rec := postStripeWebhook(t, f.handler, buildCheckoutEvent(nil, "", "sub_1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.profiles.activateCalls)

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeWebhookSignatureInvalid), resp.Error.Code)
}

func TestStripeWebhook_UnknownEventTypeAcknowledged(t *testing.T) {
	f := newStripeWebhookFixture()

	payload := buildStripeEvent("invoice.paid", "evt_x", map[string]any{})
	rec := postStripeWebhook(t, f.handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.metrics.outcomes["stripe/invoice.paid/ignored"])
}

func TestStripeWebhook_MalformedJSON(t *testing.T) {
	f := newStripeWebhookFixture()

	rec := postStripeWebhook(t, f.handler, []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---------------------------------------------------------------------------
// checkout.session.completed Tests
// ---------------------------------------------------------------------------

func TestStripeWebhook_CheckoutCompleted_ActivatesByMetadataProfileID(t *testing.T) {
	f := newStripeWebhookFixture()
	f.profiles.profiles = []*types.Profile{{ID: "prof_1", ClerkUserID: "user_1"}}

	payload := buildCheckoutEvent(map[string]string{"profile_id": "prof_1"}, "", "sub_1")
	rec := postStripeWebhook(t, f.handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.profiles.activateCalls, 1)
	call := f.profiles.activateCalls[0]
	assert.Equal(t, "prof_1", call.ProfileID)
	assert.Equal(t, "sub_1", call.SubscriptionID)
	assert.Equal(t, types.TierPremium, call.Tier)
	assert.Equal(t, 1, f.metrics.outcomes["stripe/checkout.session.completed/applied"])
}

func TestStripeWebhook_CheckoutCompleted_ClientReferenceFallback(t *testing.T) {
	f := newStripeWebhookFixture()
	f.profiles.profiles = []*types.Profile{{ID: "prof_ref", ClerkUserID: "user_1"}}

	payload := buildCheckoutEvent(nil, "prof_ref", "sub_1")
	rec := postStripeWebhook(t, f.handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.profiles.activateCalls, 1)
	assert.Equal(t, "prof_ref", f.profiles.activateCalls[0].ProfileID)
}

func TestStripeWebhook_CheckoutCompleted_ClerkUserIDFallback(t *testing.T) {
	f := newStripeWebhookFixture()
	f.profiles.profiles = []*types.Profile{{ID: "prof_2", ClerkUserID: "user_clerk"}}

	// profile_id points nowhere; clerk_user_id resolves.
	payload := buildCheckoutEvent(map[string]string{
		"profile_id":    "prof_stale",
		"clerk_user_id": "user_clerk",
	}, "", "sub_1")
	rec := postStripeWebhook(t, f.handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.profiles.activateCalls, 1)
	assert.Equal(t, "prof_2", f.profiles.activateCalls[0].ProfileID)
}

func TestStripeWebhook_CheckoutCompleted_CustomerEmailFallback(t *testing.T) {
	f := newStripeWebhookFixture()
	f.profiles.profiles = []*types.Profile{{ID: "prof_3", Email: "grad@example.edu"}}

	payload := buildCheckoutEvent(nil, "", "sub_1")
	rec := postStripeWebhook(t, f.handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.profiles.activateCalls, 1)
	assert.Equal(t, "prof_3", f.profiles.activateCalls[0].ProfileID)
}

func TestStripeWebhook_CheckoutCompleted_UnresolvableAcknowledged(t *testing.T) {
	f := newStripeWebhookFixture()
	// No profiles at all: resolution exhausts every path.

	payload := buildCheckoutEvent(map[string]string{"profile_id": "prof_ghost"}, "", "sub_1")
	rec := postStripeWebhook(t, f.handler, payload)

	// Acknowledged so Stripe stops retrying; the counter is the alert.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.profiles.activateCalls)
	assert.Equal(t, 1, f.metrics.unresolved)
	assert.Equal(t, 1, f.metrics.outcomes["stripe/checkout.session.completed/ignored"])
}

func TestStripeWebhook_CheckoutCompleted_FetchFailureRetried(t *testing.T) {
	f := newStripeWebhookFixture()
	f.fetcher.err = types.NewAppError(types.ErrCodeUpstreamUnavailable, "stripe down", nil)

	payload := buildCheckoutEvent(map[string]string{"profile_id": "prof_1"}, "", "sub_1")
	rec := postStripeWebhook(t, f.handler, payload)

	// 500 so Stripe redelivers once the provider recovers.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, f.metrics.outcomes["stripe/checkout.session.completed/failed"])
}

func TestStripeWebhook_CheckoutCompleted_NonSubscriptionModeIgnored(t *testing.T) {
	f := newStripeWebhookFixture()

	obj := map[string]interface{}{
		"id":   "cs_payment",
		"mode": "payment",
	}
	payload := buildStripeEvent(external.EventStripeCheckoutCompleted, "evt_pay", obj)
	rec := postStripeWebhook(t, f.handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.profiles.activateCalls)
}

func TestStripeWebhook_CheckoutCompleted_MissingSubscriptionFails(t *testing.T) {
	f := newStripeWebhookFixture()

	payload := buildCheckoutEvent(map[string]string{"profile_id": "prof_1"}, "", "")
	rec := postStripeWebhook(t, f.handler, payload)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ---------------------------------------------------------------------------
// customer.subscription.updated / deleted Tests
// ---------------------------------------------------------------------------

func TestStripeWebhook_SubscriptionUpdated_PassesStatusThrough(t *testing.T) {
	f := newStripeWebhookFixture()

	obj := map[string]interface{}{"id": "sub_1", "status": "past_due"}
	payload := buildStripeEvent(external.EventStripeSubUpdated, "evt_upd", obj)
	rec := postStripeWebhook(t, f.handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.profiles.statusCalls, 1)
	assert.Equal(t, "sub_1", f.profiles.statusCalls[0].SubscriptionID)
	assert.Equal(t, types.SubStatusPastDue, f.profiles.statusCalls[0].Status)
	assert.Equal(t, 1, f.metrics.outcomes["stripe/customer.subscription.updated/applied"])
}

func TestStripeWebhook_SubscriptionUpdated_UnknownSubscriptionAcknowledged(t *testing.T) {
	f := newStripeWebhookFixture()
	f.profiles.statusErr = notFoundProfile()

	obj := map[string]interface{}{"id": "sub_unknown", "status": "active"}
	payload := buildStripeEvent(external.EventStripeSubUpdated, "evt_upd2", obj)
	rec := postStripeWebhook(t, f.handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.metrics.outcomes["stripe/customer.subscription.updated/ignored"])
}

func TestStripeWebhook_SubscriptionDeleted_Downgrades(t *testing.T) {
	f := newStripeWebhookFixture()

	obj := map[string]interface{}{"id": "sub_1", "status": "canceled"}
	payload := buildStripeEvent(external.EventStripeSubDeleted, "evt_del", obj)
	rec := postStripeWebhook(t, f.handler, payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.profiles.downgradeCalls, 1)
	assert.Equal(t, "sub_1", f.profiles.downgradeCalls[0])
	assert.Equal(t, 1, f.metrics.outcomes["stripe/customer.subscription.deleted/applied"])
}

func TestStripeWebhook_SubscriptionDeleted_DBFailureRetried(t *testing.T) {
	f := newStripeWebhookFixture()
	f.profiles.downgradeErr = types.NewAppError(types.ErrCodeInternalDB, "db down", nil)

	obj := map[string]interface{}{"id": "sub_1", "status": "canceled"}
	payload := buildStripeEvent(external.EventStripeSubDeleted, "evt_del2", obj)
	rec := postStripeWebhook(t, f.handler, payload)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
