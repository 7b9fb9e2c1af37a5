// Package handlers contains the HTTP handler implementations for the
// GradBoard API.
//
// This file implements the billing webhook handler. It is NOT behind auth
// middleware -- it is called directly by Stripe. Security is provided by
// verifying the Stripe-Signature header.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gradboard/internal/core"
	"gradboard/internal/external"
	"gradboard/internal/types"
)

// maxWebhookBodySize is the maximum allowed size of a webhook payload
// (64 KB). Provider payloads are small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// ---------------------------------------------------------------------------
// Interfaces for webhook handler dependencies
// ---------------------------------------------------------------------------

// BillingProfileStore is the subset of the profile repository needed to
// apply billing state transitions.
type BillingProfileStore interface {
	GetByID(ctx context.Context, id string) (*types.Profile, error)
	GetByClerkUserID(ctx context.Context, clerkUserID string) (*types.Profile, error)
	GetByEmail(ctx context.Context, email string) (*types.Profile, error)
	ActivateSubscription(ctx context.Context, profileID, subscriptionID string, tier types.Tier) error
	UpdateStatusBySubscriptionID(ctx context.Context, subscriptionID string, status types.SubscriptionStatus) error
	DowngradeBySubscriptionID(ctx context.Context, subscriptionID string) error
}

// SubscriptionFetcher fetches subscription detail from the billing provider.
// Checkout events lack reliable price information, so the handler re-fetches.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*types.SubscriptionDetails, error)
}

// TierResolver maps a subscription's price to an entitlement tier.
type TierResolver interface {
	TierFromPrice(priceID string, unitAmountCents int64) types.Tier
}

// WebhookMetrics records webhook processing outcomes. The unresolved
// checkout counter is the alerting signal for events acknowledged without a
// matching profile.
type WebhookMetrics interface {
	RecordWebhookEvent(source, eventType, outcome string)
	RecordUnresolvedCheckout()
}

// ---------------------------------------------------------------------------
// Stripe Webhook Handler
// ---------------------------------------------------------------------------

// StripeWebhookHandler handles asynchronous billing events from Stripe.
// It is unauthenticated (no Bearer token) but verifies the provider
// signature. All state transitions are absolute sets, so event replays and
// out-of-order deliveries converge on the provider's latest state.
type StripeWebhookHandler struct {
	verifier external.WebhookVerifier
	profiles BillingProfileStore
	billing  SubscriptionFetcher
	plans    TierResolver
	metrics  WebhookMetrics
	secret   string
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler with the
// provided dependencies.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	profiles BillingProfileStore,
	billing SubscriptionFetcher,
	plans TierResolver,
	metrics WebhookMetrics,
	secret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		profiles: profiles,
		billing:  billing,
		plans:    plans,
		metrics:  metrics,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes mounts the Stripe webhook endpoint. Separate from
// BillingHandler.RegisterRoutes because webhook routes are public (no auth
// middleware).
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes incoming Stripe webhook events.
//
//  1. Reads the body (64 KB cap) and the Stripe-Signature header.
//  2. Verifies the signature; failure returns 400 with a generic message
//     and no state mutation (Stripe does not retry 4xx).
//  3. Routes by event type; unknown types are acknowledged with 200.
//  4. A processing failure returns 500 so Stripe redelivers.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidField,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed",
			"error", err,
		)
		h.recordOutcome("stripe", "unknown", "failed")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookSignatureInvalid,
			"webhook signature verification failed",
			err,
		))
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.WarnContext(r.Context(), "failed to parse webhook event JSON",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidField,
			"invalid webhook event JSON",
			err,
		))
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		h.recordOutcome("stripe", event.Type, "failed")
		// 500 so Stripe redelivers; transitions are replay-safe.
		core.Error(w, r, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"webhook processing failed",
			err,
		))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// routeEvent dispatches the webhook event by type.
func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeWebhookEvent) error {
	switch event.Type {
	case external.EventStripeCheckoutCompleted:
		return h.handleCheckoutCompleted(ctx, event)

	case external.EventStripeSubUpdated:
		return h.handleSubscriptionUpdated(ctx, event)

	case external.EventStripeSubDeleted:
		return h.handleSubscriptionDeleted(ctx, event)

	default:
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_type", event.Type,
		)
		h.recordOutcome("stripe", event.Type, "ignored")
		return nil
	}
}

// handleCheckoutCompleted processes checkout.session.completed events: the
// user finished the hosted checkout flow and now owns a subscription.
//
// Profile resolution order: metadata profile_id, metadata clerk_user_id,
// then the subscription's customer email as a last resort. An event that
// resolves to no profile is acknowledged (200) so Stripe stops retrying,
// with a warn log and a counter increment for alerting.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *stripeWebhookEvent) error {
	session, err := event.checkoutSession()
	if err != nil {
		return fmt.Errorf("checkout.session.completed: %w", err)
	}
	if session.Mode != "" && session.Mode != "subscription" {
		h.recordOutcome("stripe", event.Type, "ignored")
		return nil
	}
	if session.Subscription == "" {
		return fmt.Errorf("checkout.session.completed: event %s carries no subscription id", event.ID)
	}

	// The event payload has no reliable price detail; fetch the
	// subscription for the authoritative price and customer email.
	sub, err := h.billing.GetSubscription(ctx, session.Subscription)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", session.Subscription, err)
	}

	profile, err := h.resolveProfile(ctx, session, sub.CustomerEmail)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundProfile {
			h.logger.WarnContext(ctx, "checkout completed for unresolvable profile",
				"event_id", event.ID,
				"subscription_id", session.Subscription,
			)
			h.recordUnresolved()
			h.recordOutcome("stripe", event.Type, "ignored")
			return nil
		}
		return fmt.Errorf("resolve profile: %w", err)
	}

	tier := h.plans.TierFromPrice(sub.PriceID, sub.UnitAmount)

	h.logger.InfoContext(ctx, "processing checkout completed",
		"event_id", event.ID,
		"profile_id", profile.ID,
		"tier", tier,
	)

	if err := h.profiles.ActivateSubscription(ctx, profile.ID, sub.ID, tier); err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	h.recordOutcome("stripe", event.Type, "applied")
	return nil
}

// resolveProfile walks the resolution chain for a checkout session.
func (h *StripeWebhookHandler) resolveProfile(ctx context.Context, session *stripeCheckoutSessionObj, customerEmail string) (*types.Profile, error) {
	profileID := session.Metadata["profile_id"]
	if profileID == "" {
		profileID = session.ClientReferenceID
	}
	if profileID != "" {
		profile, err := h.profiles.GetByID(ctx, profileID)
		if err == nil {
			return profile, nil
		}
		if !isProfileNotFound(err) {
			return nil, err
		}
	}

	if clerkUserID := session.Metadata["clerk_user_id"]; clerkUserID != "" {
		profile, err := h.profiles.GetByClerkUserID(ctx, clerkUserID)
		if err == nil {
			return profile, nil
		}
		if !isProfileNotFound(err) {
			return nil, err
		}
	}

	if customerEmail != "" {
		return h.profiles.GetByEmail(ctx, customerEmail)
	}

	return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "no profile matches checkout session", nil)
}

// handleSubscriptionUpdated processes customer.subscription.updated events.
// Resolution is strictly by the stored subscription id; the provider status
// passes through unchanged and the tier is untouched.
func (h *StripeWebhookHandler) handleSubscriptionUpdated(ctx context.Context, event *stripeWebhookEvent) error {
	sub, err := event.subscription()
	if err != nil {
		return fmt.Errorf("customer.subscription.updated: %w", err)
	}
	if sub.ID == "" {
		return fmt.Errorf("customer.subscription.updated: event %s carries no subscription id", event.ID)
	}

	status := types.SubscriptionStatus(sub.Status)

	h.logger.InfoContext(ctx, "processing subscription updated",
		"event_id", event.ID,
		"subscription_id", sub.ID,
		"status", status,
	)

	err = h.profiles.UpdateStatusBySubscriptionID(ctx, sub.ID, status)
	if err != nil {
		if isProfileNotFound(err) {
			// No profile stored this subscription id (e.g., checkout
			// event never arrived). Acknowledge; nothing to update.
			h.logger.WarnContext(ctx, "subscription update for unknown subscription",
				"event_id", event.ID,
				"subscription_id", sub.ID,
			)
			h.recordOutcome("stripe", event.Type, "ignored")
			return nil
		}
		return fmt.Errorf("update status: %w", err)
	}
	h.recordOutcome("stripe", event.Type, "applied")
	return nil
}

// handleSubscriptionDeleted processes customer.subscription.deleted events.
// The profile hard-downgrades to free/canceled regardless of the payload's
// status field.
func (h *StripeWebhookHandler) handleSubscriptionDeleted(ctx context.Context, event *stripeWebhookEvent) error {
	sub, err := event.subscription()
	if err != nil {
		return fmt.Errorf("customer.subscription.deleted: %w", err)
	}
	if sub.ID == "" {
		return fmt.Errorf("customer.subscription.deleted: event %s carries no subscription id", event.ID)
	}

	h.logger.InfoContext(ctx, "processing subscription deleted",
		"event_id", event.ID,
		"subscription_id", sub.ID,
	)

	err = h.profiles.DowngradeBySubscriptionID(ctx, sub.ID)
	if err != nil {
		if isProfileNotFound(err) {
			h.logger.WarnContext(ctx, "subscription deletion for unknown subscription",
				"event_id", event.ID,
				"subscription_id", sub.ID,
			)
			h.recordOutcome("stripe", event.Type, "ignored")
			return nil
		}
		return fmt.Errorf("downgrade: %w", err)
	}
	h.recordOutcome("stripe", event.Type, "applied")
	return nil
}

func (h *StripeWebhookHandler) recordOutcome(source, eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(source, eventType, outcome)
	}
}

func (h *StripeWebhookHandler) recordUnresolved() {
	if h.metrics != nil {
		h.metrics.RecordUnresolvedCheckout()
	}
}

func isProfileNotFound(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundProfile
}

// ---------------------------------------------------------------------------
// Stripe Event Parsing
// ---------------------------------------------------------------------------

// stripeWebhookEvent is a minimal representation of a Stripe webhook event
// tailored to the fields needed for routing and processing. The full
// stripe.Event type stays out of the handler to keep it decoupled from the
// stripe-go library and straightforward to test.
type stripeWebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

// stripeEventData wraps the event data object.
type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// stripeCheckoutSessionObj holds the minimal fields of a
// checkout.session.completed data object.
type stripeCheckoutSessionObj struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	Subscription      string            `json:"subscription"`
}

// stripeSubscriptionObj holds the minimal fields of a
// customer.subscription.updated/deleted data object.
type stripeSubscriptionObj struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// checkoutSession parses the event data as a checkout session object.
func (e *stripeWebhookEvent) checkoutSession() (*stripeCheckoutSessionObj, error) {
	var obj stripeCheckoutSessionObj
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("parse checkout session object: %w", err)
	}
	return &obj, nil
}

// subscription parses the event data as a subscription object.
func (e *stripeWebhookEvent) subscription() (*stripeSubscriptionObj, error) {
	var obj stripeSubscriptionObj
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("parse subscription object: %w", err)
	}
	return &obj, nil
}
