package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gradboard/internal/core"
	"gradboard/internal/external"
	"gradboard/internal/types"
)

// ---------------------------------------------------------------------------
// Interfaces for identity webhook dependencies
// ---------------------------------------------------------------------------

// IdentityProfileStore is the subset of the profile repository needed to
// mirror identity-provider lifecycle events.
type IdentityProfileStore interface {
	Ensure(ctx context.Context, clerkUserID, email, fullName string) (*types.Profile, error)
	UpdateContact(ctx context.Context, clerkUserID, email, fullName string) error
	Delete(ctx context.Context, clerkUserID string) error
}

// ---------------------------------------------------------------------------
// Identity Webhook Handler
// ---------------------------------------------------------------------------

// IdentityWebhookHandler mirrors identity-provider user lifecycle events
// into the profiles table. The endpoint is public; authenticity comes from
// the svix-style signature headers on every delivery.
type IdentityWebhookHandler struct {
	verifier external.IdentityWebhookVerifier
	profiles IdentityProfileStore
	metrics  WebhookMetrics
	secret   string
	logger   *slog.Logger
}

// NewIdentityWebhookHandler creates a new IdentityWebhookHandler with the
// provided dependencies.
func NewIdentityWebhookHandler(
	verifier external.IdentityWebhookVerifier,
	profiles IdentityProfileStore,
	metrics WebhookMetrics,
	secret string,
	logger *slog.Logger,
) *IdentityWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityWebhookHandler{
		verifier: verifier,
		profiles: profiles,
		metrics:  metrics,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes mounts the identity webhook endpoint on the public router.
func (h *IdentityWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/identity", h.Handle)
}

// Handle processes an identity-provider webhook delivery. Signature
// verification failures return a generic 400 without revealing which check
// failed; unknown event types are acknowledged with 200; processing
// failures return 500 so the provider redelivers.
func (h *IdentityWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
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

	err = h.verifier.Verify(
		payload,
		r.Header.Get("svix-id"),
		r.Header.Get("svix-timestamp"),
		r.Header.Get("svix-signature"),
		h.secret,
	)
	if err != nil {
		h.logger.WarnContext(r.Context(), "identity webhook verification failed",
			"error", err,
		)
		h.recordOutcome("identity", "unknown", "failed")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookSignatureInvalid,
			"webhook signature verification failed",
			err,
		))
		return
	}

	var event identityWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.WarnContext(r.Context(), "failed to parse identity event JSON",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidField,
			"invalid webhook event JSON",
			err,
		))
		return
	}

	h.logger.InfoContext(r.Context(), "processing identity webhook event",
		"event_type", event.Type,
		"clerk_user_id", event.Data.ID,
	)

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "identity event processing failed",
			"event_type", event.Type,
			"error", err,
		)
		h.recordOutcome("identity", event.Type, "failed")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"webhook processing failed",
			err,
		))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// routeEvent dispatches by event type.
func (h *IdentityWebhookHandler) routeEvent(ctx context.Context, event *identityWebhookEvent) error {
	switch event.Type {
	case external.EventIdentityUserCreated:
		return h.handleUserCreated(ctx, event)

	case external.EventIdentityUserUpdated:
		return h.handleUserUpdated(ctx, event)

	case external.EventIdentityUserDeleted:
		return h.handleUserDeleted(ctx, event)

	default:
		h.logger.InfoContext(ctx, "ignoring unhandled identity event type",
			"event_type", event.Type,
		)
		h.recordOutcome("identity", event.Type, "ignored")
		return nil
	}
}

// handleUserCreated inserts the profile. A profile that already exists
// (created first by lazy reconciliation) is fine: Ensure is idempotent.
func (h *IdentityWebhookHandler) handleUserCreated(ctx context.Context, event *identityWebhookEvent) error {
	if event.Data.ID == "" {
		return fmt.Errorf("user.created: event carries no user id")
	}

	_, err := h.profiles.Ensure(ctx, event.Data.ID, event.Data.primaryEmail(), event.Data.fullName())
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	h.recordOutcome("identity", event.Type, "applied")
	return nil
}

// handleUserUpdated patches email and full name. An update for a user we
// never stored is acknowledged; the create event may still be in flight and
// reconciliation will fill the gap.
func (h *IdentityWebhookHandler) handleUserUpdated(ctx context.Context, event *identityWebhookEvent) error {
	if event.Data.ID == "" {
		return fmt.Errorf("user.updated: event carries no user id")
	}

	err := h.profiles.UpdateContact(ctx, event.Data.ID, event.Data.primaryEmail(), event.Data.fullName())
	if err != nil {
		if isProfileNotFound(err) {
			h.logger.WarnContext(ctx, "update for unknown profile",
				"clerk_user_id", event.Data.ID,
			)
			h.recordOutcome("identity", event.Type, "ignored")
			return nil
		}
		return fmt.Errorf("update contact: %w", err)
	}
	h.recordOutcome("identity", event.Type, "applied")
	return nil
}

// handleUserDeleted removes the profile; saved positions and applications
// cascade at the database level. Idempotent: a second delivery finds
// nothing and is acknowledged.
func (h *IdentityWebhookHandler) handleUserDeleted(ctx context.Context, event *identityWebhookEvent) error {
	if event.Data.ID == "" {
		return fmt.Errorf("user.deleted: event carries no user id")
	}

	err := h.profiles.Delete(ctx, event.Data.ID)
	if err != nil {
		if isProfileNotFound(err) {
			h.recordOutcome("identity", event.Type, "ignored")
			return nil
		}
		return fmt.Errorf("delete profile: %w", err)
	}
	h.recordOutcome("identity", event.Type, "applied")
	return nil
}

func (h *IdentityWebhookHandler) recordOutcome(source, eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(source, eventType, outcome)
	}
}

// ---------------------------------------------------------------------------
// Identity Event Parsing
// ---------------------------------------------------------------------------

// identityWebhookEvent is a minimal representation of an identity-provider
// webhook event.
type identityWebhookEvent struct {
	Type string            `json:"type"`
	Data identityUserData  `json:"data"`
}

// identityUserData holds the user fields delivered by the provider.
type identityUserData struct {
	ID             string                 `json:"id"`
	FirstName      string                 `json:"first_name"`
	LastName       string                 `json:"last_name"`
	EmailAddresses []identityEmailAddress `json:"email_addresses"`
	PrimaryEmailID string                 `json:"primary_email_address_id"`
}

type identityEmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// primaryEmail returns the address matching primary_email_address_id,
// falling back to the first listed address.
func (d *identityUserData) primaryEmail() string {
	for _, addr := range d.EmailAddresses {
		if addr.ID == d.PrimaryEmailID {
			return addr.EmailAddress
		}
	}
	if len(d.EmailAddresses) > 0 {
		return d.EmailAddresses[0].EmailAddress
	}
	return ""
}

// fullName joins the name parts, tolerating either being empty.
func (d *identityUserData) fullName() string {
	switch {
	case d.FirstName != "" && d.LastName != "":
		return d.FirstName + " " + d.LastName
	case d.FirstName != "":
		return d.FirstName
	default:
		return d.LastName
	}
}
