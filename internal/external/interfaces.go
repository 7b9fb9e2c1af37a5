package external

import (
	"context"

	"gradboard/internal/types"
)

// CheckoutMetadata carries the correlation identifiers attached to a
// checkout session. The webhook handler resolves the paying profile from
// these, in order.
type CheckoutMetadata struct {
	ProfileID   string
	ClerkUserID string
}

// BillingService abstracts interactions with the payment provider (Stripe).
// Implementations translate between domain types and vendor-specific APIs.
// Database writes (persisting customer and subscription ids) belong to the
// callers, not to implementations of this interface.
type BillingService interface {
	// EnsureCustomer retrieves or creates a billing customer for the
	// identity. Search-first on metadata['clerk_user_id'] to prevent
	// duplicates; a created customer carries both correlation ids in its
	// metadata. Returns the provider customer ID.
	EnsureCustomer(ctx context.Context, meta CheckoutMetadata, email string) (string, error)

	// CreateCheckoutSession generates a hosted checkout URL for a
	// subscription to priceID. The profile id is set as
	// client_reference_id and both ids go into session metadata for
	// webhook correlation. Redirect URLs are server-controlled.
	CreateCheckoutSession(ctx context.Context, customerID, priceID string, meta CheckoutMetadata, urls types.RedirectURLs) (checkoutURL string, err error)

	// CreatePortalSession generates a self-serve billing portal URL.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (portalURL string, err error)

	// GetSubscription fetches a subscription by its provider id. Webhook
	// processing uses this because checkout events lack reliable price
	// detail.
	GetSubscription(ctx context.Context, subscriptionID string) (*types.SubscriptionDetails, error)
}

// WebhookVerifier abstracts billing webhook signature checking.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature
	// header and signing secret. Returns nil on success.
	Verify(payload []byte, header string, secret string) error
}

// IdentityWebhookVerifier abstracts identity-provider webhook signature
// checking (svix-style signed delivery).
type IdentityWebhookVerifier interface {
	// Verify validates a payload against the msg id, timestamp, and
	// signature headers using the signing secret. Returns nil on success.
	Verify(payload []byte, msgID, timestamp, signature string, secret string) error
}

// Billing event type constants prevent magic strings in webhook handlers.
const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripeSubUpdated        = "customer.subscription.updated"
	EventStripeSubDeleted        = "customer.subscription.deleted"
)

// Identity-provider event type constants.
const (
	EventIdentityUserCreated = "user.created"
	EventIdentityUserUpdated = "user.updated"
	EventIdentityUserDeleted = "user.deleted"
)
