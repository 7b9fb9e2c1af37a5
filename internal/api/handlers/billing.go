package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gradboard/internal/config"
	"gradboard/internal/core"
	"gradboard/internal/external"
	"gradboard/internal/types"
)

// ---------------------------------------------------------------------------
// Request/Response types
// ---------------------------------------------------------------------------

// CreateCheckoutRequest is the body for POST /v1/billing/checkout-session.
// Redirect URLs are NOT accepted from the client; they are constructed
// server-side from configuration to prevent open redirects.
type CreateCheckoutRequest struct {
	PriceID string `json:"price_id" validate:"required"`
}

// CheckoutResponse is the response for POST /v1/billing/checkout-session.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// PortalResponse is the response for POST /v1/billing/portal-session.
type PortalResponse struct {
	URL string `json:"url"`
}

// ---------------------------------------------------------------------------
// Handler dependencies
// ---------------------------------------------------------------------------

// CheckoutProfileStore is the subset of the profile repository needed by
// checkout initiation.
type CheckoutProfileStore interface {
	Ensure(ctx context.Context, clerkUserID, email, fullName string) (*types.Profile, error)
	SetCustomerIDIfAbsent(ctx context.Context, profileID, customerID string) (string, error)
}

// PriceCatalog answers whether a price id sells one of our tiers.
type PriceCatalog interface {
	KnownPrice(priceID string) bool
}

// ---------------------------------------------------------------------------
// Billing Handler
// ---------------------------------------------------------------------------

// BillingHandler handles synchronous billing actions initiated by the user.
type BillingHandler struct {
	service      external.BillingService
	profiles     CheckoutProfileStore
	catalog      PriceCatalog
	validator    *core.Validator
	dashboardURL string
	logger       *slog.Logger
}

// NewBillingHandler creates a new BillingHandler with the provided
// dependencies.
func NewBillingHandler(
	svc external.BillingService,
	profiles CheckoutProfileStore,
	catalog PriceCatalog,
	cfg *config.Config,
	v *core.Validator,
	l *slog.Logger,
) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}

	dashboardURL := ""
	if cfg != nil {
		dashboardURL = cfg.Server.DashboardURL
	}

	return &BillingHandler{
		service:      svc,
		profiles:     profiles,
		catalog:      catalog,
		validator:    v,
		dashboardURL: dashboardURL,
		logger:       l,
	}
}

// RegisterRoutes mounts the billing endpoints onto the authenticated router
// group.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/checkout-session", h.CreateCheckoutSession)
	r.Post("/billing/portal-session", h.CreatePortalSession)
}

// CreateCheckoutSession handles POST /v1/billing/checkout-session.
//
//  1. Decode and validate the request (price_id required and known).
//  2. Reconcile the actor's profile (safety net for lost signup webhooks).
//  3. Self-healing customer id: EnsureCustomer searches before creating,
//     and the id is persisted with a conditional update so a concurrent
//     request's customer wins exactly once.
//  4. Server-controlled redirect URLs from configuration.
//  5. Respond with the hosted checkout URL.
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if appErr := h.validator.ValidateStruct(req); appErr != nil {
		core.Error(w, r, appErr)
		return
	}
	if !h.catalog.KnownPrice(req.PriceID) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidField,
			"price_id does not match a purchasable plan",
			nil,
		))
		return
	}

	profile, err := reconcileActor(r.Context(), h.profiles)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	meta := external.CheckoutMetadata{
		ProfileID:   profile.ID,
		ClerkUserID: profile.ClerkUserID,
	}

	customerID := profile.StripeCustomerID
	if customerID == "" {
		created, err := h.service.EnsureCustomer(r.Context(), meta, profile.Email)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		// The stored id wins if another request persisted one first.
		customerID, err = h.profiles.SetCustomerIDIfAbsent(r.Context(), profile.ID, created)
		if err != nil {
			core.Error(w, r, err)
			return
		}
	}

	urls := types.RedirectURLs{
		Success: h.dashboardURL + "/billing?checkout=success",
		Cancel:  h.dashboardURL + "/billing?checkout=canceled",
	}

	checkoutURL, err := h.service.CreateCheckoutSession(r.Context(), customerID, req.PriceID, meta, urls)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session created",
		"profile_id", profile.ID,
		"price_id", req.PriceID,
	)

	core.JSON(w, r, http.StatusOK, CheckoutResponse{URL: checkoutURL})
}

// CreatePortalSession handles POST /v1/billing/portal-session. Only
// profiles that already have a billing customer can open the portal.
func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	profile, err := reconcileActor(r.Context(), h.profiles)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if profile.StripeCustomerID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidField,
			"no billing account exists for this profile",
			nil,
		))
		return
	}

	portalURL, err := h.service.CreatePortalSession(r.Context(), profile.StripeCustomerID, h.dashboardURL+"/billing")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, PortalResponse{URL: portalURL})
}
