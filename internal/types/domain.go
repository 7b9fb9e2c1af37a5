package types

import "time"

// Profile is the platform's user record, keyed to an external identity.
// It is created either by an identity-provider webhook or lazily by profile
// reconciliation on first authenticated request.
type Profile struct {
	ID                   string             `json:"id"`
	ClerkUserID          string             `json:"clerk_user_id"`
	Email                string             `json:"email"`
	FullName             string             `json:"full_name,omitempty"`
	StripeCustomerID     string             `json:"-"`
	StripeSubscriptionID string             `json:"-"`
	Tier                 Tier               `json:"subscription_tier"`
	SubscriptionStatus   SubscriptionStatus `json:"subscription_status"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// Position is an externally-sourced assistantship listing. Its lifecycle is
// owned by the ingestion pipeline; this service only reads it.
type Position struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	University          string     `json:"university"`
	Department          string     `json:"department"`
	Location            string     `json:"location,omitempty"`
	Description         string     `json:"description,omitempty"`
	StipendAmountCents  int64      `json:"stipend_amount_cents,omitempty"`
	DegreeLevel         string     `json:"degree_level,omitempty"`
	ApplicationDeadline *time.Time `json:"application_deadline,omitempty"`
	PostedAt            time.Time  `json:"posted_at"`
	SourceURL           string     `json:"source_url,omitempty"`
}

// SavedPosition joins a profile to a position it bookmarked.
// The (profile, position) pair is unique.
type SavedPosition struct {
	ID         string    `json:"id"`
	ProfileID  string    `json:"profile_id"`
	PositionID string    `json:"position_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// SavedPositionWithDetails is a bookmark joined with its position, as
// returned by the saved-positions listing.
type SavedPositionWithDetails struct {
	SavedPosition
	Position Position `json:"position"`
}

// Application tracks a profile's application to a position through the
// pipeline (saved -> applied -> interviewing -> offered/rejected).
type Application struct {
	ID         string            `json:"id"`
	ProfileID  string            `json:"profile_id"`
	PositionID string            `json:"position_id"`
	Status     ApplicationStatus `json:"status"`
	Notes      string            `json:"notes,omitempty"`
	AppliedAt  *time.Time        `json:"applied_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// PositionFilter narrows a positions listing. Zero-valued fields are ignored.
type PositionFilter struct {
	University  string
	Department  string
	DegreeLevel string
	Search      string // matches title and description
	Limit       int
	Cursor      string // position ID to start after, from PageInfo.NextCursor
}

// PageInfo carries cursor pagination state for list responses.
type PageInfo struct {
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// RedirectURLs holds the server-controlled checkout redirect targets.
// These are always built from configuration, never from client input.
type RedirectURLs struct {
	Success string
	Cancel  string
}

// SubscriptionDetails is the normalized view of a provider subscription
// fetched during webhook processing.
type SubscriptionDetails struct {
	ID            string
	Status        SubscriptionStatus
	PriceID       string
	UnitAmount    int64 // price unit amount in cents
	CustomerEmail string
}
