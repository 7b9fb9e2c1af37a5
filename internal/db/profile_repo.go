package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"gradboard/internal/types"
)

// ProfileRepository provides data access for the profiles table, including
// the reconciliation insert and the subscription state transitions driven by
// billing webhooks.
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a new ProfileRepository backed by the given
// database connection (pool or transaction).
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// profileColumns defines the standard set of columns selected for profile
// queries. Used consistently across all query methods to avoid column drift.
const profileColumns = `p.id, p.clerk_user_id, p.email, p.full_name,
	p.stripe_customer_id, p.stripe_subscription_id,
	p.subscription_tier, p.subscription_status, p.created_at, p.updated_at`

// scanProfile scans a single profile row into a types.Profile struct.
// The columns must match the order defined in profileColumns. Nullable
// columns use pointer scan targets.
func scanProfile(row pgx.Row) (*types.Profile, error) {
	var p types.Profile
	var (
		fullName       *string
		customerID     *string
		subscriptionID *string
	)
	err := row.Scan(
		&p.ID,
		&p.ClerkUserID,
		&p.Email,
		&fullName,
		&customerID,
		&subscriptionID,
		&p.Tier,
		&p.SubscriptionStatus,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if fullName != nil {
		p.FullName = *fullName
	}
	if customerID != nil {
		p.StripeCustomerID = *customerID
	}
	if subscriptionID != nil {
		p.StripeSubscriptionID = *subscriptionID
	}
	return &p, nil
}

// NewProfileID generates a new profile primary key.
func NewProfileID() string {
	return "prof_" + uuid.NewString()
}

// Ensure reconciles the external identity with a profile row: it returns the
// existing profile for clerkUserID, or inserts a fresh free/inactive one.
// When a concurrent request wins the insert race (unique violation on
// clerk_user_id), the winner's row is re-fetched and returned. At most one
// insert is ever attempted.
func (r *ProfileRepository) Ensure(ctx context.Context, clerkUserID, email, fullName string) (*types.Profile, error) {
	if clerkUserID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "clerk user id is required", nil)
	}

	existing, err := r.GetByClerkUserID(ctx, clerkUserID)
	if err == nil {
		return existing, nil
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundProfile {
		return nil, err
	}

	if email == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "email is required to create a profile", nil)
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO profiles (id, clerk_user_id, email, full_name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, clerk_user_id, email, full_name,
		   stripe_customer_id, stripe_subscription_id,
		   subscription_tier, subscription_status, created_at, updated_at`,
		NewProfileID(),
		clerkUserID,
		email,
		nilIfEmpty(fullName),
	)

	p, err := scanProfile(row)
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent request created the row between our SELECT
			// and INSERT. Return the winner.
			return r.GetByClerkUserID(ctx, clerkUserID)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create profile", err)
	}
	return p, nil
}

// GetByClerkUserID retrieves a profile by its external identity id.
func (r *ProfileRepository) GetByClerkUserID(ctx context.Context, clerkUserID string) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles p WHERE p.clerk_user_id = $1`,
		clerkUserID,
	)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile", err)
	}
	return p, nil
}

// GetByID retrieves a profile by its primary key.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles p WHERE p.id = $1`,
		id,
	)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile", err)
	}
	return p, nil
}

// GetByEmail retrieves a profile by email address. Used as the last-resort
// resolution path for billing webhook events that carry neither profile id
// nor external identity id in their metadata.
func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles p WHERE p.email = $1
		 ORDER BY p.created_at ASC LIMIT 1`,
		email,
	)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile by email", err)
	}
	return p, nil
}

// GetBySubscriptionID retrieves a profile by its stored billing subscription
// id. Used by subscription.updated/deleted webhook events.
func (r *ProfileRepository) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles p WHERE p.stripe_subscription_id = $1`,
		subscriptionID,
	)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found for subscription", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile by subscription", err)
	}
	return p, nil
}

// UpdateContact patches the mutable identity fields (email, full name).
// Driven by identity-provider user.updated events.
func (r *ProfileRepository) UpdateContact(ctx context.Context, clerkUserID, email, fullName string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET email = $1, full_name = $2, updated_at = NOW()
		 WHERE clerk_user_id = $3`,
		email,
		nilIfEmpty(fullName),
		clerkUserID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update profile contact", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	return nil
}

// Delete removes a profile by external identity id. Saved positions and
// applications cascade at the database level.
func (r *ProfileRepository) Delete(ctx context.Context, clerkUserID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM profiles WHERE clerk_user_id = $1`,
		clerkUserID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete profile", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	return nil
}

// SetCustomerIDIfAbsent stores the billing customer id only when the profile
// has none yet. Returns the profile's current customer id, which is the
// stored one when a concurrent request already persisted a different id.
// This conditional update closes the duplicate-customer race without a
// transaction.
func (r *ProfileRepository) SetCustomerIDIfAbsent(ctx context.Context, profileID, customerID string) (string, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET stripe_customer_id = $1, updated_at = NOW()
		 WHERE id = $2 AND stripe_customer_id IS NULL`,
		customerID,
		profileID,
	)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to store customer id", err)
	}
	if tag.RowsAffected() > 0 {
		return customerID, nil
	}

	// Lost the race (or the id was already set): reuse the stored one.
	p, err := r.GetByID(ctx, profileID)
	if err != nil {
		return "", err
	}
	if p.StripeCustomerID == "" {
		return "", types.NewAppError(types.ErrCodeInternalDB, "customer id update affected no rows", nil)
	}
	return p.StripeCustomerID, nil
}

// ActivateSubscription records a completed checkout: subscription id, tier,
// and active status in one unconditional set. Replay-safe.
func (r *ProfileRepository) ActivateSubscription(ctx context.Context, profileID, subscriptionID string, tier types.Tier) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET stripe_subscription_id = $1, subscription_tier = $2,
		 subscription_status = 'active', updated_at = NOW()
		 WHERE id = $3`,
		subscriptionID,
		tier,
		profileID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to activate subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	return nil
}

// UpdateStatusBySubscriptionID passes a provider subscription status through
// to the profile identified by subscription id. Tier is left unchanged.
func (r *ProfileRepository) UpdateStatusBySubscriptionID(ctx context.Context, subscriptionID string, status types.SubscriptionStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET subscription_status = $1, updated_at = NOW()
		 WHERE stripe_subscription_id = $2`,
		status,
		subscriptionID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found for subscription", nil)
	}
	return nil
}

// DowngradeBySubscriptionID hard-downgrades to the free tier with canceled
// status, regardless of the event payload's status. Driven by
// subscription.deleted events; replay-safe by being an absolute set.
func (r *ProfileRepository) DowngradeBySubscriptionID(ctx context.Context, subscriptionID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET subscription_tier = 'free',
		 subscription_status = 'canceled', updated_at = NOW()
		 WHERE stripe_subscription_id = $1`,
		subscriptionID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to downgrade subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found for subscription", nil)
	}
	return nil
}
