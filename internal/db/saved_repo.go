package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"gradboard/internal/types"
)

// freeTierSavedLimit is the maximum number of saved positions for a free
// tier profile. Paid tiers are unlimited.
const freeTierSavedLimit = 5

// SavedPositionRepository provides data access for the saved_positions
// table, including the quota-gated save.
type SavedPositionRepository struct {
	db DBTX
}

// NewSavedPositionRepository creates a new SavedPositionRepository backed by
// the given database connection (pool or transaction).
func NewSavedPositionRepository(db DBTX) *SavedPositionRepository {
	return &SavedPositionRepository{db: db}
}

// Save bookmarks a position for a profile, enforcing the free-tier quota in
// a single conditional INSERT so that concurrent saves cannot push a free
// profile past the limit. The insert proceeds when the profile's tier is
// paid OR its current saved count is below the quota.
//
// Outcomes:
//   - row inserted: the new SavedPosition is returned.
//   - duplicate (unique violation): ErrCodeConflictAlreadySaved.
//   - unknown position (FK violation): ErrCodeNotFoundPosition.
//   - zero rows and no existing pair: ErrCodeLimitSavedPositions.
func (r *SavedPositionRepository) Save(ctx context.Context, profileID, positionID string) (*types.SavedPosition, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO saved_positions (id, profile_id, position_id)
		 SELECT $1, $2, $3
		 WHERE (SELECT subscription_tier FROM profiles WHERE id = $2) IN ('pro', 'premium')
		    OR (SELECT COUNT(*) FROM saved_positions WHERE profile_id = $2) < $4
		 RETURNING id, profile_id, position_id, created_at`,
		"sav_"+uuid.NewString(),
		profileID,
		positionID,
		freeTierSavedLimit,
	)

	var sp types.SavedPosition
	err := row.Scan(&sp.ID, &sp.ProfileID, &sp.PositionID, &sp.CreatedAt)
	if err == nil {
		return &sp, nil
	}

	switch {
	case isUniqueViolation(err):
		return nil, types.NewAppError(types.ErrCodeConflictAlreadySaved, "position already saved", err)
	case isForeignKeyViolation(err):
		return nil, types.NewAppError(types.ErrCodeNotFoundPosition, "position not found", err)
	case errors.Is(err, pgx.ErrNoRows):
		// The conditional insert declined: quota reached.
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeLimitSavedPositions,
			"free tier saved position limit reached",
			nil,
			map[string]any{"limit": freeTierSavedLimit},
		)
	default:
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to save position", err)
	}
}

// Delete removes a bookmark. Idempotent: deleting a pair that does not exist
// is not an error.
func (r *SavedPositionRepository) Delete(ctx context.Context, profileID, positionID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM saved_positions WHERE profile_id = $1 AND position_id = $2`,
		profileID,
		positionID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete saved position", err)
	}
	return nil
}

// ListByProfile returns the profile's bookmarks joined with their positions,
// newest first.
func (r *SavedPositionRepository) ListByProfile(ctx context.Context, profileID string) ([]types.SavedPositionWithDetails, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.id, s.profile_id, s.position_id, s.created_at,
		        q.id, q.title, q.university, q.department, q.location, q.description,
		        q.stipend_amount_cents, q.degree_level, q.application_deadline,
		        q.posted_at, q.source_url
		 FROM saved_positions s
		 JOIN positions q ON q.id = s.position_id
		 WHERE s.profile_id = $1
		 ORDER BY s.created_at DESC`,
		profileID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list saved positions", err)
	}
	defer rows.Close()

	var result []types.SavedPositionWithDetails
	for rows.Next() {
		var item types.SavedPositionWithDetails
		var (
			location    *string
			description *string
			stipend     *int64
			degreeLevel *string
			sourceURL   *string
		)
		err := rows.Scan(
			&item.ID,
			&item.ProfileID,
			&item.PositionID,
			&item.CreatedAt,
			&item.Position.ID,
			&item.Position.Title,
			&item.Position.University,
			&item.Position.Department,
			&location,
			&description,
			&stipend,
			&degreeLevel,
			&item.Position.ApplicationDeadline,
			&item.Position.PostedAt,
			&sourceURL,
		)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan saved position", err)
		}
		if location != nil {
			item.Position.Location = *location
		}
		if description != nil {
			item.Position.Description = *description
		}
		if stipend != nil {
			item.Position.StipendAmountCents = *stipend
		}
		if degreeLevel != nil {
			item.Position.DegreeLevel = *degreeLevel
		}
		if sourceURL != nil {
			item.Position.SourceURL = *sourceURL
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate saved positions", err)
	}
	return result, nil
}

// CountByProfile returns the number of positions a profile has saved.
func (r *SavedPositionRepository) CountByProfile(ctx context.Context, profileID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM saved_positions WHERE profile_id = $1`,
		profileID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count saved positions", err)
	}
	return count, nil
}
