package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"gradboard/internal/types"
)

// ApplicationRepository provides data access for the applications table.
// All queries are scoped to a profile; a profile can never read or mutate
// another profile's applications.
type ApplicationRepository struct {
	db DBTX
}

// NewApplicationRepository creates a new ApplicationRepository backed by the
// given database connection (pool or transaction).
func NewApplicationRepository(db DBTX) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `a.id, a.profile_id, a.position_id, a.status,
	a.notes, a.applied_at, a.created_at, a.updated_at`

func scanApplication(row pgx.Row) (*types.Application, error) {
	var a types.Application
	var notes *string
	err := row.Scan(
		&a.ID,
		&a.ProfileID,
		&a.PositionID,
		&a.Status,
		&notes,
		&a.AppliedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if notes != nil {
		a.Notes = *notes
	}
	return &a, nil
}

// Create inserts a new application row. The status defaults to 'saved' when
// empty. applied_at is stamped when the initial status is 'applied'.
func (r *ApplicationRepository) Create(ctx context.Context, profileID, positionID string, status types.ApplicationStatus, notes string) (*types.Application, error) {
	if status == "" {
		status = types.AppStatusSaved
	}

	var appliedAt *time.Time
	if status == types.AppStatusApplied {
		now := time.Now().UTC()
		appliedAt = &now
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO applications (id, profile_id, position_id, status, notes, applied_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, profile_id, position_id, status, notes, applied_at, created_at, updated_at`,
		"app_"+uuid.NewString(),
		profileID,
		positionID,
		status,
		nilIfEmpty(notes),
		appliedAt,
	)

	a, err := scanApplication(row)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return nil, types.NewAppError(types.ErrCodeConflictApplicationExists, "an application for this position already exists", err)
		case isForeignKeyViolation(err):
			return nil, types.NewAppError(types.ErrCodeNotFoundPosition, "position not found", err)
		default:
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create application", err)
		}
	}
	return a, nil
}

// GetByID retrieves an application scoped to its owning profile.
func (r *ApplicationRepository) GetByID(ctx context.Context, id, profileID string) (*types.Application, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications a
		 WHERE a.id = $1 AND a.profile_id = $2`,
		id,
		profileID,
	)

	a, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundApplication, "application not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve application", err)
	}
	return a, nil
}

// ListByProfile returns all of a profile's applications, newest first.
func (r *ApplicationRepository) ListByProfile(ctx context.Context, profileID string) ([]types.Application, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+applicationColumns+` FROM applications a
		 WHERE a.profile_id = $1
		 ORDER BY a.created_at DESC`,
		profileID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list applications", err)
	}
	defer rows.Close()

	var result []types.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan application", err)
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate applications", err)
	}
	return result, nil
}

// Update patches an application's status and/or notes. Passing a nil field
// leaves it unchanged. Transitioning into 'applied' stamps applied_at once;
// an existing applied_at is preserved on replays.
func (r *ApplicationRepository) Update(ctx context.Context, id, profileID string, status *types.ApplicationStatus, notes *string) (*types.Application, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE applications SET
		   status = COALESCE($1, status),
		   notes = COALESCE($2, notes),
		   applied_at = CASE
		     WHEN $1 = 'applied' AND applied_at IS NULL THEN NOW()
		     ELSE applied_at
		   END,
		   updated_at = NOW()
		 WHERE id = $3 AND profile_id = $4
		 RETURNING id, profile_id, position_id, status, notes, applied_at, created_at, updated_at`,
		status,
		notes,
		id,
		profileID,
	)

	a, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundApplication, "application not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update application", err)
	}
	return a, nil
}

// Delete removes an application scoped to its owning profile.
func (r *ApplicationRepository) Delete(ctx context.Context, id, profileID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM applications WHERE id = $1 AND profile_id = $2`,
		id,
		profileID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete application", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundApplication, "application not found", nil)
	}
	return nil
}

// NewApplicationID generates a new application primary key. Exposed for
// tests that construct fixtures.
func NewApplicationID() string {
	return "app_" + uuid.NewString()
}
