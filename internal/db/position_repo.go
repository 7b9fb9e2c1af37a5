package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"gradboard/internal/types"
)

// Listing page size bounds.
const (
	defaultPositionPageSize = 20
	maxPositionPageSize     = 100
)

// PositionRepository provides read access to the positions table. Position
// rows are owned by the ingestion pipeline; this service never writes them.
type PositionRepository struct {
	db DBTX
}

// NewPositionRepository creates a new PositionRepository backed by the given
// database connection (pool or transaction).
func NewPositionRepository(db DBTX) *PositionRepository {
	return &PositionRepository{db: db}
}

const positionColumns = `q.id, q.title, q.university, q.department, q.location,
	q.description, q.stipend_amount_cents, q.degree_level,
	q.application_deadline, q.posted_at, q.source_url`

func scanPosition(row pgx.Row) (*types.Position, error) {
	var p types.Position
	var (
		location    *string
		description *string
		stipend     *int64
		degreeLevel *string
		sourceURL   *string
	)
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.University,
		&p.Department,
		&location,
		&description,
		&stipend,
		&degreeLevel,
		&p.ApplicationDeadline,
		&p.PostedAt,
		&sourceURL,
	)
	if err != nil {
		return nil, err
	}
	if location != nil {
		p.Location = *location
	}
	if description != nil {
		p.Description = *description
	}
	if stipend != nil {
		p.StipendAmountCents = *stipend
	}
	if degreeLevel != nil {
		p.DegreeLevel = *degreeLevel
	}
	if sourceURL != nil {
		p.SourceURL = *sourceURL
	}
	return &p, nil
}

// GetByID retrieves a single position.
func (r *PositionRepository) GetByID(ctx context.Context, id string) (*types.Position, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions q WHERE q.id = $1`,
		id,
	)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPosition, "position not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve position", err)
	}
	return p, nil
}

// List returns positions matching the filter, newest first, with cursor
// pagination keyed on (posted_at, id). The filter's zero-valued fields are
// ignored; the WHERE clause is assembled dynamically with positional
// parameters only.
func (r *PositionRepository) List(ctx context.Context, filter types.PositionFilter) ([]types.Position, *types.PageInfo, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPositionPageSize
	}
	if limit > maxPositionPageSize {
		limit = maxPositionPageSize
	}

	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.University != "" {
		conditions = append(conditions, "q.university = "+arg(filter.University))
	}
	if filter.Department != "" {
		conditions = append(conditions, "q.department = "+arg(filter.Department))
	}
	if filter.DegreeLevel != "" {
		conditions = append(conditions, "q.degree_level = "+arg(filter.DegreeLevel))
	}
	if filter.Search != "" {
		pattern := arg("%" + filter.Search + "%")
		conditions = append(conditions, "(q.title ILIKE "+pattern+" OR q.description ILIKE "+pattern+")")
	}
	if filter.Cursor != "" {
		// Keyset pagination: resume strictly after the cursor row in
		// (posted_at DESC, id) order.
		cursor := arg(filter.Cursor)
		conditions = append(conditions, `(q.posted_at, q.id) <
			(SELECT c.posted_at, c.id FROM positions c WHERE c.id = `+cursor+`)`)
	}

	query := `SELECT ` + positionColumns + ` FROM positions q`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	// Fetch one extra row to detect whether another page exists.
	query += " ORDER BY q.posted_at DESC, q.id DESC LIMIT " + arg(limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list positions", err)
	}
	defer rows.Close()

	var positions []types.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan position", err)
		}
		positions = append(positions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate positions", err)
	}

	page := &types.PageInfo{}
	if len(positions) > limit {
		positions = positions[:limit]
		page.HasMore = true
		page.NextCursor = positions[len(positions)-1].ID
	}
	return positions, page, nil
}
