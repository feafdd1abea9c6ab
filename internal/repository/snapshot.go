package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"revhealth/internal/domain"
)

// SnapshotRow is one persisted history row. Drivers are kept as raw JSON
// here; decoding and shape validation happen in the service layer, which
// treats stored drivers as an untrusted payload.
type SnapshotRow struct {
	ID         string
	AccountID  string
	ComputedAt time.Time
	Score      float64
	Band       string
	Drivers    []byte
	Metrics    domain.ScoreInputs
	CreatedAt  time.Time
}

// SnapshotRepository is append-only by construction: it exposes no update or
// delete operation, so history for an account only ever grows.
type SnapshotRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSnapshotRepository(sqlDB *sql.DB, logger zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: sqlDB, logger: logger}
}

// Insert writes exactly one new row and assigns a nanoid when the caller
// supplied no id. The stored row is never touched again.
func (r *SnapshotRepository) Insert(ctx context.Context, row *SnapshotRow) error {
	if row.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		row.ID = id
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	// sqlite stores time.Time as text in the value's own offset, so rows
	// written with mixed offsets would not order correctly under
	// ORDER BY computed_at. Normalize before binding.
	row.ComputedAt = row.ComputedAt.UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trs_score_snapshots
			(id, account_id, computed_at, score, band, drivers,
			 cac, nrr, churn, payback, margin, forecast_mape, velocity, incidents,
			 created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.AccountID, row.ComputedAt, row.Score, row.Band, string(row.Drivers),
		row.Metrics.Cac, row.Metrics.Nrr, row.Metrics.Churn, row.Metrics.Payback,
		row.Metrics.Margin, row.Metrics.ForecastMape, row.Metrics.Velocity, row.Metrics.Incidents,
		row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot for account %s: %w", row.AccountID, err)
	}

	r.logger.Debug().
		Str("snapshot_id", row.ID).
		Str("account_id", row.AccountID).
		Time("computed_at", row.ComputedAt).
		Msg("snapshot recorded")
	return nil
}

const selectSnapshotSQL = `
	SELECT id, account_id, computed_at, score, band, drivers,
	       cac, nrr, churn, payback, margin, forecast_mape, velocity, incidents,
	       created_at
	FROM trs_score_snapshots
`

// LatestByAccountID returns nil, nil when the account has no snapshots.
// Ordering is by computed_at; id breaks ties so repeated reads are stable
// when timestamps collide.
func (r *SnapshotRepository) LatestByAccountID(ctx context.Context, accountID string) (*SnapshotRow, error) {
	row := r.db.QueryRowContext(ctx,
		selectSnapshotSQL+`WHERE account_id = ? ORDER BY computed_at DESC, id DESC LIMIT 1`,
		accountID,
	)

	snapshot, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot for account %s: %w", accountID, err)
	}
	return snapshot, nil
}

func (r *SnapshotRepository) ListByAccountID(ctx context.Context, accountID string, limit int) ([]SnapshotRow, error) {
	rows, err := r.db.QueryContext(ctx,
		selectSnapshotSQL+`WHERE account_id = ? ORDER BY computed_at DESC, id DESC LIMIT ?`,
		accountID, int64(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var result []SnapshotRow
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		result = append(result, *snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshot rows: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(s rowScanner) (*SnapshotRow, error) {
	var row SnapshotRow
	var drivers string
	err := s.Scan(
		&row.ID,
		&row.AccountID,
		&row.ComputedAt,
		&row.Score,
		&row.Band,
		&drivers,
		&row.Metrics.Cac,
		&row.Metrics.Nrr,
		&row.Metrics.Churn,
		&row.Metrics.Payback,
		&row.Metrics.Margin,
		&row.Metrics.ForecastMape,
		&row.Metrics.Velocity,
		&row.Metrics.Incidents,
		&row.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	row.Drivers = []byte(drivers)
	return &row, nil
}
