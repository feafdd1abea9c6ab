package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"revhealth/internal/constants"
	"revhealth/internal/directory"
	"revhealth/internal/domain"
	"revhealth/internal/repository"
	"revhealth/internal/scoring"
)

// ErrCorruptDrivers indicates a stored snapshot whose drivers payload fails
// shape validation. This is a data corruption failure and is never masked:
// silently tolerating it would let a dashboard render wrong drivers with no
// indication.
var ErrCorruptDrivers = errors.New("stored drivers payload is structurally invalid")

// SnapshotStore is the slice of the snapshot repository the service needs.
type SnapshotStore interface {
	Insert(ctx context.Context, row *repository.SnapshotRow) error
	LatestByAccountID(ctx context.Context, accountID string) (*repository.SnapshotRow, error)
	ListByAccountID(ctx context.Context, accountID string, limit int) ([]repository.SnapshotRow, error)
}

// ScoreService records computed TRS results as append-only history and
// answers latest/trend queries per account.
type ScoreService struct {
	engine    *scoring.Engine
	store     SnapshotStore
	directory directory.Directory
	logger    zerolog.Logger
}

func NewScoreService(engine *scoring.Engine, store SnapshotStore, dir directory.Directory, logger zerolog.Logger) *ScoreService {
	return &ScoreService{engine: engine, store: store, directory: dir, logger: logger}
}

// RecordSnapshot computes the score for inputs and appends one immutable
// history row. A zero computedAt defaults to now; an empty id lets storage
// assign one. The account slug is resolved after the write and only used in
// the returned value, so directory data can drift without corrupting
// history; an unresolvable account yields an empty slug, not an error.
func (s *ScoreService) RecordSnapshot(ctx context.Context, accountID string, inputs domain.ScoreInputs, computedAt time.Time, id string) (*domain.ScoreSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if computedAt.IsZero() {
		computedAt = time.Now()
	}
	// Stored timestamps must share one zone, or the text-based ordering in
	// sqlite compares rows from different offsets incorrectly.
	computedAt = computedAt.UTC()

	computed := s.engine.Compute(inputs)

	drivers, err := json.Marshal(computed.Drivers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode drivers: %w", err)
	}

	row := &repository.SnapshotRow{
		ID:         id,
		AccountID:  accountID,
		ComputedAt: computedAt,
		Score:      computed.Score,
		Band:       string(computed.Band),
		Drivers:    drivers,
		Metrics:    inputs,
	}

	if err := s.store.Insert(ctx, row); err != nil {
		s.logger.Error().Err(err).Str("account_id", accountID).Msg("failed to insert snapshot")
		return nil, err
	}

	slug := ""
	account, err := s.directory.FindByID(ctx, accountID)
	if err != nil {
		s.logger.Warn().Err(err).Str("account_id", accountID).Msg("failed to resolve account slug")
	} else if account != nil {
		slug = account.Slug
	}

	s.logger.Info().
		Str("snapshot_id", row.ID).
		Str("account_id", accountID).
		Float64("score", computed.Score).
		Str("band", string(computed.Band)).
		Msg("snapshot recorded")

	return &domain.ScoreSnapshot{
		ID:          row.ID,
		AccountID:   accountID,
		AccountSlug: slug,
		ComputedAt:  computedAt,
		Score:       computed.Score,
		Band:        computed.Band,
		Drivers:     computed.Drivers,
		Metrics:     inputs,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// LatestByAccountSlug returns the most recent snapshot for the account, or
// nil, nil when the slug is unknown or the account has no snapshots yet.
// Both are normal, expected outcomes, not failures.
func (s *ScoreService) LatestByAccountSlug(ctx context.Context, slug string) (*domain.ScoreSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	account, err := s.directory.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account %q: %w", slug, err)
	}
	if account == nil {
		s.logger.Debug().Str("slug", slug).Msg("account not found in directory")
		return nil, nil
	}

	row, err := s.store.LatestByAccountID(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		s.logger.Debug().Str("slug", slug).Str("account_id", account.ID).Msg("account has no snapshots")
		return nil, nil
	}

	return s.hydrate(row, slug)
}

// HistoryByAccountSlug returns the account's snapshots newest first, or
// nil, nil for an unknown slug.
func (s *ScoreService) HistoryByAccountSlug(ctx context.Context, slug string, limit int) ([]domain.ScoreSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}
	if limit > constants.MaxHistoryLimit {
		limit = constants.MaxHistoryLimit
	}

	account, err := s.directory.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account %q: %w", slug, err)
	}
	if account == nil {
		return nil, nil
	}

	rows, err := s.store.ListByAccountID(ctx, account.ID, limit)
	if err != nil {
		return nil, err
	}

	snapshots := make([]domain.ScoreSnapshot, 0, len(rows))
	for i := range rows {
		snapshot, err := s.hydrate(&rows[i], slug)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snapshot)
	}
	return snapshots, nil
}

func (s *ScoreService) hydrate(row *repository.SnapshotRow, slug string) (*domain.ScoreSnapshot, error) {
	drivers, err := decodeDrivers(row.Drivers)
	if err != nil {
		s.logger.Error().Err(err).Str("snapshot_id", row.ID).Msg("corrupt drivers payload in stored snapshot")
		return nil, fmt.Errorf("snapshot %s: %w", row.ID, err)
	}

	return &domain.ScoreSnapshot{
		ID:          row.ID,
		AccountID:   row.AccountID,
		AccountSlug: slug,
		ComputedAt:  row.ComputedAt,
		Score:       row.Score,
		Band:        domain.Band(row.Band),
		Drivers:     drivers,
		Metrics:     row.Metrics,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// decodeDrivers validates the stored payload against the expected shape: an
// array of {name: string, delta: number}. Stored drivers are treated as
// externally untrusted data even though this service wrote them.
func decodeDrivers(raw []byte) ([]domain.Driver, error) {
	var entries []struct {
		Name  *string  `json:"name"`
		Delta *float64 `json:"delta"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDrivers, err)
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: payload is not an array", ErrCorruptDrivers)
	}

	drivers := make([]domain.Driver, len(entries))
	for i, entry := range entries {
		if entry.Name == nil || entry.Delta == nil {
			return nil, fmt.Errorf("%w: entry %d is missing name or delta", ErrCorruptDrivers, i)
		}
		drivers[i] = domain.Driver{Name: *entry.Name, Delta: *entry.Delta}
	}
	return drivers, nil
}
