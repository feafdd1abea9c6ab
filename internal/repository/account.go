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

type AccountRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewAccountRepository(sqlDB *sql.DB, logger zerolog.Logger) *AccountRepository {
	return &AccountRepository{db: sqlDB, logger: logger}
}

const selectAccountSQL = `
	SELECT id, slug, name, tier, created_at, updated_at
	FROM accounts
`

// GetByID returns nil, nil when the account does not exist.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectAccountSQL+"WHERE id = ?", id))
}

// GetBySlug returns nil, nil when the account does not exist.
func (r *AccountRepository) GetBySlug(ctx context.Context, slug string) (*domain.Account, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectAccountSQL+"WHERE slug = ?", slug))
}

func (r *AccountRepository) scanOne(row *sql.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.Slug,
		&account.Name,
		&account.Tier,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &account, nil
}

func (r *AccountRepository) Upsert(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		account.ID = id
	}

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, slug, name, tier, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			slug = excluded.slug,
			name = excluded.name,
			tier = excluded.tier,
			updated_at = excluded.updated_at`,
		account.ID, account.Slug, account.Name, account.Tier,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", account.Slug, err)
	}

	r.logger.Debug().Str("account_id", account.ID).Str("slug", account.Slug).Msg("account upserted")
	return nil
}
