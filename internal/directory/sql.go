package directory

import (
	"context"

	"revhealth/internal/domain"
	"revhealth/internal/repository"
)

// SQL resolves accounts against the local accounts table. This is the
// default directory when the service owns its own account records.
type SQL struct {
	accounts *repository.AccountRepository
}

func NewSQL(accounts *repository.AccountRepository) *SQL {
	return &SQL{accounts: accounts}
}

func (d *SQL) FindBySlug(ctx context.Context, slug string) (*domain.Account, error) {
	return d.accounts.GetBySlug(ctx, slug)
}

func (d *SQL) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return d.accounts.GetByID(ctx, id)
}
