package directory

import (
	"context"

	"revhealth/internal/domain"
)

// Directory resolves account identifiers to accounts and back. This
// subsystem never owns or mutates accounts; it only looks them up. Both
// lookups return nil, nil when the account does not exist, since an unknown
// account is an expected outcome rather than a failure.
type Directory interface {
	FindBySlug(ctx context.Context, slug string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
}
