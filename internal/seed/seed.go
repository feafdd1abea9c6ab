package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"revhealth/internal/config"
	"revhealth/internal/domain"
	"revhealth/internal/repository"
	"revhealth/internal/service"
)

// Run inserts the demo account and an initial snapshot when seeding is
// enabled and the account has no history yet. Safe to call on every boot.
func Run(ctx context.Context, cfg *config.Config, accounts *repository.AccountRepository, svc *service.ScoreService, logger zerolog.Logger) error {
	if !cfg.SeedDemoData {
		return nil
	}

	account := &domain.Account{
		ID:   "demo-account",
		Slug: "demo",
		Name: "Demo Enterprise",
		Tier: "Enterprise",
	}
	if err := accounts.Upsert(ctx, account); err != nil {
		return fmt.Errorf("seed demo account: %w", err)
	}

	existing, err := svc.LatestByAccountSlug(ctx, account.Slug)
	if err != nil {
		return fmt.Errorf("check demo history: %w", err)
	}
	if existing != nil {
		logger.Debug().Str("slug", account.Slug).Msg("demo account already has history, skipping seed snapshot")
		return nil
	}

	inputs := domain.ScoreInputs{
		Cac:          3.2,
		Nrr:          118,
		Churn:        4.1,
		Payback:      9,
		Margin:       68,
		ForecastMape: 12,
		Velocity:     1.6,
		Incidents:    0.8,
	}

	snapshot, err := svc.RecordSnapshot(ctx, account.ID, inputs, time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC), "")
	if err != nil {
		return fmt.Errorf("seed demo snapshot: %w", err)
	}

	logger.Info().
		Str("slug", account.Slug).
		Float64("score", snapshot.Score).
		Str("band", string(snapshot.Band)).
		Msg("demo data seeded")
	return nil
}
