package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"revhealth/internal/config"
	"revhealth/internal/service"
)

const syncConcurrency = 4

// HealthSync periodically re-records a score snapshot for each configured
// account, mirroring the console's scheduled client-health sync. It is a
// no-op when no schedule is configured.
type HealthSync struct {
	cron     *cron.Cron
	svc      *service.ScoreService
	source   MetricSource
	schedule string
	slugs    []string
	logger   zerolog.Logger
}

func NewHealthSync(cfg *config.Config, svc *service.ScoreService, source MetricSource, logger zerolog.Logger) *HealthSync {
	var slugs []string
	for _, slug := range strings.Split(cfg.SyncAccounts, ",") {
		if slug = strings.TrimSpace(slug); slug != "" {
			slugs = append(slugs, slug)
		}
	}

	return &HealthSync{
		cron:     cron.New(),
		svc:      svc,
		source:   source,
		schedule: cfg.SyncSchedule,
		slugs:    slugs,
		logger:   logger,
	}
}

func (h *HealthSync) Start() error {
	if h.schedule == "" || len(h.slugs) == 0 {
		h.logger.Info().Msg("health sync disabled")
		return nil
	}

	if _, err := h.cron.AddFunc(h.schedule, func() {
		if err := h.RunOnce(context.Background()); err != nil {
			h.logger.Error().Err(err).Msg("health sync run failed")
		}
	}); err != nil {
		return fmt.Errorf("register health sync task: %w", err)
	}

	h.cron.Start()
	h.logger.Info().
		Str("schedule", h.schedule).
		Int("accounts", len(h.slugs)).
		Msg("health sync scheduled")
	return nil
}

func (h *HealthSync) Stop() {
	ctx := h.cron.Stop()
	<-ctx.Done()
}

// RunOnce records one snapshot per configured account. Accounts without
// source data are skipped, not failed; a single account error does not stop
// the others.
func (h *HealthSync) RunOnce(ctx context.Context) error {
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)

	for _, slug := range h.slugs {
		g.Go(func() error {
			if err := h.syncAccount(ctx, slug); err != nil {
				h.logger.Error().Err(err).Str("slug", slug).Msg("account sync failed")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	h.logger.Info().
		Int("accounts", len(h.slugs)).
		Dur("duration", time.Since(start)).
		Msg("health sync completed")
	return nil
}

func (h *HealthSync) syncAccount(ctx context.Context, slug string) error {
	accountID, inputs, err := h.source.Inputs(ctx, slug)
	if err != nil {
		return fmt.Errorf("fetch inputs for %q: %w", slug, err)
	}
	if inputs == nil {
		h.logger.Debug().Str("slug", slug).Msg("no source metrics, skipping")
		return nil
	}

	snapshot, err := h.svc.RecordSnapshot(ctx, accountID, *inputs, time.Time{}, "")
	if err != nil {
		return fmt.Errorf("record snapshot for %q: %w", slug, err)
	}

	h.logger.Info().
		Str("slug", slug).
		Str("snapshot_id", snapshot.ID).
		Float64("score", snapshot.Score).
		Str("band", string(snapshot.Band)).
		Msg("account synced")
	return nil
}
