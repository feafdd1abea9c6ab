package scheduler

import (
	"context"
	"fmt"

	"revhealth/internal/directory"
	"revhealth/internal/domain"
	"revhealth/internal/service"
)

// MetricSource supplies the raw metric vector for one account slug. How
// metrics are sourced (CRM sync, finance ledgers) is external to this
// service; implementations return a nil inputs pointer when no data is
// available for the account.
type MetricSource interface {
	Inputs(ctx context.Context, slug string) (accountID string, inputs *domain.ScoreInputs, err error)
}

// StoredMetricSource replays each account's most recently stored inputs.
// It keeps the sync loop exercised end to end until a real upstream source
// is wired in.
type StoredMetricSource struct {
	svc       *service.ScoreService
	directory directory.Directory
}

func NewStoredMetricSource(svc *service.ScoreService, dir directory.Directory) *StoredMetricSource {
	return &StoredMetricSource{svc: svc, directory: dir}
}

func (s *StoredMetricSource) Inputs(ctx context.Context, slug string) (string, *domain.ScoreInputs, error) {
	account, err := s.directory.FindBySlug(ctx, slug)
	if err != nil {
		return "", nil, fmt.Errorf("resolve account %q: %w", slug, err)
	}
	if account == nil {
		return "", nil, nil
	}

	latest, err := s.svc.LatestByAccountSlug(ctx, slug)
	if err != nil {
		return "", nil, err
	}
	if latest == nil {
		return "", nil, nil
	}

	metrics := latest.Metrics
	return account.ID, &metrics, nil
}
