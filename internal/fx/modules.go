package fx

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"revhealth/internal/config"
	"revhealth/internal/database"
	"revhealth/internal/directory"
	"revhealth/internal/logger"
	"revhealth/internal/repository"
	"revhealth/internal/scheduler"
	"revhealth/internal/scoring"
	"revhealth/internal/server"
	"revhealth/internal/service"
)

func ProvideEngine(cfg *config.Config, log zerolog.Logger) (*scoring.Engine, error) {
	metricCfg, err := scoring.LoadConfig(cfg.MetricConfigPath)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.MetricConfigPath).Msg("failed to load metric config")
		return nil, err
	}
	return scoring.NewEngine(metricCfg)
}

func ProvideDirectory(cfg *config.Config, accounts *repository.AccountRepository) directory.Directory {
	if cfg.DirectoryMode == "remote" {
		return directory.NewClient(cfg.DirectoryBaseURL, cfg.DirectoryAPIKey)
	}
	return directory.NewSQL(accounts)
}

func ProvideSnapshotStore(repo *repository.SnapshotRepository) service.SnapshotStore {
	return repo
}

func ProvideMetricSource(src *scheduler.StoredMetricSource) scheduler.MetricSource {
	return src
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewAccountRepository),
	fx.Provide(repository.NewSnapshotRepository),
	fx.Provide(ProvideSnapshotStore),
	// directory + engine
	fx.Provide(ProvideDirectory),
	fx.Provide(ProvideEngine),
	// svc
	fx.Provide(service.NewScoreService),
	// sync
	fx.Provide(scheduler.NewStoredMetricSource),
	fx.Provide(ProvideMetricSource),
	fx.Provide(scheduler.NewHealthSync),
	// server
	fx.Provide(server.NewScoreServer),
)
