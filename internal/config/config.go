package config

import (
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

type Config struct {
	DBPath           string
	ServerPort       string
	LogLevel         string
	MetricConfigPath string

	// Account directory mode: "sql" resolves against the local accounts
	// table, "remote" against the CRM directory API.
	DirectoryMode    string
	DirectoryBaseURL string
	DirectoryAPIKey  string

	SyncSchedule string
	SyncAccounts string
	SeedDemoData bool
}

// Load runs before the logger exists (the logger's level comes from here),
// so it stays silent; the startup summary is logged by the caller.
func Load() (*Config, error) {
	// A missing .env file is fine, real environment variables win anyway.
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:           getEnv("DB_PATH", "revhealth.db"),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		MetricConfigPath: getEnv("METRIC_CONFIG_PATH", ""),
		DirectoryMode:    getEnv("DIRECTORY_MODE", "sql"),
		DirectoryBaseURL: getEnv("DIRECTORY_BASE_URL", ""),
		DirectoryAPIKey:  getEnv("DIRECTORY_API_KEY", ""),
		SyncSchedule:     getEnv("SYNC_SCHEDULE", ""),
		SyncAccounts:     getEnv("SYNC_ACCOUNTS", ""),
		SeedDemoData:     getEnv("SEED_DEMO_DATA", "false") == "true",
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var Module = fx.Provide(Load)
