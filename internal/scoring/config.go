package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"revhealth/internal/domain"
)

type Direction string

const (
	HigherIsBetter Direction = "higher-is-better"
	LowerIsBetter  Direction = "lower-is-better"
)

type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// MetricConfig describes how one raw metric is normalized and weighted.
// Metrics with weight 0 are informational only: they are normalized and
// reported as drivers but never influence the composite score.
type MetricConfig struct {
	Label     string    `yaml:"label"`
	Weight    float64   `yaml:"weight"`
	Direction Direction `yaml:"direction"`
	Bounds    Bounds    `yaml:"bounds"`
}

// Config is the full metric table, one entry per input field. It is loaded
// once at startup and immutable for the process lifetime.
type Config struct {
	Cac          MetricConfig `yaml:"cac"`
	Nrr          MetricConfig `yaml:"nrr"`
	Churn        MetricConfig `yaml:"churn"`
	Payback      MetricConfig `yaml:"payback"`
	Margin       MetricConfig `yaml:"margin"`
	ForecastMape MetricConfig `yaml:"forecastMape"`
	Velocity     MetricConfig `yaml:"velocity"`
	Incidents    MetricConfig `yaml:"incidents"`
}

// DefaultConfig returns the production metric table. Margin, NRR and churn
// carry 65% of the combined weight; velocity and incidents are informational.
func DefaultConfig() Config {
	return Config{
		Margin: MetricConfig{
			Label:     "Gross Margin",
			Weight:    25,
			Direction: HigherIsBetter,
			Bounds:    Bounds{Min: 0, Max: 80},
		},
		Nrr: MetricConfig{
			Label:     "Net Revenue Retention",
			Weight:    20,
			Direction: HigherIsBetter,
			Bounds:    Bounds{Min: 90, Max: 130},
		},
		Churn: MetricConfig{
			Label:     "Gross Churn",
			Weight:    20,
			Direction: LowerIsBetter,
			Bounds:    Bounds{Min: 0, Max: 12},
		},
		Cac: MetricConfig{
			Label:     "CAC Efficiency",
			Weight:    15,
			Direction: LowerIsBetter,
			Bounds:    Bounds{Min: 2, Max: 6},
		},
		Payback: MetricConfig{
			Label:     "Payback Period",
			Weight:    10,
			Direction: LowerIsBetter,
			Bounds:    Bounds{Min: 6, Max: 18},
		},
		ForecastMape: MetricConfig{
			Label:     "Forecast Accuracy",
			Weight:    10,
			Direction: LowerIsBetter,
			Bounds:    Bounds{Min: 5, Max: 25},
		},
		Velocity: MetricConfig{
			Label:     "Sales Velocity",
			Weight:    0,
			Direction: HigherIsBetter,
			Bounds:    Bounds{Min: 0.5, Max: 2.5},
		},
		Incidents: MetricConfig{
			Label:     "Operational Incidents",
			Weight:    0,
			Direction: LowerIsBetter,
			Bounds:    Bounds{Min: 0, Max: 6},
		},
	}
}

// LoadConfig reads a YAML metric table from path, falling back to the default
// table when path is empty or the file does not exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read metric config: %w", err)
	}

	var file struct {
		Metrics Config `yaml:"metrics"`
	}
	file.Metrics = cfg
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parse metric config: %w", err)
	}

	if err := file.Metrics.Validate(); err != nil {
		return Config{}, err
	}
	return file.Metrics, nil
}

func (c Config) Validate() error {
	for _, m := range c.metrics() {
		if m.cfg.Label == "" {
			return fmt.Errorf("metric %q: label is required", m.key)
		}
		if m.cfg.Weight < 0 {
			return fmt.Errorf("metric %q: weight must be non-negative", m.key)
		}
		if m.cfg.Direction != HigherIsBetter && m.cfg.Direction != LowerIsBetter {
			return fmt.Errorf("metric %q: unknown direction %q", m.key, m.cfg.Direction)
		}
	}
	return nil
}

type metricEntry struct {
	key  string
	cfg  MetricConfig
	pick func(domain.ScoreInputs) float64
}

// metrics returns the table in a fixed order so computation and validation
// are deterministic.
func (c Config) metrics() []metricEntry {
	return []metricEntry{
		{"cac", c.Cac, func(in domain.ScoreInputs) float64 { return in.Cac }},
		{"nrr", c.Nrr, func(in domain.ScoreInputs) float64 { return in.Nrr }},
		{"churn", c.Churn, func(in domain.ScoreInputs) float64 { return in.Churn }},
		{"payback", c.Payback, func(in domain.ScoreInputs) float64 { return in.Payback }},
		{"margin", c.Margin, func(in domain.ScoreInputs) float64 { return in.Margin }},
		{"forecastMape", c.ForecastMape, func(in domain.ScoreInputs) float64 { return in.ForecastMape }},
		{"velocity", c.Velocity, func(in domain.ScoreInputs) float64 { return in.Velocity }},
		{"incidents", c.Incidents, func(in domain.ScoreInputs) float64 { return in.Incidents }},
	}
}
