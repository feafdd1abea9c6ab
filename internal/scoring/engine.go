package scoring

import (
	"math"
	"sort"
	"strings"

	"revhealth/internal/domain"
)

// Engine maps a fixed metric vector to a composite TRS score, a band and a
// ranked list of drivers. It holds only immutable configuration, performs no
// I/O, and is safe for concurrent use without synchronization.
type Engine struct {
	cfg         Config
	totalWeight float64
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	total := 0.0
	for _, m := range cfg.metrics() {
		total += m.cfg.Weight
	}

	return &Engine{cfg: cfg, totalWeight: total}, nil
}

// Compute scores the given inputs. Out-of-range raw values are clamped, never
// rejected; NaN and Infinity propagate through the pipeline unchanged.
func (e *Engine) Compute(in domain.ScoreInputs) domain.ScoreResult {
	metrics := e.cfg.metrics()

	weightedSum := 0.0
	drivers := make([]domain.Driver, 0, len(metrics))

	for _, m := range metrics {
		normalized := normalize(m.pick(in), m.cfg)
		if m.cfg.Weight > 0 {
			weightedSum += normalized * m.cfg.Weight
		}
		drivers = append(drivers, domain.Driver{
			Name:  m.cfg.Label,
			Delta: round1(normalized - 50),
		})
	}

	score := 0.0
	if e.totalWeight > 0 {
		score = round1(weightedSum / e.totalWeight)
	}

	sort.SliceStable(drivers, func(i, j int) bool {
		di, dj := math.Abs(drivers[i].Delta), math.Abs(drivers[j].Delta)
		if di != dj {
			return di > dj
		}
		return strings.Compare(drivers[i].Name, drivers[j].Name) < 0
	})

	return domain.ScoreResult{
		Score:   score,
		Band:    BandFor(score),
		Drivers: drivers,
	}
}

// BandFor classifies a composite score. Lower bounds are inclusive.
func BandFor(score float64) domain.Band {
	switch {
	case score >= 70:
		return domain.BandGreen
	case score >= 60:
		return domain.BandYellow
	default:
		return domain.BandRed
	}
}

// normalize maps a raw value onto the 0-100 scale. Collapsed bounds
// (min == max) carry no discriminating signal and short-circuit to the
// neutral midpoint instead of dividing by zero.
func normalize(value float64, cfg MetricConfig) float64 {
	min, max := cfg.Bounds.Min, cfg.Bounds.Max
	if min == max {
		return 50
	}

	clamped := clamp(value, min, max)
	ratio := (clamped - min) / (max - min)

	normalized := ratio * 100
	if cfg.Direction == LowerIsBetter {
		normalized = (1 - ratio) * 100
	}

	return clamp(round2(normalized), 0, 100)
}

func clamp(value, min, max float64) float64 {
	return math.Min(max, math.Max(min, value))
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
