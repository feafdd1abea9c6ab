package domain

import (
	"time"
)

// Band is the qualitative classification of a TRS score.
type Band string

const (
	BandRed    Band = "RED"
	BandYellow Band = "YELLOW"
	BandGreen  Band = "GREEN"
)

// Driver is a single metric's signed deviation from the neutral midpoint (50).
type Driver struct {
	Name  string  `json:"name"`
	Delta float64 `json:"delta"`
}

// ScoreInputs is the fixed metric vector a score is computed from.
// All eight fields are required on every computation; there is no
// partial-input mode.
type ScoreInputs struct {
	Cac          float64 `json:"cac"`
	Nrr          float64 `json:"nrr"`
	Churn        float64 `json:"churn"`
	Payback      float64 `json:"payback"`
	Margin       float64 `json:"margin"`
	ForecastMape float64 `json:"forecastMape"`
	Velocity     float64 `json:"velocity"`
	Incidents    float64 `json:"incidents"`
}

// ScoreResult is the computed outcome for one metric vector.
type ScoreResult struct {
	Score   float64  `json:"score"`
	Band    Band     `json:"band"`
	Drivers []Driver `json:"drivers"`
}

// ScoreSnapshot is one immutable, timestamped record of inputs plus the
// computed result for an account. History only grows; a snapshot is never
// updated or deleted once written.
type ScoreSnapshot struct {
	ID          string
	AccountID   string
	AccountSlug string
	ComputedAt  time.Time
	Score       float64
	Band        Band
	Drivers     []Driver
	Metrics     ScoreInputs
	CreatedAt   time.Time
}

type Account struct {
	ID        string
	Slug      string
	Name      string
	Tier      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
