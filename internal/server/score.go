package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"revhealth/internal/directory"
	"revhealth/internal/domain"
	"revhealth/internal/service"
)

// ScoreServer exposes the score endpoints consumed by the console dashboard.
// Field names in the payloads are part of the wire contract and must not
// change.
type ScoreServer struct {
	svc       *service.ScoreService
	directory directory.Directory
	logger    zerolog.Logger
}

func NewScoreServer(svc *service.ScoreService, dir directory.Directory, logger zerolog.Logger) *ScoreServer {
	return &ScoreServer{svc: svc, directory: dir, logger: logger}
}

func (s *ScoreServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /accounts/{accountId}/score", s.handleLatestScore)
	mux.HandleFunc("GET /accounts/{accountId}/score/history", s.handleScoreHistory)
	mux.HandleFunc("POST /accounts/{accountId}/score", s.handleRecordScore)
	mux.HandleFunc("GET /healthz", s.handleHealth)
}

type scorePayload struct {
	AccountID  string          `json:"accountId"`
	ComputedAt string          `json:"computedAt"`
	Score      float64         `json:"score"`
	Band       domain.Band     `json:"band"`
	Drivers    []domain.Driver `json:"drivers"`
}

type snapshotPayload struct {
	ID          string             `json:"id"`
	AccountID   string             `json:"accountId"`
	AccountSlug string             `json:"accountSlug"`
	ComputedAt  string             `json:"computedAt"`
	Score       float64            `json:"score"`
	Band        domain.Band        `json:"band"`
	Drivers     []domain.Driver    `json:"drivers"`
	Metrics     domain.ScoreInputs `json:"metrics"`
}

type messagePayload struct {
	Message string `json:"message"`
}

func (s *ScoreServer) handleLatestScore(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("accountId")

	snapshot, err := s.svc.LatestByAccountSlug(r.Context(), slug)
	if err != nil {
		s.writeError(w, r, slug, err)
		return
	}
	if snapshot == nil {
		s.writeJSON(w, http.StatusNotFound, messagePayload{
			Message: fmt.Sprintf("No TRS Score snapshot found for account '%s'.", slug),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, scorePayload{
		AccountID:  snapshot.AccountSlug,
		ComputedAt: formatTime(snapshot.ComputedAt),
		Score:      snapshot.Score,
		Band:       snapshot.Band,
		Drivers:    snapshot.Drivers,
	})
}

func (s *ScoreServer) handleScoreHistory(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("accountId")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeJSON(w, http.StatusBadRequest, messagePayload{Message: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	snapshots, err := s.svc.HistoryByAccountSlug(r.Context(), slug, limit)
	if err != nil {
		s.writeError(w, r, slug, err)
		return
	}
	if snapshots == nil {
		s.writeJSON(w, http.StatusNotFound, messagePayload{
			Message: fmt.Sprintf("No account found for '%s'.", slug),
		})
		return
	}

	payload := struct {
		AccountID string            `json:"accountId"`
		Snapshots []snapshotPayload `json:"snapshots"`
	}{
		AccountID: slug,
		Snapshots: make([]snapshotPayload, 0, len(snapshots)),
	}
	for _, snapshot := range snapshots {
		payload.Snapshots = append(payload.Snapshots, toSnapshotPayload(&snapshot))
	}

	s.writeJSON(w, http.StatusOK, payload)
}

type recordRequest struct {
	Metrics struct {
		Cac          *float64 `json:"cac"`
		Nrr          *float64 `json:"nrr"`
		Churn        *float64 `json:"churn"`
		Payback      *float64 `json:"payback"`
		Margin       *float64 `json:"margin"`
		ForecastMape *float64 `json:"forecastMape"`
		Velocity     *float64 `json:"velocity"`
		Incidents    *float64 `json:"incidents"`
	} `json:"metrics"`
	ComputedAt string `json:"computedAt"`
	ID         string `json:"id"`
}

func (s *ScoreServer) handleRecordScore(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("accountId")

	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, messagePayload{Message: "invalid JSON body"})
		return
	}

	inputs, err := req.inputs()
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, messagePayload{Message: err.Error()})
		return
	}

	computedAt := time.Time{}
	if req.ComputedAt != "" {
		computedAt, err = time.Parse(time.RFC3339, req.ComputedAt)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, messagePayload{Message: "computedAt must be an RFC 3339 timestamp"})
			return
		}
	}

	account, err := s.directory.FindBySlug(r.Context(), slug)
	if err != nil {
		s.writeError(w, r, slug, err)
		return
	}
	if account == nil {
		s.writeJSON(w, http.StatusNotFound, messagePayload{
			Message: fmt.Sprintf("No account found for '%s'.", slug),
		})
		return
	}

	snapshot, err := s.svc.RecordSnapshot(r.Context(), account.ID, inputs, computedAt, req.ID)
	if err != nil {
		s.writeError(w, r, slug, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toSnapshotPayload(snapshot))
}

// inputs validates that all eight metric fields are present and finite.
// The engine itself stays total and would propagate NaN/Infinity; the
// hardening lives at this boundary instead.
func (r *recordRequest) inputs() (domain.ScoreInputs, error) {
	fields := map[string]*float64{
		"cac":          r.Metrics.Cac,
		"nrr":          r.Metrics.Nrr,
		"churn":        r.Metrics.Churn,
		"payback":      r.Metrics.Payback,
		"margin":       r.Metrics.Margin,
		"forecastMape": r.Metrics.ForecastMape,
		"velocity":     r.Metrics.Velocity,
		"incidents":    r.Metrics.Incidents,
	}
	for name, value := range fields {
		if value == nil {
			return domain.ScoreInputs{}, fmt.Errorf("metrics.%s is required", name)
		}
		if math.IsNaN(*value) || math.IsInf(*value, 0) {
			return domain.ScoreInputs{}, fmt.Errorf("metrics.%s must be a finite number", name)
		}
	}

	return domain.ScoreInputs{
		Cac:          *r.Metrics.Cac,
		Nrr:          *r.Metrics.Nrr,
		Churn:        *r.Metrics.Churn,
		Payback:      *r.Metrics.Payback,
		Margin:       *r.Metrics.Margin,
		ForecastMape: *r.Metrics.ForecastMape,
		Velocity:     *r.Metrics.Velocity,
		Incidents:    *r.Metrics.Incidents,
	}, nil
}

func (s *ScoreServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

func (s *ScoreServer) writeError(w http.ResponseWriter, r *http.Request, slug string, err error) {
	logger := zerolog.Ctx(r.Context())
	if logger.GetLevel() == zerolog.Disabled {
		logger = &s.logger
	}

	if errors.Is(err, service.ErrCorruptDrivers) {
		logger.Error().Err(err).Str("slug", slug).Msg("stored snapshot failed validation")
		s.writeJSON(w, http.StatusInternalServerError, messagePayload{Message: "stored snapshot data is invalid"})
		return
	}

	logger.Error().Err(err).Str("slug", slug).Msg("score request failed")
	s.writeJSON(w, http.StatusInternalServerError, messagePayload{Message: "internal error"})
}

func (s *ScoreServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func toSnapshotPayload(snapshot *domain.ScoreSnapshot) snapshotPayload {
	return snapshotPayload{
		ID:          snapshot.ID,
		AccountID:   snapshot.AccountID,
		AccountSlug: snapshot.AccountSlug,
		ComputedAt:  formatTime(snapshot.ComputedAt),
		Score:       snapshot.Score,
		Band:        snapshot.Band,
		Drivers:     snapshot.Drivers,
		Metrics:     snapshot.Metrics,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
