package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revhealth/internal/domain"
	"revhealth/internal/repository"
	"revhealth/internal/scoring"
	"revhealth/internal/service"
)

type fakeStore struct {
	rows   []repository.SnapshotRow
	nextID int
}

func (f *fakeStore) Insert(_ context.Context, row *repository.SnapshotRow) error {
	if row.ID == "" {
		f.nextID++
		row.ID = fmt.Sprintf("snap_%d", f.nextID)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	f.rows = append(f.rows, *row)
	return nil
}

func (f *fakeStore) LatestByAccountID(ctx context.Context, accountID string) (*repository.SnapshotRow, error) {
	rows, err := f.ListByAccountID(ctx, accountID, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (f *fakeStore) ListByAccountID(_ context.Context, accountID string, limit int) ([]repository.SnapshotRow, error) {
	var matched []repository.SnapshotRow
	for _, row := range f.rows {
		if row.AccountID == accountID {
			matched = append(matched, row)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].ComputedAt.Equal(matched[j].ComputedAt) {
			return matched[i].ComputedAt.After(matched[j].ComputedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

type fakeDirectory struct {
	accounts []domain.Account
}

func (f *fakeDirectory) FindBySlug(_ context.Context, slug string) (*domain.Account, error) {
	for i := range f.accounts {
		if f.accounts[i].Slug == slug {
			return &f.accounts[i], nil
		}
	}
	return nil, nil
}

func (f *fakeDirectory) FindByID(_ context.Context, id string) (*domain.Account, error) {
	for i := range f.accounts {
		if f.accounts[i].ID == id {
			return &f.accounts[i], nil
		}
	}
	return nil, nil
}

func newTestServer(t *testing.T, store *fakeStore, dir *fakeDirectory) *httptest.Server {
	t.Helper()

	engine, err := scoring.NewEngine(scoring.DefaultConfig())
	require.NoError(t, err)
	svc := service.NewScoreService(engine, store, dir, zerolog.Nop())

	mux := http.NewServeMux()
	NewScoreServer(svc, dir, zerolog.Nop()).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func demoDirectory() *fakeDirectory {
	return &fakeDirectory{accounts: []domain.Account{{ID: "acc_1", Slug: "demo", Name: "Demo Enterprise"}}}
}

func recordBody() []byte {
	return []byte(`{
		"metrics": {
			"cac": 3.2, "nrr": 118, "churn": 4.1, "payback": 9,
			"margin": 68, "forecastMape": 12, "velocity": 1.6, "incidents": 0.8
		},
		"computedAt": "2024-10-01T12:00:00Z"
	}`)
}

func TestGetScoreUnknownAccountIs404(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, demoDirectory())

	resp, err := http.Get(srv.URL + "/accounts/ghost/score")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Contains(t, payload["message"], "ghost")
}

func TestGetScoreNoSnapshotsIs404(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, demoDirectory())

	resp, err := http.Get(srv.URL + "/accounts/demo/score")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecordThenGetScore(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, demoDirectory())

	resp, err := http.Post(srv.URL+"/accounts/demo/score", "application/json", bytes.NewReader(recordBody()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "acc_1", created["accountId"])
	assert.Equal(t, "demo", created["accountSlug"])

	resp, err = http.Get(srv.URL + "/accounts/demo/score")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Field names are the wire contract; assert them literally.
	var payload map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	for _, field := range []string{"accountId", "computedAt", "score", "band", "drivers"} {
		assert.Contains(t, payload, field)
	}

	var accountID string
	require.NoError(t, json.Unmarshal(payload["accountId"], &accountID))
	assert.Equal(t, "demo", accountID)

	var computedAt string
	require.NoError(t, json.Unmarshal(payload["computedAt"], &computedAt))
	assert.Equal(t, "2024-10-01T12:00:00Z", computedAt)

	var score float64
	require.NoError(t, json.Unmarshal(payload["score"], &score))
	assert.InDelta(t, 72.9, score, 0.001)

	var band string
	require.NoError(t, json.Unmarshal(payload["band"], &band))
	assert.Equal(t, "GREEN", band)

	var drivers []struct {
		Name  string  `json:"name"`
		Delta float64 `json:"delta"`
	}
	require.NoError(t, json.Unmarshal(payload["drivers"], &drivers))
	assert.Len(t, drivers, 8)
}

func TestRecordScoreUnknownAccountIs404(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, demoDirectory())

	resp, err := http.Post(srv.URL+"/accounts/ghost/score", "application/json", bytes.NewReader(recordBody()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecordScoreMissingMetricIs400(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, demoDirectory())

	body := []byte(`{"metrics": {"cac": 3.2, "nrr": 118}}`)
	resp, err := http.Post(srv.URL+"/accounts/demo/score", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Contains(t, payload["message"], "required")
}

func TestRecordScoreBadTimestampIs400(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, demoDirectory())

	body := bytes.Replace(recordBody(), []byte("2024-10-01T12:00:00Z"), []byte("next tuesday"), 1)
	resp, err := http.Post(srv.URL+"/accounts/demo/score", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetScoreCorruptDriversIs500(t *testing.T) {
	store := &fakeStore{rows: []repository.SnapshotRow{{
		ID:         "bad",
		AccountID:  "acc_1",
		ComputedAt: time.Now().UTC(),
		Score:      50,
		Band:       "RED",
		Drivers:    []byte(`{"oops": true}`),
	}}}
	srv := newTestServer(t, store, demoDirectory())

	resp, err := http.Get(srv.URL + "/accounts/demo/score")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestScoreHistory(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, demoDirectory())

	for _, at := range []string{"2024-10-01T12:00:00Z", "2024-11-01T12:00:00Z"} {
		body := bytes.Replace(recordBody(), []byte("2024-10-01T12:00:00Z"), []byte(at), 1)
		resp, err := http.Post(srv.URL+"/accounts/demo/score", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/accounts/demo/score/history?limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		AccountID string `json:"accountId"`
		Snapshots []struct {
			ComputedAt string `json:"computedAt"`
		} `json:"snapshots"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "demo", payload.AccountID)
	require.Len(t, payload.Snapshots, 2)
	assert.Equal(t, "2024-11-01T12:00:00Z", payload.Snapshots[0].ComputedAt)
}

func TestScoreHistoryBadLimitIs400(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, demoDirectory())

	resp, err := http.Get(srv.URL + "/accounts/demo/score/history?limit=banana")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &fakeStore{}, demoDirectory())

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
