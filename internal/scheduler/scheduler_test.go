package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revhealth/internal/config"
	"revhealth/internal/domain"
	"revhealth/internal/repository"
	"revhealth/internal/scoring"
	"revhealth/internal/service"
)

// fakeStore is mutex-guarded because RunOnce syncs accounts concurrently.
type fakeStore struct {
	mu     sync.Mutex
	rows   []repository.SnapshotRow
	nextID int
}

func (f *fakeStore) Insert(_ context.Context, row *repository.SnapshotRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.ID == "" {
		f.nextID++
		row.ID = fmt.Sprintf("snap_%d", f.nextID)
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
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []repository.SnapshotRow
	for _, row := range f.rows {
		if row.AccountID == accountID {
			matched = append(matched, row)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ComputedAt.After(matched[j].ComputedAt)
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

type fakeSource struct {
	inputs map[string]domain.ScoreInputs
	ids    map[string]string
}

func (f *fakeSource) Inputs(_ context.Context, slug string) (string, *domain.ScoreInputs, error) {
	inputs, ok := f.inputs[slug]
	if !ok {
		return "", nil, nil
	}
	return f.ids[slug], &inputs, nil
}

func demoInputs() domain.ScoreInputs {
	return domain.ScoreInputs{
		Cac: 3.2, Nrr: 118, Churn: 4.1, Payback: 9,
		Margin: 68, ForecastMape: 12, Velocity: 1.6, Incidents: 0.8,
	}
}

func newTestService(t *testing.T, store service.SnapshotStore, dir *fakeDirectory) *service.ScoreService {
	t.Helper()
	engine, err := scoring.NewEngine(scoring.DefaultConfig())
	require.NoError(t, err)
	return service.NewScoreService(engine, store, dir, zerolog.Nop())
}

func TestRunOnceRecordsConfiguredAccounts(t *testing.T) {
	store := &fakeStore{}
	dir := &fakeDirectory{accounts: []domain.Account{
		{ID: "acc_1", Slug: "acme"},
		{ID: "acc_2", Slug: "globex"},
	}}
	svc := newTestService(t, store, dir)

	source := &fakeSource{
		inputs: map[string]domain.ScoreInputs{"acme": demoInputs(), "globex": demoInputs()},
		ids:    map[string]string{"acme": "acc_1", "globex": "acc_2"},
	}

	cfg := &config.Config{SyncSchedule: "@hourly", SyncAccounts: "acme, globex, "}
	sync := NewHealthSync(cfg, svc, source, zerolog.Nop())

	require.NoError(t, sync.RunOnce(context.Background()))
	assert.Len(t, store.rows, 2)
}

func TestRunOnceSkipsAccountsWithoutSourceData(t *testing.T) {
	store := &fakeStore{}
	dir := &fakeDirectory{accounts: []domain.Account{{ID: "acc_1", Slug: "acme"}}}
	svc := newTestService(t, store, dir)

	source := &fakeSource{
		inputs: map[string]domain.ScoreInputs{"acme": demoInputs()},
		ids:    map[string]string{"acme": "acc_1"},
	}

	cfg := &config.Config{SyncSchedule: "@hourly", SyncAccounts: "acme,silent"}
	sync := NewHealthSync(cfg, svc, source, zerolog.Nop())

	require.NoError(t, sync.RunOnce(context.Background()))
	assert.Len(t, store.rows, 1)
	assert.Equal(t, "acc_1", store.rows[0].AccountID)
}

func TestStoredMetricSourceReplaysLatestInputs(t *testing.T) {
	store := &fakeStore{}
	dir := &fakeDirectory{accounts: []domain.Account{{ID: "acc_1", Slug: "acme"}}}
	svc := newTestService(t, store, dir)

	_, err := svc.RecordSnapshot(context.Background(), "acc_1", demoInputs(), time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)

	source := NewStoredMetricSource(svc, dir)

	accountID, inputs, err := source.Inputs(context.Background(), "acme")
	require.NoError(t, err)
	require.NotNil(t, inputs)
	assert.Equal(t, "acc_1", accountID)
	assert.Equal(t, demoInputs(), *inputs)

	_, inputs, err = source.Inputs(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, inputs)
}

func TestStartIsNoopWithoutSchedule(t *testing.T) {
	svc := newTestService(t, &fakeStore{}, &fakeDirectory{})
	sync := NewHealthSync(&config.Config{}, svc, &fakeSource{}, zerolog.Nop())

	require.NoError(t, sync.Start())
}
