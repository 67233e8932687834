package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sla-monitor/internal/db"
	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func sampleEntry() models.CacheEntry {
	return models.CacheEntry{
		SystemHealth: &models.SystemHealth{
			OverallStatus:    models.StatusHealthy,
			TotalMetrics:     2,
			HealthyMetrics:   2,
			UptimePercentage: 99.9,
		},
		Alerts: []models.Alert{
			{ID: "old", Severity: models.SeverityWarning, TriggeredAt: testNow.Add(-time.Hour)},
			{ID: "new", Severity: models.SeverityCritical, TriggeredAt: testNow},
		},
		LastUpdatedAt: testNow,
	}
}

// Every backend must honour the same contract.
func runStoreContract(t *testing.T, newStore func(f Freshness) Store) {
	t.Helper()
	ctx := context.Background()
	now := testNow
	store := newStore(Freshness{Now: fixedClock(&now)})

	assert.Nil(t, store.Read(ctx), "empty store reads as cold start")
	assert.False(t, store.IsFresh(nil))

	store.Write(ctx, sampleEntry())
	got := store.Read(ctx)
	require.NotNil(t, got)
	assert.Equal(t, testNow, got.CacheTimestamp.UTC())
	assert.Equal(t, models.StatusHealthy, got.SystemHealth.OverallStatus)
	require.Len(t, got.Alerts, 2)
	assert.Equal(t, "new", got.Alerts[0].ID)
	assert.True(t, store.IsFresh(got))

	now = testNow.Add(4*time.Minute + 59*time.Second)
	assert.True(t, store.IsFresh(got))
	now = testNow.Add(5 * time.Minute)
	assert.False(t, store.IsFresh(got))
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(f Freshness) Store { return NewMemoryStore(f, logging.Discard()) })
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	runStoreContract(t, func(f Freshness) Store {
		return NewFileStore(dir, "sla-monitor:cache:v1", f, logging.Discard())
	})
}

func TestSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	runStoreContract(t, func(f Freshness) Store {
		s, err := OpenSQLite(filepath.Join(dir, "cache.db"), "sla", f, logging.Discard())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

type fakeRepo struct {
	rows    map[string][]byte
	failGet error
	failPut error
}

func (r *fakeRepo) GetCacheEntry(_ context.Context, key string) ([]byte, error) {
	if r.failGet != nil {
		return nil, r.failGet
	}
	raw, ok := r.rows[key]
	if !ok {
		return nil, db.ErrNotFound
	}
	return raw, nil
}

func (r *fakeRepo) UpsertCacheEntry(_ context.Context, key string, payload []byte, _ time.Time) error {
	if r.failPut != nil {
		return r.failPut
	}
	r.rows[key] = payload
	return nil
}

func TestPostgresStore(t *testing.T) {
	repo := &fakeRepo{rows: map[string][]byte{}}
	runStoreContract(t, func(f Freshness) Store {
		return NewPostgresStore(repo, "sla", f, logging.Discard())
	})
}

func TestPostgresStoreSwallowsFailures(t *testing.T) {
	repo := &fakeRepo{rows: map[string][]byte{}, failGet: errors.New("conn refused"), failPut: errors.New("conn refused")}
	s := NewPostgresStore(repo, "sla", Freshness{}, logging.Discard())

	assert.NotPanics(t, func() { s.Write(context.Background(), sampleEntry()) })
	assert.Nil(t, s.Read(context.Background()))
}

func TestCorruptEntriesReadAsMissing(t *testing.T) {
	cases := map[string]string{
		"garbage":        `{not json`,
		"no timestamp":   `{"alerts": []}`,
		"broken payload": `{"cache_timestamp":"2026-03-01T12:00:00Z","system_health":{"overall_status":"bogus"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			s := NewMemoryStore(Freshness{}, logging.Discard())
			s.Seed([]byte(raw))
			assert.Nil(t, s.Read(context.Background()))
		})
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, "k", Freshness{}, logging.Discard())
	require.NoError(t, os.WriteFile(s.Path(), []byte("\x00\x01"), 0644))
	assert.Nil(t, s.Read(context.Background()))
}

func TestFileStoreUnwritableDirIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	// The cache dir is a regular file, so MkdirAll fails.
	s := NewFileStore(filepath.Join(blocker, "sub"), "k", Freshness{}, logging.Discard())
	assert.NotPanics(t, func() { s.Write(context.Background(), sampleEntry()) })
	assert.Nil(t, s.Read(context.Background()))
}

func TestInvalidCachedAlertsAreDropped(t *testing.T) {
	s := NewMemoryStore(Freshness{}, logging.Discard())
	entry := sampleEntry()
	entry.Alerts = append(entry.Alerts, models.Alert{ID: "", Severity: models.SeverityWarning, TriggeredAt: testNow})
	s.Write(context.Background(), entry)

	got := s.Read(context.Background())
	require.NotNil(t, got)
	assert.Len(t, got.Alerts, 2)
}
