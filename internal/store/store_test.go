package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/seenimoa/fidcsim/pkg/models"
)

func report(fingerprint string) *models.Report {
	return &models.Report{
		Run: &models.WaterfallRun{
			ID:                  uuid.NewString(),
			Fingerprint:         fingerprint,
			Scenario:            "base",
			UndistributedInflow: decimal.Zero,
			Results: []models.PeriodResult{{
				Period:        0,
				Class:         "senior",
				Rank:          1,
				EndingBalance: decimal.RequireFromString("12.34"),
			}},
		},
		KPIs: models.KPISet{Fund: models.FundKPI{PeriodsSimulated: 1}},
	}
}

// exercise runs the behavior every backend must share.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	fp := "fp-" + uuid.NewString()
	first, second := report(fp), report(fp)

	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Get(ctx, first.Run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Run.ID != first.Run.ID || !got.Run.Results[0].EndingBalance.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("Get returned %+v", got.Run)
	}

	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err = s.Lookup(ctx, fp)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Run.ID != second.Run.ID {
		t.Errorf("Lookup should return the latest run: got %s, want %s", got.Run.ID, second.Run.ID)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing): got %v", err)
	}
	if _, err := s.Lookup(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(missing): got %v", err)
	}
	if err := s.Save(ctx, &models.Report{}); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Save(empty): got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory(time.Hour)
	exercise(t, m)
	if m.Len() != 2 {
		t.Errorf("Len: got %d, want 2", m.Len())
	}
	if err := m.Close(); err != nil || m.Len() != 0 {
		t.Errorf("Close: err %v len %d", err, m.Len())
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("FIDCSIM_TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, err := NewRedis(ctx, url, time.Minute)
	if err != nil {
		t.Skipf("Skipping test - Redis not available: %v", err)
	}
	defer r.Close()
	exercise(t, r)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), "", "", 0)
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("default backend: got %T", s)
	}
	if _, err := Open(context.Background(), "etcd", "", 0); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("unknown backend: got %v", err)
	}
	if _, err := Open(context.Background(), BackendRedis, "://bad", 0); err == nil {
		t.Error("bad redis url should fail")
	}
}
