// Package store keeps completed run reports so they can be fetched by id
// or found again by run key.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seenimoa/fidcsim/internal/infra"
	"github.com/seenimoa/fidcsim/pkg/models"
)

// ErrNotFound is returned when no report matches the id or key.
var ErrNotFound = errors.New("run not found")

// Store persists reports. Implementations are safe for concurrent use.
type Store interface {
	// Save stores a report under its run id and fingerprint.
	Save(ctx context.Context, rep *models.Report) error
	Get(ctx context.Context, id string) (*models.Report, error)
	// Lookup finds the report last saved with the given fingerprint.
	Lookup(ctx context.Context, fingerprint string) (*models.Report, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Open creates the store for a backend name.
func Open(ctx context.Context, backend, redisURL string, ttl time.Duration) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemory(ttl), nil
	case BackendRedis:
		return NewRedis(ctx, redisURL, ttl)
	}
	return nil, fmt.Errorf("%w: unknown store backend %q", models.ErrInvalidInput, backend)
}

func checkReport(rep *models.Report) error {
	if rep == nil || rep.Run == nil {
		return fmt.Errorf("%w: empty report", models.ErrInvalidInput)
	}
	if rep.Run.ID == "" {
		return fmt.Errorf("%w: report has no run id", models.ErrInvalidInput)
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════
// Memory
// ════════════════════════════════════════════════════════════════════

// Memory keeps reports in process with a TTL.
type Memory struct {
	runs  *infra.Cache[*models.Report]
	index *infra.Cache[string]
}

// NewMemory creates an in-memory store; zero TTL keeps reports forever.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		runs:  infra.NewCache[*models.Report](ttl),
		index: infra.NewCache[string](ttl),
	}
}

func (m *Memory) Save(_ context.Context, rep *models.Report) error {
	if err := checkReport(rep); err != nil {
		return err
	}
	m.runs.Set(rep.Run.ID, rep)
	if rep.Run.Fingerprint != "" {
		m.index.Set(rep.Run.Fingerprint, rep.Run.ID)
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*models.Report, error) {
	rep, ok := m.runs.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return rep, nil
}

func (m *Memory) Lookup(ctx context.Context, fingerprint string) (*models.Report, error) {
	id, ok := m.index.Get(fingerprint)
	if !ok {
		return nil, ErrNotFound
	}
	return m.Get(ctx, id)
}

// Len returns the number of live reports.
func (m *Memory) Len() int { return m.runs.Len() }

// Close drops every report.
func (m *Memory) Close() error {
	m.runs.Flush()
	m.index.Flush()
	return nil
}
