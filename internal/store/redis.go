package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/seenimoa/fidcsim/pkg/models"
)

const (
	runKeyPrefix   = "fidcsim:run:"
	indexKeyPrefix = "fidcsim:fp:"
)

// Redis stores reports as JSON with a TTL, plus a fingerprint → id index.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to a redis:// URL and pings the server.
func NewRedis(ctx context.Context, rawURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: redis url: %v", models.ErrInvalidInput, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Save(ctx context.Context, rep *models.Report) error {
	if err := checkReport(rep); err != nil {
		return err
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, runKeyPrefix+rep.Run.ID, data, r.ttl)
		if rep.Run.Fingerprint != "" {
			p.Set(ctx, indexKeyPrefix+rep.Run.Fingerprint, rep.Run.ID, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rep.Run.ID, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (*models.Report, error) {
	data, err := r.client.Get(ctx, runKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	var rep models.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}
	return &rep, nil
}

func (r *Redis) Lookup(ctx context.Context, fingerprint string) (*models.Report, error) {
	id, err := r.client.Get(ctx, indexKeyPrefix+fingerprint).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up fingerprint %s: %w", fingerprint, err)
	}
	return r.Get(ctx, id)
}

func (r *Redis) Close() error { return r.client.Close() }
