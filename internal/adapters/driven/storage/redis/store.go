// Package redis provides a Redis-backed graph registry for deployments
// where several API processes share status.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

const (
	graphKeyPrefix   = "kgraph:graph:"   // kgraph:graph:{uuid} -> JSON GraphRecord
	historyKeyPrefix = "kgraph:history:" // kgraph:history:{uuid} -> list of JSON StatusEvent
	graphIndexKey    = "kgraph:graphs"   // sorted set of uuids scored by creation time
	defaultTTL       = 30 * 24 * time.Hour
	maxTxRetries     = 10
)

var (
	_ driven.StatusStore   = (*Store)(nil)
	_ driven.StatusHistory = (*Store)(nil)
)

// Store implements driven.StatusStore on Redis. Status changes run inside
// WATCH/MULTI so the monotonic check holds across processes.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithTTL sets how long graph rows live after their last update.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewStore wraps an existing client.
func NewStore(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		ttl:    defaultTTL,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewStore(client, opts...), nil
}

func graphKey(id string) string   { return graphKeyPrefix + id }
func historyKey(id string) string { return historyKeyPrefix + id }

// Create registers a graph in the created stage.
func (s *Store) Create(ctx context.Context, rec domain.GraphRecord) error {
	if rec.UUID == "" {
		return fmt.Errorf("%w: graph uuid is required", domain.ErrInvalidInput)
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Status = string(domain.StageCreated)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	ok, err := s.client.SetNX(ctx, graphKey(rec.UUID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create graph: %w", err)
	}
	if !ok {
		return fmt.Errorf("graph %s: %w", rec.UUID, domain.ErrAlreadyExists)
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, graphIndexKey, redis.Z{Score: float64(rec.CreatedAt.UnixNano()), Member: rec.UUID})
	s.appendEvent(ctx, pipe, rec.UUID, rec.Status, now)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index graph: %w", err)
	}
	return nil
}

// SetStatus records a new status, creating the row if needed.
func (s *Store) SetStatus(ctx context.Context, graphID string, status domain.PipelineStatus) error {
	if !status.Stage.IsValid() {
		return fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidInput, status.Stage)
	}
	key := graphKey(graphID)

	txf := func(tx *redis.Tx) error {
		now := s.now()
		rec, err := s.read(ctx, tx, key)
		created := false
		switch {
		case errors.Is(err, domain.ErrNotFound):
			rec = domain.GraphRecord{UUID: graphID, CreatedAt: now}
			created = true
		case err != nil:
			return err
		default:
			from, perr := domain.ParseStatus(rec.Status)
			if perr != nil {
				return perr
			}
			if !domain.CanTransition(from.Stage, status.Stage) {
				return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from.Stage, status.Stage)
			}
		}
		rec.Status = status.String()
		rec.UpdatedAt = now
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal graph: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			if created {
				pipe.ZAdd(ctx, graphIndexKey, redis.Z{Score: float64(now.UnixNano()), Member: graphID})
			}
			s.appendEvent(ctx, pipe, graphID, rec.Status, now)
			return nil
		})
		return err
	}
	return s.watch(ctx, txf, key)
}

// SetTitle updates the display title.
func (s *Store) SetTitle(ctx context.Context, graphID, title string) error {
	key := graphKey(graphID)
	return s.watch(ctx, func(tx *redis.Tx) error {
		rec, err := s.read(ctx, tx, key)
		if err != nil {
			return err
		}
		rec.Title = title
		rec.UpdatedAt = s.now()
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal graph: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)
}

// Get returns the row.
func (s *Store) Get(ctx context.Context, graphID string) (domain.GraphRecord, error) {
	return s.read(ctx, s.client, graphKey(graphID))
}

// List returns rows newest first. Index entries whose row expired are
// dropped from the index.
func (s *Store) List(ctx context.Context, limit int) ([]domain.GraphRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, graphIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}

	recs := make([]domain.GraphRecord, 0, len(ids))
	var stale []any
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if len(stale) > 0 {
		s.client.ZRem(ctx, graphIndexKey, stale...)
	}
	return recs, nil
}

// History returns accepted status changes, oldest first.
func (s *Store) History(ctx context.Context, graphID string, limit int) ([]domain.StatusEvent, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, historyKey(graphID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read status history: %w", err)
	}
	events := make([]domain.StatusEvent, 0, len(raw))
	for _, r := range raw {
		var ev domain.StatusEvent
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) appendEvent(ctx context.Context, pipe redis.Pipeliner, graphID, status string, at time.Time) {
	data, _ := json.Marshal(domain.StatusEvent{Status: status, At: at})
	pipe.RPush(ctx, historyKey(graphID), data)
	pipe.Expire(ctx, historyKey(graphID), s.ttl)
}

func (s *Store) read(ctx context.Context, c redis.Cmdable, key string) (domain.GraphRecord, error) {
	var rec domain.GraphRecord
	data, err := c.Get(ctx, key).Result()
	if err == redis.Nil {
		return rec, domain.ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("failed to get graph: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return rec, fmt.Errorf("failed to unmarshal graph: %w", err)
	}
	return rec, nil
}

// watch runs fn optimistically, retrying when another writer touched key.
func (s *Store) watch(ctx context.Context, fn func(*redis.Tx) error, key string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: too much contention on %s", domain.ErrTransient, key)
}
