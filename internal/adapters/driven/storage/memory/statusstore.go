package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

var (
	_ driven.StatusStore   = (*StatusStore)(nil)
	_ driven.StatusHistory = (*StatusStore)(nil)
)

// StatusStore is an in-memory graph registry.
type StatusStore struct {
	mu      sync.RWMutex
	records map[string]domain.GraphRecord
	history map[string][]domain.StatusEvent
	now     func() time.Time
}

// NewStatusStore creates an empty registry.
func NewStatusStore() *StatusStore {
	return &StatusStore{
		records: make(map[string]domain.GraphRecord),
		history: make(map[string][]domain.StatusEvent),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a graph in the created stage.
func (s *StatusStore) Create(_ context.Context, rec domain.GraphRecord) error {
	if rec.UUID == "" {
		return fmt.Errorf("%w: graph uuid is required", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.UUID]; ok {
		return fmt.Errorf("graph %s: %w", rec.UUID, domain.ErrAlreadyExists)
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Status = string(domain.StageCreated)
	s.records[rec.UUID] = rec
	s.history[rec.UUID] = append(s.history[rec.UUID], domain.StatusEvent{Status: rec.Status, At: now})
	return nil
}

// SetStatus records a new status, creating the row if needed.
func (s *StatusStore) SetStatus(_ context.Context, graphID string, status domain.PipelineStatus) error {
	if !status.Stage.IsValid() {
		return fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidInput, status.Stage)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[graphID]
	if ok {
		from, err := domain.ParseStatus(rec.Status)
		if err != nil {
			return err
		}
		if !domain.CanTransition(from.Stage, status.Stage) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from.Stage, status.Stage)
		}
	} else {
		rec = domain.GraphRecord{UUID: graphID, CreatedAt: now}
	}
	rec.Status = status.String()
	rec.UpdatedAt = now
	s.records[graphID] = rec
	s.history[graphID] = append(s.history[graphID], domain.StatusEvent{Status: rec.Status, At: now})
	return nil
}

// SetTitle updates the display title.
func (s *StatusStore) SetTitle(_ context.Context, graphID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[graphID]
	if !ok {
		return fmt.Errorf("graph %s: %w", graphID, domain.ErrNotFound)
	}
	rec.Title = title
	rec.UpdatedAt = s.now()
	s.records[graphID] = rec
	return nil
}

// Get returns the row.
func (s *StatusStore) Get(_ context.Context, graphID string) (domain.GraphRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[graphID]
	if !ok {
		return domain.GraphRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

// List returns rows newest first.
func (s *StatusStore) List(_ context.Context, limit int) ([]domain.GraphRecord, error) {
	s.mu.RLock()
	recs := make([]domain.GraphRecord, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, r)
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].UUID < recs[j].UUID
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// History returns accepted status changes, oldest first.
func (s *StatusStore) History(_ context.Context, graphID string, limit int) ([]domain.StatusEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.history[graphID]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]domain.StatusEvent(nil), events...), nil
}

// Close is a no-op.
func (s *StatusStore) Close() error { return nil }
