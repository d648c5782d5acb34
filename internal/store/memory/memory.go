// Package memory implements records.Repository in process memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/records"
)

// Store keeps records in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]records.Record
	closed  bool
}

var _ records.Repository = (*Store)(nil)

// New creates a store seeded with recs.
func New(recs ...records.Record) *Store {
	s := &Store{records: make(map[string]records.Record, len(recs))}
	for _, r := range recs {
		s.records[r.ID] = r
	}
	return s
}

// Query implements records.Store.
func (s *Store) Query(ctx context.Context, q records.Query) ([]records.Record, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	all := make([]records.Record, 0, len(s.records))
	for _, r := range s.records {
		all = append(all, r)
	}
	s.mu.RUnlock()

	return q.Apply(all), nil
}

// Upsert implements records.Store.
func (s *Store) Upsert(ctx context.Context, r records.Record) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
	return nil
}

// Get implements records.Repository.
func (s *Store) Get(ctx context.Context, id string) (*records.Record, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, errors.NewNotFoundError("record", id)
	}
	return &r, nil
}

// List implements records.Repository. Records are ordered newest first.
func (s *Store) List(ctx context.Context, p records.Page) ([]records.Record, int, error) {
	if err := s.check(ctx); err != nil {
		return nil, 0, err
	}
	p = p.Normalize()

	s.mu.RLock()
	all := make([]records.Record, 0, len(s.records))
	for _, r := range s.records {
		all = append(all, r)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	if p.Offset >= total {
		return []records.Record{}, total, nil
	}
	end := min(p.Offset+p.Limit, total)
	return all[p.Offset:end], total, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close implements records.Repository. Later calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.WrapResource("use", "store", "memory", errors.New("store is closed"))
	}
	return nil
}
