package records

import (
	"context"
	"sort"
	"time"

	"github.com/agentstation/blockquote/pkg/constants"
)

// Query selects records for reconciliation. Results are ordered by due
// date ascending, oldest overdue first.
type Query struct {
	// DueBefore keeps records whose DueAt(DueBefore) is not after DueBefore.
	// The zero time disables the due filter.
	DueBefore     time.Time
	HasForeignRef bool
	NotDeleted    bool
	Limit         int
}

// Matches reports whether r satisfies every filter of q.
func (q Query) Matches(r *Record) bool {
	if q.HasForeignRef && r.ForeignRef == "" {
		return false
	}
	if q.NotDeleted && r.Deleted {
		return false
	}
	if !q.DueBefore.IsZero() && !r.IsDue(q.DueBefore) {
		return false
	}
	return true
}

// Apply filters, orders and limits recs for stores that evaluate queries
// in memory. recs is not modified.
func (q Query) Apply(recs []Record) []Record {
	now := q.DueBefore
	out := make([]Record, 0, len(recs))
	for i := range recs {
		if q.Matches(&recs[i]) {
			out = append(out, recs[i])
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].DueAt(now), out[j].DueAt(now)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return out[i].ID < out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Page selects a window of a listing ordered by creation time, newest first.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to valid bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = constants.DefaultPageSize
	}
	if p.Limit > constants.MaxPageSize {
		p.Limit = constants.MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Store is the storage the reconciliation job needs.
type Store interface {
	// Query returns due candidates ordered by due date ascending.
	Query(ctx context.Context, q Query) ([]Record, error)
	// Upsert inserts or replaces the record with the same id.
	Upsert(ctx context.Context, r Record) error
}

// Repository is a full record store.
type Repository interface {
	Store
	// Get returns the record with id or an error matching errors.ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
	// List returns one page of records and the total count.
	List(ctx context.Context, p Page) ([]Record, int, error)
	Close() error
}
