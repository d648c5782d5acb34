package blockquote

import (
	"context"

	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/logging"
	"github.com/agentstation/blockquote/pkg/records"
)

// Tracker adds quote posts to the store.
type Tracker interface {
	// Track fetches the post with id and its thread, and stores it as a
	// record whose foreign reference is the post it quotes.
	Track(ctx context.Context, postID string) (*records.Record, error)
}

// Records gives access to stored records.
type Records interface {
	Get(ctx context.Context, id string) (*records.Record, error)
	List(ctx context.Context, page records.Page) ([]records.Record, int, error)
	Upsert(ctx context.Context, r records.Record) error
}

var (
	_ Tracker = (*client)(nil)
	_ Records = (*client)(nil)
)

// Track fetches and stores a quote post.
func (c *client) Track(ctx context.Context, postID string) (*records.Record, error) {
	if c.builder == nil {
		return nil, errors.NewConfigError("source", "no source configured", nil)
	}
	if postID == "" {
		return nil, errors.NewValidationError("post_id", postID, "cannot be empty")
	}

	post, err := c.builder.Build(ctx, postID)
	if err != nil {
		return nil, err
	}

	rec, err := records.NewRecord(post, c.now())
	if err != nil {
		return nil, err
	}

	// Re-tracking refreshes the snapshot only. Deleted stays sticky and the
	// stored schedule is kept so the record does not become due at once.
	existing, err := c.store.Get(ctx, rec.ID)
	switch {
	case err == nil:
		rec.CreatedAt = existing.CreatedAt
		rec.LastUpdated = existing.LastUpdated
		rec.Deleted = existing.Deleted
	case !errors.IsNotFound(err):
		return nil, errors.WrapStore("get", rec.ID, err)
	}

	if err := c.store.Upsert(ctx, *rec); err != nil {
		return nil, errors.WrapStore("upsert", rec.ID, err)
	}

	logging.FromContext(ctx).Info().
		Str("record_id", rec.ID).
		Str("foreign_ref", rec.ForeignRef).
		Msg("Tracking post")
	return rec, nil
}

// Get returns the record with id.
func (c *client) Get(ctx context.Context, id string) (*records.Record, error) {
	return c.store.Get(ctx, id)
}

// List returns a page of records, newest first, and the total count.
func (c *client) List(ctx context.Context, page records.Page) ([]records.Record, int, error) {
	return c.store.List(ctx, page)
}

// Upsert stores r as given.
func (c *client) Upsert(ctx context.Context, r records.Record) error {
	return c.store.Upsert(ctx, r)
}
