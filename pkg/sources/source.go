// Package sources defines the contract of the authoritative external system
// that tracked records are checked against.
package sources

import (
	"context"
	"time"

	"github.com/agentstation/blockquote/pkg/records"
)

// Post is a single post as returned by a source. References to other
// posts are ids only; pkg/thread follows them.
type Post struct {
	ID          string          `json:"id" yaml:"id"`
	Text        string          `json:"text,omitempty" yaml:"text,omitempty"`
	CreatedAt   time.Time       `json:"created_at,omitzero" yaml:"created_at,omitempty"`
	Author      *records.Author `json:"author,omitempty" yaml:"author,omitempty"`
	Media       []records.Media `json:"media,omitempty" yaml:"media,omitempty"`
	QuotedID    string          `json:"quoted_id,omitempty" yaml:"quoted_id,omitempty"`
	RepliedToID string          `json:"replied_to_id,omitempty" yaml:"replied_to_id,omitempty"`
}

// Snapshot converts p into a records.Post with unresolved stub references.
func (p *Post) Snapshot() *records.Post {
	snap := &records.Post{
		ID:        p.ID,
		Text:      p.Text,
		CreatedAt: p.CreatedAt,
		Author:    p.Author,
		Media:     p.Media,
	}

	username := ""
	if p.Author != nil {
		username = p.Author.Username
	}
	snap.URL = records.PostURL(username, p.ID)

	if p.QuotedID != "" {
		snap.Quoted = &records.Post{ID: p.QuotedID}
	}
	if p.RepliedToID != "" {
		snap.InReplyTo = &records.Post{ID: p.RepliedToID}
	}
	return snap
}

// Source fetches posts by id.
//
// Failures carry an errors.Kind through *errors.SourceError: KindNotFound
// when the post does not exist, KindNotAuthorized when it exists but may
// not be read, KindRateLimited when the caller must slow down, and
// KindOther for everything else.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string
	FetchByID(ctx context.Context, id string) (*Post, error)
}
