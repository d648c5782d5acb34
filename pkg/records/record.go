// Package records defines tracked quote-post records, the due-date schedule
// that decides when each one is checked again, and the store contracts.
package records

import (
	"fmt"
	"time"

	"github.com/agentstation/blockquote/pkg/constants"
	"github.com/agentstation/blockquote/pkg/errors"
)

// Record is a locally tracked post that quotes another post.
// ForeignRef is the id of the quoted post; empty means the record has no
// counterpart to check.
type Record struct {
	ID          string    `json:"id" yaml:"id"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	LastUpdated time.Time `json:"last_updated" yaml:"last_updated"`
	ForeignRef  string    `json:"foreign_ref,omitempty" yaml:"foreign_ref,omitempty"`
	Deleted     bool      `json:"deleted" yaml:"deleted"`
	Post        *Post     `json:"post,omitempty" yaml:"post,omitempty"`
}

// Post is a snapshot of a post and the posts it references.
type Post struct {
	ID        string    `json:"id" yaml:"id"`
	Text      string    `json:"text,omitempty" yaml:"text,omitempty"`
	URL       string    `json:"url,omitempty" yaml:"url,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero" yaml:"created_at,omitempty"`
	Author    *Author   `json:"author,omitempty" yaml:"author,omitempty"`
	Media     []Media   `json:"media,omitempty" yaml:"media,omitempty"`
	Quoted    *Post     `json:"quoted,omitempty" yaml:"quoted,omitempty"`
	InReplyTo *Post     `json:"in_reply_to,omitempty" yaml:"in_reply_to,omitempty"`

	// Truncated marks a reference that was not followed because the
	// thread reached its maximum depth.
	Truncated bool `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	// Unavailable marks a reference that could not be fetched.
	Unavailable bool `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
}

// Author is the account that wrote a post.
type Author struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name,omitempty" yaml:"name,omitempty"`
	Username        string `json:"username,omitempty" yaml:"username,omitempty"`
	ProfileImageURL string `json:"profile_image_url,omitempty" yaml:"profile_image_url,omitempty"`
	Verified        bool   `json:"verified,omitempty" yaml:"verified,omitempty"`
}

// Media is an attachment of a post.
type Media struct {
	Type      string `json:"type" yaml:"type"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
}

// PostURL returns the canonical web URL of a post.
func PostURL(username, id string) string {
	if username == "" {
		return fmt.Sprintf("https://x.com/i/status/%s", id)
	}
	return fmt.Sprintf("https://x.com/%s/status/%s", username, id)
}

// Interval returns how long after its last update a record of the given
// age becomes due again. Young records are checked often, old ones rarely.
func Interval(age time.Duration) time.Duration {
	switch {
	case age < constants.FreshAge:
		return constants.FreshInterval
	case age < constants.RecentAge:
		return constants.RecentInterval
	case age < constants.DayAge:
		return constants.DayInterval
	default:
		return constants.StaleInterval
	}
}

// DueAt returns when the record should next be reconciled, as seen at now.
func (r *Record) DueAt(now time.Time) time.Time {
	return r.LastUpdated.Add(Interval(now.Sub(r.CreatedAt)))
}

// IsDue reports whether DueAt(now) is not after now.
func (r *Record) IsDue(now time.Time) bool {
	return !r.DueAt(now).After(now)
}

// IsCandidate reports whether the record takes part in reconciliation at all.
func (r *Record) IsCandidate() bool {
	return r.ForeignRef != "" && !r.Deleted
}

// Validate checks the fields every stored record must carry.
func (r *Record) Validate() error {
	if r.ID == "" {
		return errors.NewValidationError("id", r.ID, "record id is required")
	}
	if r.CreatedAt.IsZero() {
		return errors.NewValidationError("created_at", r.CreatedAt, "creation time is required")
	}
	if r.LastUpdated.Before(r.CreatedAt) {
		return errors.NewValidationError("last_updated", r.LastUpdated, "last update precedes creation")
	}
	return nil
}

// NewRecord turns a fetched thread into a record. The post must quote
// another post, which becomes the record's foreign reference. A post
// without a creation time is stamped with now.
func NewRecord(post *Post, now time.Time) (*Record, error) {
	if post == nil || post.ID == "" {
		return nil, errors.NewValidationError("post", nil, "post is required")
	}
	if post.Quoted == nil || post.Quoted.ID == "" {
		return nil, errors.NewValidationError("quoted", post.ID, "post does not quote another post")
	}

	createdAt := post.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	return &Record{
		ID:          post.ID,
		CreatedAt:   createdAt,
		LastUpdated: createdAt,
		ForeignRef:  post.Quoted.ID,
		Post:        post,
	}, nil
}
