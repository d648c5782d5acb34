// Package local implements sources.Source over posts held in memory,
// optionally loaded from a YAML file. It backs offline runs and tests.
package local

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/sources"
)

// Name identifies the local source.
const Name = "local"

// Source serves posts from memory.
type Source struct {
	mu    sync.RWMutex
	posts map[string]*sources.Post
	fails map[string]error
	calls atomic.Int64

	path string
}

// Option configures a local source.
type Option func(*Source)

// WithPostsFile loads posts from a YAML list on New.
func WithPostsFile(path string) Option {
	return func(s *Source) {
		s.path = path
	}
}

// WithPosts seeds the source.
func WithPosts(posts ...sources.Post) Option {
	return func(s *Source) {
		for i := range posts {
			p := posts[i]
			s.posts[p.ID] = &p
		}
	}
}

// New creates a local source.
func New(opts ...Option) (*Source, error) {
	s := &Source{
		posts: map[string]*sources.Post{},
		fails: map[string]error{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.path != "" {
		if err := s.load(s.path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Source) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapIO("read", path, err)
	}

	var posts []sources.Post
	if err := yaml.Unmarshal(data, &posts); err != nil {
		return errors.WrapParse("yaml", path, err)
	}
	for i := range posts {
		if posts[i].ID == "" {
			return errors.NewParseError("yaml", path, "post without id", nil)
		}
		p := posts[i]
		s.posts[p.ID] = &p
	}
	return nil
}

// Name implements sources.Source.
func (s *Source) Name() string {
	return Name
}

// FetchByID implements sources.Source. Unknown ids fail with KindNotFound.
func (s *Source) FetchByID(ctx context.Context, id string) (*sources.Post, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.fails[id]; ok {
		return nil, err
	}
	post, ok := s.posts[id]
	if !ok {
		return nil, errors.NewSourceError(Name, id, errors.KindNotFound, errors.ErrNotFound)
	}
	cp := *post
	return &cp, nil
}

// Add stores or replaces a post.
func (s *Source) Add(post sources.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[post.ID] = &post
}

// Remove deletes a post so later fetches report not found.
func (s *Source) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, id)
}

// Fail makes every fetch of id return err until Recover is called.
func (s *Source) Fail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[id] = err
}

// FailWith is Fail with a SourceError of the given kind.
func (s *Source) FailWith(id string, kind errors.Kind) {
	s.Fail(id, errors.NewSourceError(Name, id, kind, nil))
}

// Recover clears an injected failure.
func (s *Source) Recover(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fails, id)
}

// Calls returns the number of FetchByID calls so far.
func (s *Source) Calls() int {
	return int(s.calls.Load())
}

// Len returns the number of posts held.
func (s *Source) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}
