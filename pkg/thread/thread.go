// Package thread builds the tree of posts a post quotes or replies to.
//
// Traversal is iterative with an explicit stack. The root is depth 0 and
// every quote or reply hop adds one. References beyond the maximum depth
// are kept as stubs marked Truncated; references that cannot be fetched
// are kept as stubs marked Unavailable.
package thread

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/blockquote/pkg/constants"
	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/logging"
	"github.com/agentstation/blockquote/pkg/records"
	"github.com/agentstation/blockquote/pkg/sources"
)

// Builder fetches threads from a source.
type Builder struct {
	source   sources.Source
	maxDepth int
	logger   *zerolog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithMaxDepth sets how many hops are followed. Negative values mean zero.
func WithMaxDepth(n int) Option {
	return func(b *Builder) {
		b.maxDepth = max(n, 0)
	}
}

// WithLogger sets the logger used for nested fetch failures.
func WithLogger(logger *zerolog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// New creates a Builder.
func New(source sources.Source, opts ...Option) *Builder {
	b := &Builder{source: source, maxDepth: constants.DefaultMaxThreadDepth}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// MaxDepth returns the configured depth limit.
func (b *Builder) MaxDepth() int {
	return b.maxDepth
}

type frame struct {
	post  *records.Post
	depth int
}

// Build fetches the post with id and follows its references.
// Only a failure to fetch the root is returned.
func (b *Builder) Build(ctx context.Context, id string) (*records.Post, error) {
	logger := b.logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	post, err := b.source.FetchByID(ctx, id)
	if err != nil {
		return nil, errors.WrapResource("fetch", "post", id, err)
	}

	root := post.Snapshot()
	fetched := map[string]*sources.Post{id: post}
	stack := []frame{{post: root, depth: 0}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, ref := range []*records.Post{f.post.Quoted, f.post.InReplyTo} {
			if ref == nil {
				continue
			}
			depth := f.depth + 1
			if depth > b.maxDepth {
				ref.Truncated = true
				continue
			}

			p, ok := fetched[ref.ID]
			if !ok {
				p, err = b.source.FetchByID(ctx, ref.ID)
				if err != nil {
					logger.Warn().Err(err).
						Str("post_id", ref.ID).
						Int("depth", depth).
						Stringer("kind", errors.KindOf(err)).
						Msg("Referenced post unavailable")
					ref.Unavailable = true
					continue
				}
				fetched[ref.ID] = p
			}

			*ref = *p.Snapshot()
			stack = append(stack, frame{post: ref, depth: depth})
		}
	}

	return root, nil
}

// Depth returns the number of hops along the longest resolved chain of post.
func Depth(post *records.Post) int {
	if post == nil {
		return 0
	}
	deepest := 0
	stack := []frame{{post: post, depth: 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		deepest = max(deepest, f.depth)
		for _, ref := range []*records.Post{f.post.Quoted, f.post.InReplyTo} {
			if ref != nil && !ref.Truncated && !ref.Unavailable {
				stack = append(stack, frame{post: ref, depth: f.depth + 1})
			}
		}
	}
	return deepest
}
