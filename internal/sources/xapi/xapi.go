// Package xapi implements sources.Source against the X API v2 post lookup
// endpoint.
package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/agentstation/blockquote/internal/transport"
	"github.com/agentstation/blockquote/pkg/constants"
	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/logging"
	"github.com/agentstation/blockquote/pkg/records"
	"github.com/agentstation/blockquote/pkg/sources"
)

// maxMessageRunes bounds error messages taken from raw response bodies.
const maxMessageRunes = 200

// Problem types reported in the errors array of a 200 response.
const (
	problemNotFound      = "https://api.twitter.com/2/problems/resource-not-found"
	problemNotAuthorized = "https://api.twitter.com/2/problems/not-authorized-for-resource"
)

var lookupParams = url.Values{
	"expansions":   {"author_id,attachments.media_keys,referenced_tweets.id"},
	"tweet.fields": {"created_at,attachments,referenced_tweets,author_id"},
	"user.fields":  {"name,username,profile_image_url,verified"},
	"media.fields": {"type,url,preview_image_url"},
}

// Source fetches posts from the X API.
type Source struct {
	client  *transport.Client
	baseURL string
	logger  *zerolog.Logger
}

var _ sources.Source = (*Source)(nil)

// Option configures a Source.
type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zerolog.Logger
}

// WithBaseURL overrides the API root, mainly for tests.
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = u
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates an X API source authenticated with an app bearer token.
func New(token string, opts ...Option) (*Source, error) {
	if token == "" {
		return nil, errors.NewConfigError("xapi", "bearer token is required", nil)
	}

	o := &options{
		baseURL: constants.DefaultXAPIURL,
		timeout: constants.DefaultHTTPTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	base, err := url.Parse(o.baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.NewConfigError("xapi", fmt.Sprintf("invalid base url %q", o.baseURL), err)
	}

	topts := []transport.Option{transport.WithToken(token)}
	if o.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(o.httpClient))
	} else {
		topts = append(topts, transport.WithTimeout(o.timeout))
	}

	logger := o.logger
	if logger == nil {
		l := logging.Default().With().Str("source", constants.SourceX).Logger()
		logger = &l
	}

	return &Source{
		client:  transport.New(&transport.BearerAuth{}, topts...),
		baseURL: strings.TrimRight(o.baseURL, "/"),
		logger:  logger,
	}, nil
}

// Name implements sources.Source.
func (s *Source) Name() string {
	return constants.SourceX
}

// FetchByID implements sources.Source.
func (s *Source) FetchByID(ctx context.Context, id string) (*sources.Post, error) {
	endpoint := s.baseURL + "/2/tweets/" + url.PathEscape(id) + "?" + lookupParams.Encode()

	resp, err := s.client.Get(ctx, endpoint)
	if err != nil {
		return nil, s.fail(id, errors.KindOther, 0, "", err)
	}

	body, err := transport.ReadBody(resp)
	if err != nil {
		return nil, s.fail(id, errors.KindOther, resp.StatusCode, "", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, s.fail(id, errors.KindNotFound, resp.StatusCode, "post not found", nil)
	case http.StatusTooManyRequests:
		return nil, s.fail(id, errors.KindRateLimited, resp.StatusCode, rateLimitMessage(resp.Header), nil)
	default:
		// 401 and 403 land here: bad credentials must abort a run,
		// not mark every record deleted.
		msg := apiMessage(body)
		apiErr := errors.NewAPIError(constants.SourceX, resp.StatusCode, msg)
		if resp.Request != nil && resp.Request.URL != nil {
			apiErr.Endpoint = resp.Request.URL.Path
		}
		return nil, s.fail(id, errors.KindOther, resp.StatusCode, msg, apiErr)
	}

	var lr lookupResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, s.fail(id, errors.KindOther, resp.StatusCode, "decode response", errors.WrapParse("json", "response", err))
	}

	if lr.Data == nil {
		kind, msg := classify(lr.Errors)
		return nil, s.fail(id, kind, resp.StatusCode, msg, nil)
	}

	s.logger.Debug().Str("post_id", id).Msg("Fetched post")
	return lr.post(), nil
}

func (s *Source) fail(id string, kind errors.Kind, status int, msg string, err error) error {
	srcErr := errors.NewSourceError(constants.SourceX, id, kind, err)
	srcErr.StatusCode = status
	srcErr.Message = msg
	return srcErr
}

// classify maps the problems of a data-less 200 response to a kind.
func classify(problems []problem) (errors.Kind, string) {
	for _, p := range problems {
		switch p.Type {
		case problemNotFound:
			return errors.KindNotFound, p.Detail
		case problemNotAuthorized:
			return errors.KindNotAuthorized, p.Detail
		}
	}
	if len(problems) > 0 {
		return errors.KindOther, problems[0].Detail
	}
	return errors.KindOther, "response has neither data nor errors"
}

func rateLimitMessage(h http.Header) string {
	reset, err := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64)
	if err != nil {
		return "rate limited"
	}
	return "rate limited until " + time.Unix(reset, 0).UTC().Format(time.RFC3339)
}

// apiMessage extracts a short message from an error body.
func apiMessage(body []byte) string {
	var e struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && (e.Detail != "" || e.Title != "") {
		if e.Detail != "" {
			return e.Detail
		}
		return e.Title
	}
	msg := strings.TrimSpace(string(body))
	if utf8.RuneCountInString(msg) > maxMessageRunes {
		msg = string([]rune(msg)[:maxMessageRunes])
	}
	return msg
}

type lookupResponse struct {
	Data     *tweet    `json:"data"`
	Includes includes  `json:"includes"`
	Errors   []problem `json:"errors"`
}

type tweet struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	AuthorID    string    `json:"author_id"`
	CreatedAt   time.Time `json:"created_at"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type includes struct {
	Users []user  `json:"users"`
	Media []media `json:"media"`
}

type user struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
	Verified        bool   `json:"verified"`
}

type media struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (lr *lookupResponse) post() *sources.Post {
	t := lr.Data
	p := &sources.Post{
		ID:        t.ID,
		Text:      t.Text,
		CreatedAt: t.CreatedAt.UTC(),
	}

	for _, u := range lr.Includes.Users {
		if u.ID == t.AuthorID {
			p.Author = &records.Author{
				ID:              u.ID,
				Name:            u.Name,
				Username:        u.Username,
				ProfileImageURL: u.ProfileImageURL,
				Verified:        u.Verified,
			}
			break
		}
	}

	byKey := make(map[string]media, len(lr.Includes.Media))
	for _, m := range lr.Includes.Media {
		byKey[m.MediaKey] = m
	}
	for _, key := range t.Attachments.MediaKeys {
		m, ok := byKey[key]
		if !ok {
			continue
		}
		p.Media = append(p.Media, records.Media{Type: m.Type, URL: m.URL, Thumbnail: m.PreviewImageURL})
	}

	for _, ref := range t.ReferencedTweets {
		switch ref.Type {
		case "quoted":
			p.QuotedID = ref.ID
		case "replied_to":
			p.RepliedToID = ref.ID
		}
	}
	return p
}
