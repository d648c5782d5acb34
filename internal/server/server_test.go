package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/blockquote"
	"github.com/agentstation/blockquote/internal/cmd/application"
	"github.com/agentstation/blockquote/internal/metrics"
	"github.com/agentstation/blockquote/internal/server"
	"github.com/agentstation/blockquote/internal/sources/local"
	"github.com/agentstation/blockquote/internal/store/memory"
	"github.com/agentstation/blockquote/pkg/records"
	"github.com/agentstation/blockquote/pkg/sources"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func overdue(id, ref string) records.Record {
	return records.Record{
		ID:          id,
		CreatedAt:   now.Add(-10 * 24 * time.Hour),
		LastUpdated: now.Add(-8 * 24 * time.Hour),
		ForeignRef:  ref,
	}
}

type fixture struct {
	store  *memory.Store
	source *local.Source
	srv    *server.Server
	http   *httptest.Server
}

func newFixture(t *testing.T, cfg server.Config, src sources.Source) *fixture {
	t.Helper()
	return newFixtureWithStore(t, cfg, src, nil)
}

// newFixtureWithStore serves repo when given, otherwise the fixture's
// memory store.
func newFixtureWithStore(t *testing.T, cfg server.Config, src sources.Source, repo records.Repository) *fixture {
	t.Helper()

	store := memory.New(overdue("A", "x"), overdue("B", "y"))
	if repo == nil {
		repo = store
	}
	localSrc, err := local.New(local.WithPosts(
		sources.Post{ID: "x"},
		sources.Post{ID: "q1", Text: "quoting x", QuotedID: "x"},
		sources.Post{ID: "plain", Text: "no quote"},
	))
	require.NoError(t, err)
	if src == nil {
		src = localSrc
	}

	client, err := blockquote.New(
		blockquote.WithStore(repo),
		blockquote.WithSource(src),
		blockquote.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	app := &application.Mock{
		ClientFunc:   func() (blockquote.Client, error) { return client, nil },
		MetricsFunc:  func() *metrics.Metrics { return m },
		GathererFunc: func() prometheus.Gatherer { return reg },
	}

	srv, err := server.New(app, cfg)
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{store: store, source: localSrc, srv: srv, http: ts}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.http.URL+path, rdr)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, server.DefaultConfig(), nil)

	code, env := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "healthy")

	code, env = f.do(t, http.MethodGet, "/api/v1/ready", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"records":2`)
}

func TestReadyFailsWhenStoreIsClosed(t *testing.T) {
	f := newFixture(t, server.DefaultConfig(), nil)
	require.NoError(t, f.store.Close())

	code, env := f.do(t, http.MethodGet, "/api/v1/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NotNil(t, env.Error)
}

func TestListRecords(t *testing.T) {
	f := newFixture(t, server.DefaultConfig(), nil)

	code, env := f.do(t, http.MethodGet, "/api/v1/records?limit=1&offset=1", "")
	require.Equal(t, http.StatusOK, code)

	var page struct {
		Items  []records.Record `json:"items"`
		Total  int              `json:"total"`
		Limit  int              `json:"limit"`
		Offset int              `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.Limit)
	assert.Equal(t, 1, page.Offset)
	assert.Len(t, page.Items, 1)

	code, env = f.do(t, http.MethodGet, "/api/v1/records?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
}

func TestGetRecordIsCachedUntilUpsert(t *testing.T) {
	f := newFixture(t, server.DefaultConfig(), nil)

	code, _ := f.do(t, http.MethodGet, "/api/v1/records/A", "")
	require.Equal(t, http.StatusOK, code)

	// a write that bypasses the API is not visible while cached
	changed := overdue("A", "x")
	changed.Deleted = true
	require.NoError(t, f.store.Upsert(context.Background(), changed))

	_, env := f.do(t, http.MethodGet, "/api/v1/records/A", "")
	var rec records.Record
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.False(t, rec.Deleted)

	body, err := json.Marshal(changed)
	require.NoError(t, err)
	code, _ = f.do(t, http.MethodPut, "/api/v1/records/A", string(body))
	require.Equal(t, http.StatusOK, code)

	_, env = f.do(t, http.MethodGet, "/api/v1/records/A", "")
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.True(t, rec.Deleted)
}

func TestGetRecordNotFound(t *testing.T) {
	f := newFixture(t, server.DefaultConfig(), nil)

	code, env := f.do(t, http.MethodGet, "/api/v1/records/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestUpsertRecordValidation(t *testing.T) {
	f := newFixture(t, server.DefaultConfig(), nil)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"bad json", "/api/v1/records/A", "{"},
		{"id mismatch", "/api/v1/records/A", `{"id":"B"}`},
		{"invalid record", "/api/v1/records/N", `{"id":"N"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := f.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			require.NotNil(t, env.Error)
		})
	}
}

func TestTrackRecord(t *testing.T) {
	f := newFixture(t, server.DefaultConfig(), nil)

	code, env := f.do(t, http.MethodPost, "/api/v1/records/track", `{"post_id":"q1"}`)
	require.Equal(t, http.StatusCreated, code)

	var rec records.Record
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "q1", rec.ID)
	assert.Equal(t, "x", rec.ForeignRef)

	_, err := f.store.Get(context.Background(), "q1")
	assert.NoError(t, err)

	code, _ = f.do(t, http.MethodPost, "/api/v1/records/track", `{"post_id":"plain"}`)
	assert.Equal(t, http.StatusBadRequest, code, "a post that quotes nothing")

	code, _ = f.do(t, http.MethodPost, "/api/v1/records/track", `{"post_id":"gone"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/records/track", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReconcileEndpoint(t *testing.T) {
	f := newFixture(t, server.DefaultConfig(), nil)

	// warm the cache so the deletion hook has something to invalidate
	code, _ := f.do(t, http.MethodGet, "/api/v1/records/B", "")
	require.Equal(t, http.StatusOK, code)

	code, env := f.do(t, http.MethodPost, "/api/v1/reconcile", "")
	require.Equal(t, http.StatusOK, code)

	var res struct {
		Pulled        int      `json:"pulled"`
		Found         int      `json:"found"`
		MarkedDeleted []string `json:"marked_deleted"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 2, res.Pulled)
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, []string{"B"}, res.MarkedDeleted)

	_, env = f.do(t, http.MethodGet, "/api/v1/records/B", "")
	var rec records.Record
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.True(t, rec.Deleted)

	code, _ = f.do(t, http.MethodGet, "/api/v1/reconcile", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

// blockingSource holds every fetch until release is closed.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) Name() string { return "blocking" }

func (b *blockingSource) FetchByID(ctx context.Context, id string) (*sources.Post, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
		return &sources.Post{ID: id}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestReconcileConflictWhileRunning(t *testing.T) {
	src := &blockingSource{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, server.DefaultConfig(), src)

	first := make(chan int, 1)
	go func() {
		resp, err := http.Post(f.http.URL+"/api/v1/reconcile", "application/json", nil)
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()

	select {
	case <-src.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first reconciliation never started")
	}

	code, env := f.do(t, http.MethodPost, "/api/v1/reconcile", "")
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	close(src.release)
	assert.Equal(t, http.StatusOK, <-first)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, server.DefaultConfig(), nil)

	code, _ := f.do(t, http.MethodPost, "/api/v1/reconcile", "")
	require.Equal(t, http.StatusOK, code)

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `blockquote_http_requests_total{code="200",method="POST"} 1`)
}

func TestAuthProtectsRecords(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.AuthEnabled = true
	cfg.APIKey = "secret"
	f := newFixture(t, cfg, nil)

	code, _ := f.do(t, http.MethodGet, "/api/v1/records", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, code)

	req, err := http.NewRequest(http.MethodGet, f.http.URL+"/api/v1/records", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// flakyStore fails upserts of one record.
type flakyStore struct {
	*memory.Store
	failID string
}

func (s *flakyStore) Upsert(ctx context.Context, r records.Record) error {
	if r.ID == s.failID {
		return errors.New("disk full")
	}
	return s.Store.Upsert(ctx, r)
}

func dialUpdates(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/api/v1/updates/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	assert.Eventually(t, func() bool {
		resp, err := http.Get(f.http.URL + "/api/v1/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), `"websocket_clients":1`)
	}, 5*time.Second, 20*time.Millisecond)
	return conn
}

func TestFailedReconcileRefreshesCacheAndPublishes(t *testing.T) {
	store := &flakyStore{Store: memory.New(overdue("A", "x"), overdue("B", "y")), failID: "B"}
	f := newFixtureWithStore(t, server.DefaultConfig(), nil, store)
	conn := dialUpdates(t, f)

	code, _ := f.do(t, http.MethodGet, "/api/v1/records/A", "")
	require.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/reconcile", "")
	require.NotEqual(t, http.StatusOK, code)

	// A was written before the run failed, so its cached copy is gone
	_, env := f.do(t, http.MethodGet, "/api/v1/records/A", "")
	var rec records.Record
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.True(t, rec.LastUpdated.Equal(now))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var failed json.RawMessage
	for failed == nil {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "reconcile.failed" {
			failed = msg.Data
		}
	}

	var data struct {
		Error  string `json:"error"`
		Result struct {
			Upserted int `json:"upserted"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(failed, &data))
	assert.Contains(t, data.Error, "disk full")
	assert.Equal(t, 1, data.Result.Upserted)
}

func TestWebSocketReceivesDeletion(t *testing.T) {
	f := newFixture(t, server.DefaultConfig(), nil)
	conn := dialUpdates(t, f)

	code, _ := f.do(t, http.MethodPost, "/api/v1/reconcile", "")
	require.Equal(t, http.StatusOK, code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	seen := map[string]json.RawMessage{}
	for seen["reconcile.completed"] == nil {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		seen[msg.Type] = msg.Data
	}

	require.Contains(t, seen, "record.deleted")
	assert.JSONEq(t, `{"id":"B"}`, string(seen["record.deleted"]))
}
