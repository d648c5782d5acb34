package transport

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newRequest(t *testing.T, rawURL string) *http.Request {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Request{URL: u, Header: make(http.Header)}
}

func TestNoAuth(t *testing.T) {
	req := newRequest(t, "https://api.x.com/2/tweets/1")
	(&NoAuth{}).Apply(req, "secret")
	assert.Empty(t, req.Header)
}

func TestBearerAuth(t *testing.T) {
	req := newRequest(t, "https://api.x.com/2/tweets/1")
	(&BearerAuth{}).Apply(req, "secret")
	assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))

	empty := newRequest(t, "https://api.x.com/2/tweets/1")
	(&BearerAuth{}).Apply(empty, "")
	assert.Empty(t, empty.Header.Get("Authorization"), "no token, no header")
}
