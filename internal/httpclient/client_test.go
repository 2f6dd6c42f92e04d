package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBuilderSetsHeaders(t *testing.T) {
	builder, err := NewRequestBuilder(map[string]string{"x-env": "staging", "Accept": "text/plain"}, "agent/1.0")
	require.NoError(t, err)

	req, err := builder.Build(context.Background(), "https://example.com/about", "session-1", "")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "https://example.com/about", req.URL.String())
	assert.Equal(t, "staging", req.Header.Get("X-Env"))
	assert.Equal(t, "text/plain", req.Header.Get("Accept"))
	assert.Equal(t, "agent/1.0", req.Header.Get("User-Agent"))
	assert.Equal(t, "session-1", req.Header.Get(SessionHeader))
}

func TestRequestBuilderUserAgentOverride(t *testing.T) {
	builder, err := NewRequestBuilder(nil, "default-agent")
	require.NoError(t, err)

	req, err := builder.Build(context.Background(), "http://localhost/", "", "custom-agent")
	require.NoError(t, err)
	assert.Equal(t, "custom-agent", req.Header.Get("User-Agent"))
	assert.Empty(t, req.Header.Get(SessionHeader))
}

func TestRequestBuilderRejectsInvalidHeaders(t *testing.T) {
	_, err := NewRequestBuilder(map[string]string{"Bad\nKey": "v"}, "")
	require.Error(t, err)

	_, err = NewRequestBuilder(map[string]string{"X-Ok": "line\r\nbreak"}, "")
	require.Error(t, err)
}

func TestSessionClientsKeepSeparateCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("sid"); err != nil {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
			_, _ = io.WriteString(w, "new")
			return
		}
		_, _ = io.WriteString(w, "returning")
	}))
	defer srv.Close()

	base := NewClient(0)
	first, err := NewSessionClient(base)
	require.NoError(t, err)
	second, err := NewSessionClient(base)
	require.NoError(t, err)

	get := func(c *http.Client) string {
		resp, err := c.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(b)
	}

	assert.Equal(t, "new", get(first))
	assert.Equal(t, "returning", get(first))
	assert.Equal(t, "new", get(second))
	assert.Same(t, base.Transport, first.Transport)
}

func TestDrainBodyHonoursLimit(t *testing.T) {
	n, err := DrainBody(io.NopCloser(strings.NewReader(strings.Repeat("a", 100))), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	n, err = DrainBody(nil, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLimitBody(t *testing.T) {
	body := LimitBody(io.NopCloser(strings.NewReader("abcdef")), 3)
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))
	require.NoError(t, body.Close())
}
