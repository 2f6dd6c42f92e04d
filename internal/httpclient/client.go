package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/kuroyamii/playwright-stress-test/internal/tracing"
)

// SessionHeader carries the synthetic user's session ID on every visit.
const SessionHeader = "X-Stress-Session"

const defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

type RequestBuilder struct {
	headers   http.Header
	userAgent string
	propagate bool
}

// NewRequestBuilder validates the static headers sent with every visit.
func NewRequestBuilder(headers map[string]string, userAgent string) (*RequestBuilder, error) {
	built := http.Header{}
	for key, value := range headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		built.Set(canonicalKey, value)
	}
	if strings.ContainsAny(userAgent, "\r\n") {
		return nil, errors.New("invalid user agent")
	}

	return &RequestBuilder{
		headers:   built,
		userAgent: strings.TrimSpace(userAgent),
	}, nil
}

// WithPropagation makes Build inject W3C trace context from the request context.
func (b *RequestBuilder) WithPropagation(enabled bool) *RequestBuilder {
	b.propagate = enabled
	return b
}

// Build creates a GET request for target. userAgent overrides the builder's
// default when non-empty.
func (b *RequestBuilder) Build(ctx context.Context, target, sessionID, userAgent string) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	req.Header = make(http.Header, len(b.headers)+3)
	req.Header.Set("Accept", defaultAccept)
	for key, values := range b.headers {
		req.Header.Del(key)
		for _, val := range values {
			req.Header.Add(key, val)
		}
	}

	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		ua = b.userAgent
	}
	if ua != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", ua)
	}
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	if b.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	return req, nil
}

// NewClient returns a client tuned for many concurrent short visits. Per-visit
// deadlines are expected to come from the request context; timeout is an
// outer bound.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewSessionClient returns a client sharing base's transport but keeping its
// own cookie jar, the way a browser context isolates one user.
func NewSessionClient(base *http.Client) (*http.Client, error) {
	if base == nil {
		base = NewClient(0)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &http.Client{
		Timeout:       base.Timeout,
		Transport:     base.Transport,
		CheckRedirect: base.CheckRedirect,
		Jar:           jar,
	}, nil
}
