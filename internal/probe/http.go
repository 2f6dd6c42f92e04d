package probe

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kuroyamii/playwright-stress-test/internal/httpclient"
)

// HTTPProbe visits a URL with a single GET and drains the body.
type HTTPProbe struct {
	client    *http.Client
	builder   *httpclient.RequestBuilder
	namespace uuid.UUID
	maxBytes  int64
}

// NewHTTPProbe returns a probe issuing requests through client.
func NewHTTPProbe(client *http.Client, builder *httpclient.RequestBuilder) *HTTPProbe {
	if client == nil {
		client = httpclient.NewClient(0)
	}
	return &HTTPProbe{
		client:    client,
		builder:   builder,
		namespace: uuid.New(),
		maxBytes:  httpclient.MaxPageBytes,
	}
}

func (p *HTTPProbe) Visit(ctx context.Context, userID int, target string, opts Options) Result {
	sessionID := SessionID(p.namespace, userID)
	visitCtx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	start := time.Now()
	req, err := p.builder.Build(visitCtx, target, sessionID, opts.UserAgent)
	if err != nil {
		res := Failure(target, "Navigation failed: "+err.Error(), 0)
		res.Diagnostics.SessionID = sessionID
		return res
	}

	resp, err := p.client.Do(req)
	if err != nil {
		res := Failure(target, DescribeError(err, opts.Timeout), time.Since(start))
		res.Diagnostics.SessionID = sessionID
		return res
	}

	n, err := httpclient.DrainBody(resp.Body, p.maxBytes)
	latency := time.Since(start)
	if err != nil {
		res := Failure(target, DescribeError(err, opts.Timeout), latency)
		res.Diagnostics.SessionID = sessionID
		res.Diagnostics.Bytes = n
		return res
	}

	return Result{
		Outcome: fromResponse(target, resp.StatusCode, latency),
		Diagnostics: Diagnostics{
			SessionID: sessionID,
			Bytes:     n,
		},
	}
}

// SessionID derives a stable session identifier for a synthetic user within
// one probe instance.
func SessionID(namespace uuid.UUID, userID int) string {
	return uuid.NewSHA1(namespace, []byte(strconv.Itoa(userID))).String()
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
