package probe

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/kuroyamii/playwright-stress-test/internal/httpclient"
	"github.com/kuroyamii/playwright-stress-test/internal/pool"
)

const defaultAssetConcurrency = 6

// BrowserOptions tune the browser-like probe.
type BrowserOptions struct {
	MaxAssets        int           // subresources fetched per page
	AssetConcurrency int           // parallel subresource fetches
	InteractionDelay time.Duration // pause after a successful load
}

// BrowserProbe loads a page like a browser would: it fetches the document,
// discovers same-origin scripts, stylesheets and images with goquery, fetches
// them, then lingers for the interaction delay. Each synthetic user keeps a
// cookie-carrying session that is pooled between its visits.
type BrowserProbe struct {
	base      *http.Client
	builder   *httpclient.RequestBuilder
	sessions  *pool.SessionPool
	namespace uuid.UUID
	opts      BrowserOptions
}

type session struct {
	id     string
	client *http.Client
}

// Close is a no-op: sessions share the base transport.
func (s *session) Close() error { return nil }

func NewBrowserProbe(base *http.Client, builder *httpclient.RequestBuilder, opts BrowserOptions) *BrowserProbe {
	if base == nil {
		base = httpclient.NewClient(0)
	}
	if opts.AssetConcurrency <= 0 {
		opts.AssetConcurrency = defaultAssetConcurrency
	}
	if opts.MaxAssets < 0 {
		opts.MaxAssets = 0
	}
	return &BrowserProbe{
		base:      base,
		builder:   builder,
		sessions:  pool.NewSessionPool(1),
		namespace: uuid.New(),
		opts:      opts,
	}
}

// Close releases pooled sessions.
func (p *BrowserProbe) Close() error {
	return p.sessions.Close()
}

func (p *BrowserProbe) Visit(ctx context.Context, userID int, target string, opts Options) Result {
	sessionID := SessionID(p.namespace, userID)
	key := pool.MakePoolKey(originOf(target)+"#"+strconv.Itoa(userID), nil)

	got, _, err := p.sessions.Get(key, func() (pool.Poolable, error) {
		client, err := httpclient.NewSessionClient(p.base)
		if err != nil {
			return nil, err
		}
		return &session{id: sessionID, client: client}, nil
	})
	if err != nil {
		return Failure(target, "Navigation failed: "+err.Error(), 0)
	}
	sess := got.(*session)
	defer func() { _ = p.sessions.Put(key, sess) }()

	visitCtx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	diag := Diagnostics{SessionID: sess.id}
	start := time.Now()

	req, err := p.builder.Build(visitCtx, target, sess.id, opts.UserAgent)
	if err != nil {
		res := Failure(target, "Navigation failed: "+err.Error(), 0)
		res.Diagnostics = diag
		return res
	}
	resp, err := sess.client.Do(req)
	if err != nil {
		res := Failure(target, DescribeError(err, opts.Timeout), time.Since(start))
		res.Diagnostics = diag
		return res
	}

	var assets []string
	if resp.StatusCode < 400 && isHTML(resp.Header.Get("Content-Type")) && p.opts.MaxAssets > 0 {
		body := &countingBody{ReadCloser: httpclient.LimitBody(resp.Body, httpclient.MaxPageBytes)}
		doc, perr := goquery.NewDocumentFromReader(body)
		_, derr := httpclient.DrainBody(body, httpclient.MaxPageBytes)
		diag.Bytes = body.n
		if rerr := body.readErr(derr); rerr != nil {
			res := Failure(target, DescribeError(rerr, opts.Timeout), time.Since(start))
			res.Diagnostics = diag
			return res
		}
		if perr == nil {
			assets = discoverAssets(doc, resp.Request.URL, p.opts.MaxAssets)
		}
	} else {
		n, derr := httpclient.DrainBody(resp.Body, httpclient.MaxPageBytes)
		diag.Bytes = n
		if derr != nil {
			res := Failure(target, DescribeError(derr, opts.Timeout), time.Since(start))
			res.Diagnostics = diag
			return res
		}
	}

	if len(assets) > 0 {
		diag.Assets = p.fetchAssets(visitCtx, sess, assets, target, opts.UserAgent)
		for _, a := range diag.Assets {
			diag.Bytes += a.Bytes
			if a.Error != "" || a.StatusCode >= 400 {
				diag.FailedAssets++
			}
		}
	}
	latency := time.Since(start)
	out := fromResponse(target, resp.StatusCode, latency)

	if out.Success && p.opts.InteractionDelay > 0 {
		diag.Interaction = linger(ctx, p.opts.InteractionDelay)
	}

	return Result{Outcome: out, Diagnostics: diag}
}

func (p *BrowserProbe) fetchAssets(ctx context.Context, sess *session, assets []string, referer, userAgent string) []AssetResult {
	results := make([]AssetResult, len(assets))
	sem := make(chan struct{}, p.opts.AssetConcurrency)
	var wg sync.WaitGroup
	for i, asset := range assets {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, asset string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = fetchAsset(ctx, p.builder, sess, asset, referer, userAgent)
		}(i, asset)
	}
	wg.Wait()
	return results
}

func fetchAsset(ctx context.Context, builder *httpclient.RequestBuilder, sess *session, asset, referer, userAgent string) AssetResult {
	res := AssetResult{URL: asset}
	start := time.Now()
	req, err := builder.Build(ctx, asset, sess.id, userAgent)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Referer", referer)
	resp, err := sess.client.Do(req)
	if err != nil {
		res.Error = DescribeError(err, 0)
		res.LatencyMs = time.Since(start).Milliseconds()
		return res
	}
	res.Bytes, err = httpclient.DrainBody(resp.Body, httpclient.MaxPageBytes)
	res.StatusCode = resp.StatusCode
	res.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// discoverAssets returns up to limit distinct same-origin subresource URLs in
// document order.
func discoverAssets(doc *goquery.Document, page *url.URL, limit int) []string {
	if page == nil || limit <= 0 {
		return nil
	}
	seen := map[string]bool{}
	var assets []string
	add := func(raw string) bool {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "#") {
			return true
		}
		ref, err := url.Parse(raw)
		if err != nil {
			return true
		}
		abs := page.ResolveReference(ref)
		abs.Fragment = ""
		if abs.Scheme != page.Scheme || abs.Host != page.Host {
			return true
		}
		s := abs.String()
		if seen[s] {
			return true
		}
		seen[s] = true
		assets = append(assets, s)
		return len(assets) < limit
	}

	doc.Find(`script[src], link[rel~="stylesheet"][href], img[src]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		attr := "src"
		if goquery.NodeName(sel) == "link" {
			attr = "href"
		}
		val, _ := sel.Attr(attr)
		return add(val)
	})
	return assets
}

// countingBody counts bytes read and remembers the first transport error,
// which the HTML parser would otherwise report as a parse failure.
type countingBody struct {
	io.ReadCloser
	n   int64
	err error
}

func (c *countingBody) Read(b []byte) (int, error) {
	n, err := c.ReadCloser.Read(b)
	c.n += int64(n)
	if err != nil && err != io.EOF && c.err == nil {
		c.err = err
	}
	return n, err
}

func (c *countingBody) readErr(drainErr error) error {
	if c.err != nil {
		return c.err
	}
	return drainErr
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

func originOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return target
	}
	return u.Scheme + "://" + u.Host
}

// linger waits for d or until ctx is done and returns the time spent.
func linger(ctx context.Context, d time.Duration) time.Duration {
	start := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return time.Since(start)
}
