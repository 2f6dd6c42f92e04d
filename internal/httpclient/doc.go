// Package httpclient provides the HTTP plumbing shared by the visit probes.
//
// [NewClient] builds a client with connection pooling sized for many
// concurrent short visits. [NewSessionClient] derives a per-user client that
// shares the transport but keeps its own cookie jar.
//
// [RequestBuilder] produces GET requests carrying the configured headers, the
// synthetic user agent and the session identifier header:
//
//	builder, err := httpclient.NewRequestBuilder(cfg.Headers, cfg.UserAgent)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx, "https://example.com/", sessionID, "")
//
// Response bodies are read through [DrainBody] or [LimitBody] so a single
// large page cannot exhaust memory during a run.
package httpclient
