// Package probe performs simulated visits by synthetic users and reports
// each visit as an Outcome.
//
// A Probe never returns an error: every failure mode (timeouts, refused
// connections, TLS problems, HTTP error statuses) is folded into the
// Outcome's StatusCode and ErrorMessage so the metrics layer can classify it.
// Extra detail about the visit travels in Diagnostics, which only logging
// and reporting consume.
package probe

import (
	"context"
	"time"
)

// Variant names a probe implementation.
type Variant string

const (
	VariantHTTP    Variant = "http"
	VariantBrowser Variant = "browser"
)

// Options tune one visit.
type Options struct {
	Timeout   time.Duration // per attempt
	Retries   int           // extra attempts when no response was obtained
	UserAgent string
}

// Outcome is the result of one visit. StatusCode is 0 when no response was
// obtained; ErrorMessage is empty on success.
type Outcome struct {
	URL          string `json:"url"`
	Success      bool   `json:"success"`
	StatusCode   int    `json:"status_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	LatencyMs    int64  `json:"latency_ms"`
}

// HasStatus reports whether a response status was obtained.
func (o Outcome) HasStatus() bool {
	return o.StatusCode > 0
}

// AssetResult describes one subresource fetched during a browser visit.
type AssetResult struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	Bytes      int64  `json:"bytes"`
	LatencyMs  int64  `json:"latency_ms"`
}

// Diagnostics is the side channel of a visit.
type Diagnostics struct {
	SessionID     string        `json:"session_id,omitempty"`
	Attempts      int           `json:"attempts"`
	Bytes         int64         `json:"bytes"`
	Assets        []AssetResult `json:"assets,omitempty"`
	FailedAssets  int           `json:"failed_assets,omitempty"`
	Interaction   time.Duration `json:"interaction,omitempty"`
	AttemptErrors []string      `json:"attempt_errors,omitempty"`
}

// Result bundles an Outcome with its Diagnostics.
type Result struct {
	Outcome     Outcome
	Diagnostics Diagnostics
}

// Probe performs one simulated visit of url on behalf of userID.
type Probe interface {
	Visit(ctx context.Context, userID int, url string, opts Options) Result
}

// Func adapts a function to the Probe interface.
type Func func(ctx context.Context, userID int, url string, opts Options) Result

func (f Func) Visit(ctx context.Context, userID int, url string, opts Options) Result {
	return f(ctx, userID, url, opts)
}

// Failure builds a failed Result for url with the given message.
func Failure(url, message string, latency time.Duration) Result {
	return Result{Outcome: Outcome{
		URL:          url,
		ErrorMessage: message,
		LatencyMs:    latency.Milliseconds(),
	}}
}

// fromResponse builds the outcome for a response with the given status.
func fromResponse(url string, status int, latency time.Duration) Outcome {
	out := Outcome{
		URL:        url,
		StatusCode: status,
		Success:    status < 400,
		LatencyMs:  latency.Milliseconds(),
	}
	if !out.Success {
		out.ErrorMessage = StatusError{StatusCode: status}.Error()
	}
	return out
}
