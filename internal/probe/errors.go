package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// StatusError reports an HTTP error status for a page.
type StatusError struct {
	StatusCode int
}

func (e StatusError) Error() string {
	text := http.StatusText(e.StatusCode)
	if text == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, text)
}

// ErrNavigationAborted is reported when a visit is cancelled before a
// response arrives.
var ErrNavigationAborted = errors.New("Navigation aborted")

// DescribeError renders a transport error in the message vocabulary the
// metrics classifier understands: timeouts mention "timeout", connection
// failures use net::ERR_* codes and TLS failures start with "SSL".
func DescribeError(err error, timeout time.Duration) string {
	if err == nil {
		return ""
	}

	detail := err.Error()
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		detail = urlErr.Err.Error()
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return fmt.Sprintf("timeout of %dms exceeded: %s", timeout.Milliseconds(), detail)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("%s: %s", ErrNavigationAborted, detail)
	}

	if msg := describeTLS(err); msg != "" {
		return msg
	}
	if code := netErrorCode(err); code != "" {
		return fmt.Sprintf("net::%s: %s", code, detail)
	}
	return detail
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func describeTLS(err error) string {
	var (
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
	)
	switch {
	case errors.As(err, &unknownAuth):
		return "SSL certificate error: " + unknownAuth.Error()
	case errors.As(err, &hostErr):
		return "SSL certificate error: " + hostErr.Error()
	case errors.As(err, &invalidErr):
		return "SSL certificate error: " + invalidErr.Error()
	case errors.As(err, &certErr):
		return "SSL certificate error: " + certErr.Error()
	case errors.As(err, &recordErr):
		return "SSL protocol error: " + recordErr.Error()
	case errors.As(err, &alertErr):
		return "SSL alert: " + alertErr.Error()
	}
	return ""
}

func netErrorCode(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "ERR_NAME_NOT_RESOLVED"
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ERR_CONNECTION_REFUSED"
	case errors.Is(err, syscall.ECONNRESET):
		return "ERR_CONNECTION_RESET"
	case errors.Is(err, syscall.ECONNABORTED):
		return "ERR_CONNECTION_ABORTED"
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return "ERR_ADDRESS_UNREACHABLE"
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "ERR_EMPTY_RESPONSE"
	}
	if strings.Contains(err.Error(), "stopped after") && strings.Contains(err.Error(), "redirects") {
		return "ERR_TOO_MANY_REDIRECTS"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "ERR_CONNECTION_FAILED"
	}
	return ""
}
