package httpclient

import (
	"io"
)

// MaxPageBytes bounds how much of a response body a visit reads.
const MaxPageBytes = 1 << 20

// DrainBody reads and discards at most limit bytes from body and closes it.
// Partially read bodies prevent connection reuse, so callers should always
// drain before returning.
func DrainBody(body io.ReadCloser, limit int64) (int64, error) {
	if body == nil {
		return 0, nil
	}
	defer body.Close()
	if limit <= 0 {
		limit = MaxPageBytes
	}
	return io.Copy(io.Discard, io.LimitReader(body, limit))
}

// LimitBody wraps body so at most limit bytes can be read while Close still
// releases the underlying stream.
func LimitBody(body io.ReadCloser, limit int64) io.ReadCloser {
	if limit <= 0 {
		limit = MaxPageBytes
	}
	return &limitedBody{Reader: io.LimitReader(body, limit), closer: body}
}

type limitedBody struct {
	io.Reader
	closer io.Closer
}

func (l *limitedBody) Close() error {
	return l.closer.Close()
}
