// Package pool keeps idle synthetic-user sessions for reuse across visits.
package pool

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Poolable is anything the pool can hold and eventually release.
type Poolable interface {
	Close() error
}

// SessionPool manages idle sessions keyed by origin and request identity.
type SessionPool struct {
	mu     sync.RWMutex
	pools  map[string]chan Poolable
	size   int // max idle sessions per key
	closed bool
}

// NewSessionPool creates a pool holding at most size idle sessions per key.
func NewSessionPool(size int) *SessionPool {
	if size <= 0 {
		size = 10
	}
	return &SessionPool{
		pools: make(map[string]chan Poolable),
		size:  size,
	}
}

func (p *SessionPool) bucket(key string) chan Poolable {
	p.mu.RLock()
	ch, ok := p.pools[key]
	p.mu.RUnlock()
	if ok {
		return ch
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok = p.pools[key]; !ok {
		ch = make(chan Poolable, p.size)
		p.pools[key] = ch
	}
	return ch
}

// Get returns an idle session for key, or a new one from factory. reused
// reports whether the session came from the pool.
func (p *SessionPool) Get(key string, factory func() (Poolable, error)) (session Poolable, reused bool, err error) {
	ch := p.bucket(key)
	select {
	case session = <-ch:
		return session, true, nil
	default:
	}
	session, err = factory()
	if err != nil {
		return nil, false, err
	}
	return session, false, nil
}

// Put returns a session for reuse. When the pool is full or closed the
// session is closed instead.
func (p *SessionPool) Put(key string, session Poolable) error {
	if session == nil {
		return nil
	}
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return session.Close()
	}
	ch, ok := p.pools[key]
	if ok {
		select {
		case ch <- session:
			p.mu.RUnlock()
			return nil
		default:
		}
	}
	p.mu.RUnlock()
	return session.Close()
}

// Idle reports how many sessions are waiting under key.
func (p *SessionPool) Idle(key string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pools[key])
}

// Close releases every idle session. Sessions returned afterwards are closed
// immediately.
func (p *SessionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []string
	for key, ch := range p.pools {
		close(ch)
		for session := range ch {
			if err := session.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		delete(p.pools, key)
	}

	if len(errs) > 0 {
		return fmt.Errorf("pool close errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MakePoolKey generates a deterministic key from an origin and headers.
func MakePoolKey(origin string, headers http.Header) string {
	var sb strings.Builder
	sb.WriteString(origin)
	sb.WriteString("|")

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(strings.Join(headers[k], ","))
		sb.WriteString(";")
	}
	return sb.String()
}
