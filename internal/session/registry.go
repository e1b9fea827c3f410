// Package session tracks live MCP sessions across transports and expires
// idle ones.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownSession is returned for ids that are not (or no longer) registered.
var ErrUnknownSession = errors.New("unknown session")

// Kind is the transport a session was opened on.
type Kind string

const (
	Streamable  Kind = "streamable"
	EventStream Kind = "event-stream"
)

// Conn is the transport state bound to one session's dispatcher.
type Conn interface {
	http.Handler
	Close() error
}

// Session is one registered logical session.
type Session struct {
	ID        string
	Kind      Kind
	CreatedAt time.Time
	Conn      Conn
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithGauge publishes the active session count after every change.
// set is called with the registry lock held and must not call back into it.
func WithGauge(set func(int)) Option {
	return func(r *Registry) { r.gauge = set }
}

// Registry holds one table per transport kind. An id is never present in
// both tables.
type Registry struct {
	mu     sync.Mutex
	tables map[Kind]map[string]*Session
	now    func() time.Time
	gauge  func(int)
	newID  func() string
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tables: map[Kind]map[string]*Session{
			Streamable:  {},
			EventStream: {},
		},
		now:   time.Now,
		gauge: func(int) {},
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create mints an id, builds the connection with open and registers it.
// open runs without the registry lock held.
func (r *Registry) Create(kind Kind, open func(id string) (Conn, error)) (*Session, error) {
	if _, ok := r.tables[kind]; !ok {
		return nil, fmt.Errorf("session: unknown kind %q", kind)
	}
	id := r.newID()
	conn, err := open(id)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", kind, err)
	}
	s := &Session{ID: id, Kind: kind, CreatedAt: r.now(), Conn: conn}

	r.mu.Lock()
	r.tables[kind][id] = s
	r.gauge(r.countLocked())
	r.mu.Unlock()

	slog.Debug("session: created", slog.String("id", id), slog.String("kind", string(kind)))
	return s, nil
}

// Lookup returns the session registered under id in kind's table.
func (r *Registry) Lookup(kind Kind, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.tables[kind][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

// Delete removes id from whichever table holds it and closes its
// connection. Deleting an unknown id is a no-op.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	var s *Session
	for _, t := range r.tables {
		if found, ok := t[id]; ok {
			s = found
			delete(t, id)
			r.gauge(r.countLocked())
			break
		}
	}
	r.mu.Unlock()

	if s == nil {
		return false
	}
	if err := s.Conn.Close(); err != nil {
		slog.Debug("session: close failed", slog.String("id", id), slog.Any("error", err))
	}
	slog.Debug("session: deleted", slog.String("id", id), slog.String("kind", string(s.Kind)))
	return true
}

// Sweep deletes sessions whose age exceeds ttl and returns how many were
// removed. A session exactly ttl old survives until the next sweep.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	var expired []string
	for _, t := range r.tables {
		for id, s := range t {
			if s.CreatedAt.Before(cutoff) {
				expired = append(expired, id)
			}
		}
	}
	r.mu.Unlock()

	removed := 0
	for _, id := range expired {
		if r.Delete(id) {
			removed++
		}
	}
	if removed > 0 {
		slog.Info("session: swept expired", slog.Int("removed", removed), slog.Int("active", r.Active()))
	}
	return removed
}

// Active returns the number of live sessions across all kinds.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked()
}

func (r *Registry) countLocked() int {
	n := 0
	for _, t := range r.tables {
		n += len(t)
	}
	return n
}

// Run sweeps every interval until ctx is done, then closes every session.
func (r *Registry) Run(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			r.Sweep(ttl)
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	var ids []string
	for _, t := range r.tables {
		for id := range t {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Delete(id)
	}
}
