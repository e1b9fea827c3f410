package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	closed atomic.Int32
}

func (c *fakeConn) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (c *fakeConn) Close() error {
	c.closed.Add(1)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openFake(conns *[]*fakeConn) func(string) (Conn, error) {
	return func(string) (Conn, error) {
		c := &fakeConn{}
		*conns = append(*conns, c)
		return c, nil
	}
}

func TestCreateLookupDelete(t *testing.T) {
	r := NewRegistry()
	var conns []*fakeConn

	s, err := r.Create(Streamable, openFake(&conns))
	require.NoError(t, err)
	assert.Len(t, s.ID, 36)

	got, err := r.Lookup(Streamable, s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = r.Lookup(EventStream, s.ID)
	assert.ErrorIs(t, err, ErrUnknownSession, "ids are per-table")

	assert.True(t, r.Delete(s.ID))
	assert.False(t, r.Delete(s.ID), "delete is idempotent")
	assert.EqualValues(t, 1, conns[0].closed.Load())

	_, err = r.Lookup(Streamable, s.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestCreateOpenFailure(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(EventStream, func(string) (Conn, error) { return nil, errors.New("boom") })
	assert.Error(t, err)
	assert.Zero(t, r.Active())
}

func TestCreatePassesIDToOpen(t *testing.T) {
	r := NewRegistry()
	var seen string
	s, err := r.Create(EventStream, func(id string) (Conn, error) {
		seen = id
		return &fakeConn{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, s.ID, seen)
}

func TestSweepRemovesAgedSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var gauge atomic.Int64
	r := NewRegistry(WithClock(clock.Now), WithGauge(func(n int) { gauge.Store(int64(n)) }))
	var conns []*fakeConn

	const n = 5
	for i := 0; i < n; i++ {
		kind := Streamable
		if i%2 == 1 {
			kind = EventStream
		}
		_, err := r.Create(kind, openFake(&conns))
		require.NoError(t, err)
	}
	assert.EqualValues(t, n, gauge.Load())

	clock.Advance(2 * time.Hour)
	removed := r.Sweep(time.Hour)

	assert.Equal(t, n, removed)
	assert.Zero(t, r.Active())
	assert.Zero(t, gauge.Load())
	for _, c := range conns {
		assert.EqualValues(t, 1, c.closed.Load())
	}
}

func TestSweepKeepsYoungSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRegistry(WithClock(clock.Now))
	var conns []*fakeConn

	old, err := r.Create(Streamable, openFake(&conns))
	require.NoError(t, err)
	clock.Advance(50 * time.Minute)
	young, err := r.Create(EventStream, openFake(&conns))
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)

	assert.Equal(t, 1, r.Sweep(time.Hour))
	_, err = r.Lookup(Streamable, old.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)
	_, err = r.Lookup(EventStream, young.ID)
	assert.NoError(t, err)
}

func TestSweepBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRegistry(WithClock(clock.Now))
	var conns []*fakeConn

	s, err := r.Create(Streamable, openFake(&conns))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	assert.Zero(t, r.Sweep(time.Hour), "age equal to ttl is not expired")
	_, err = r.Lookup(Streamable, s.ID)
	require.NoError(t, err)

	clock.Advance(time.Nanosecond)
	assert.Equal(t, 1, r.Sweep(time.Hour))
	_, err = r.Lookup(Streamable, s.ID)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestConcurrentCreateDelete(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.Create(Streamable, func(string) (Conn, error) { return &fakeConn{}, nil })
			if assert.NoError(t, err) {
				r.Delete(s.ID)
				r.Delete(s.ID)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, r.Active())
}

func TestRunClosesAllOnShutdown(t *testing.T) {
	r := NewRegistry()
	var conns []*fakeConn
	for i := 0; i < 3; i++ {
		_, err := r.Create(Streamable, openFake(&conns))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Hour, time.Hour)
		close(done)
	}()
	cancel()
	<-done

	assert.Zero(t, r.Active())
	for _, c := range conns {
		assert.EqualValues(t, 1, c.closed.Load())
	}
}
