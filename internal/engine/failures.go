package engine

import (
	"sync"
	"time"
)

const failureErrMaxRunes = 500

// Failure is one resolution that exhausted every source, STT included.
type Failure struct {
	At       time.Time `json:"at"`
	URL      string    `json:"url"`
	Type     string    `json:"type,omitempty"`
	Language string    `json:"lang,omitempty"`
	Error    string    `json:"error"`
}

// FailureLog keeps the most recent failures in a fixed-size ring.
type FailureLog struct {
	mu    sync.Mutex
	buf   []Failure
	next  int
	full  bool
	total int64
}

// NewFailureLog creates a ring holding up to size entries (min 1).
func NewFailureLog(size int) *FailureLog {
	if size < 1 {
		size = 1
	}
	return &FailureLog{buf: make([]Failure, size)}
}

// Record appends f, overwriting the oldest entry when full.
func (l *FailureLog) Record(f Failure) {
	if f.At.IsZero() {
		f.At = time.Now()
	}
	f.Error = TruncateRunes(f.Error, failureErrMaxRunes, "...")

	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.next] = f
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
	l.total++
}

// Snapshot returns the retained failures, newest first.
func (l *FailureLog) Snapshot() []Failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.next
	if l.full {
		n = len(l.buf)
	}
	out := make([]Failure, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

// Total returns the number of failures ever recorded.
func (l *FailureLog) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
