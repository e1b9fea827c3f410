package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"regexp"
	"time"
)

// RetryConfig is an exponential backoff policy. MaxRetries counts the
// attempts after the first one.
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

var (
	// DefaultRetryConfig covers short HTTP calls such as the player API.
	DefaultRetryConfig = RetryConfig{
		MaxRetries:  3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
	}

	// STTRetryConfig retries speech-to-text submissions. Transcription is
	// expensive upstream, so fewer attempts with longer waits.
	STTRetryConfig = RetryConfig{
		MaxRetries:  2,
		InitialWait: 2 * time.Second,
		MaxWait:     15 * time.Second,
		Multiplier:  3.0,
	}

	// ExtractRetryConfig retries yt-dlp runs that YouTube throttled.
	ExtractRetryConfig = RetryConfig{
		MaxRetries:  2,
		InitialWait: 3 * time.Second,
		MaxWait:     20 * time.Second,
		Multiplier:  3.0,
	}
)

// backoff returns the wait after the given failed attempt (0-based).
func (rc RetryConfig) backoff(attempt int) time.Duration {
	mult := rc.Multiplier
	if mult < 1 {
		mult = 1
	}
	wait := time.Duration(float64(rc.InitialWait) * math.Pow(mult, float64(attempt)))
	if rc.MaxWait > 0 && wait > rc.MaxWait {
		wait = rc.MaxWait
	}
	return wait
}

// RetryDo calls fn until it succeeds, fails with a permanent error, or the
// retry budget is spent. The last error is returned as is.
func RetryDo[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if attempt >= rc.MaxRetries || !isRetryable(err) {
			return zero, err
		}

		wait := rc.backoff(attempt)
		slog.Debug("retry: transient failure",
			slog.Int("attempt", attempt+1), slog.Duration("wait", wait), slog.Any("error", err))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}
}

// RetryHTTP sends the request built by fn, retrying transport failures and
// throttling or server statuses. Any other status is handed back to the
// caller with its body open.
func RetryHTTP(ctx context.Context, rc RetryConfig, fn func() (*http.Response, error)) (*http.Response, error) {
	return RetryDo(ctx, rc, func() (*http.Response, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if retryableStatus(resp.StatusCode) {
			resp.Body.Close()
			return nil, &statusError{code: resp.StatusCode}
		}
		return resp, nil
	})
}

// statusError is a response whose status is worth another attempt.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, http.StatusText(e.code))
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// throttledStderrRe matches yt-dlp diagnostics for failures that clear up
// on their own: rate limiting, upstream 5xx and dropped connections.
var throttledStderrRe = regexp.MustCompile(`(?i)HTTP Error (429|5\d\d)|too many requests|timed out|connection reset|temporary failure in name resolution`)

// isRetryable classifies err. Cancellation and deadlines are final; the
// caller's context decides those.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return true
	}

	var ce *CommandError
	if errors.As(err, &ce) {
		return throttledStderrRe.MatchString(ce.Stderr)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
