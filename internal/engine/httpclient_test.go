package engine

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClientStopsRedirectLoops(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/again", http.StatusFound)
	}))
	defer ts.Close()

	c := NewHTTPClient(5 * time.Second)
	_, err := c.Get(ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped after 10 redirects")
	assert.EqualValues(t, maxRedirects, hits.Load())
}

func TestNewHTTPClientTimeout(t *testing.T) {
	c := NewHTTPClient(42 * time.Second)
	assert.Equal(t, 42*time.Second, c.Timeout)
	assert.NotNil(t, c.Transport)
}
