package httpx

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/stretchr/testify/require"
)

func fastClient() *Client {
	c := New(2 * time.Second)
	c.Backoff = backoff.Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2}
	return c
}

func TestGetBody_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := fastClient().GetBody(t.Context(), srv.URL, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.EqualValues(t, 3, hits.Load())
}

func TestGetBody_GivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := fastClient().GetBody(t.Context(), srv.URL, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusBadGateway, se.Code)
	require.EqualValues(t, 3, hits.Load())
}

func TestGetBody_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := fastClient().GetBody(t.Context(), srv.URL, nil)
	require.Error(t, err)
	require.EqualValues(t, 1, hits.Load())
}

func TestGetBody_RetriesConnectionErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := fastClient().GetBody(t.Context(), url, nil)
	require.Error(t, err)
	require.True(t, retryable(nil, errors.Unwrap(err)))
}

func TestGetBody_SendsHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "finref/1.0", r.Header.Get("User-Agent"))
		require.Equal(t, "application/xml", r.Header.Get("Accept"))
		require.Equal(t, "bar", r.Header.Get("X-Foo"))
		_, _ = w.Write([]byte("<x/>"))
	}))
	defer srv.Close()

	c := fastClient()
	c.Headers = map[string]string{"X-Foo": "bar"}
	_, err := c.GetBody(t.Context(), srv.URL, http.Header{"Accept": []string{"application/xml"}})
	require.NoError(t, err)
}

func TestGetBody_StuckUpstreamBoundedByMaxElapsed(t *testing.T) {
	t.Parallel()

	// Arrange: an upstream that never answers, default one second backoff
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(300 * time.Millisecond)

	// Act
	start := time.Now()
	_, err := c.GetBody(t.Context(), srv.URL, nil)
	elapsed := time.Since(start)

	// Assert: the whole request, backoff included, stays near the budget
	require.Error(t, err)
	require.Less(t, elapsed, 900*time.Millisecond)
	require.Less(t, c.HTTP.Timeout, c.MaxElapsed)
}

func TestDo_BodyReadableWithinBudget(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)
	res, err := fastClient().Do(req)
	require.NoError(t, err)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	require.Equal(t, `{"ok":true}`, string(body))
}
