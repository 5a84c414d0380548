package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, opts Options) *Client {
	t.Helper()
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func TestFetchUntilSuccess_RetriesUnavailable(t *testing.T) {
	var (
		mu    sync.Mutex
		times []time.Time
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		n := len(times)
		mu.Unlock()
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":"ok"}`))
	}))
	defer server.Close()

	c := newClient(t, DefaultOptions())
	body, err := c.FetchUntilSuccess(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, `{"data":"ok"}`, string(body))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, times, 3)
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), time.Second)
}

func TestFetchOnce_HeadersAndCookies(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "*/*", r.Header.Get("Accept"))
		assert.Equal(t, "ru", r.Header.Get("Site-Id"))
		if n == 1 {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			return
		}
		cookie, err := r.Cookie("session")
		if assert.NoError(t, err) {
			assert.Equal(t, "abc", cookie.Value)
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	c := newClient(t, Options{Headers: map[string]string{"Site-Id": "ru"}})

	resp, err := c.FetchOnce(context.Background(), server.URL+"/a")
	require.NoError(t, err)
	assert.True(t, resp.OK())

	resp, err = c.FetchOnce(context.Background(), server.URL+"/b")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.False(t, resp.OK())
}

func TestFetchUntilSuccess_TransportErrorNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	c := newClient(t, DefaultOptions())
	slept := false
	c.sleep = func(context.Context, time.Duration) error {
		slept = true
		return nil
	}

	_, err := c.FetchUntilSuccess(context.Background(), url)
	require.Error(t, err)
	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
	assert.False(t, slept)
}

func TestFetchUntilSuccess_LimitedPolicyGivesUp(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newClient(t, Options{Retry: Limited{MaxAttempts: 3, Initial: time.Millisecond}})

	_, err := c.FetchUntilSuccess(context.Background(), server.URL)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
	assert.Equal(t, 3, serr.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchUntilSuccess_ContextCancelledDuringWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newClient(t, Options{Retry: Forever(time.Hour)})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchUntilSuccess(ctx, server.URL)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFetch_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newClient(t, DefaultOptions())
	_, err := c.Fetch(context.Background(), server.URL)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.Contains(t, err.Error(), "404")
}

func TestLimited_Backoff(t *testing.T) {
	p := Limited{MaxAttempts: 5, Initial: time.Second, Max: 3 * time.Second, Multiplier: 2}

	d, ok := p.Next(1)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)

	d, ok = p.Next(2)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	d, ok = p.Next(3)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	_, ok = p.Next(5)
	assert.False(t, ok)
}

func TestPolicyFor(t *testing.T) {
	d, ok := PolicyFor(0, time.Second).Next(1000)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)

	_, ok = PolicyFor(2, time.Second).Next(2)
	assert.False(t, ok)
}
