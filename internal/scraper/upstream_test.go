package scraper_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"ranobepub/internal/fetcher"
	"ranobepub/internal/scraper"
)

// fakeUpstream emulates the three upstream endpoints with a gin router.
type fakeUpstream struct {
	t *testing.T

	work     string
	list     string
	chapters map[string]string        // "volume/number" -> raw chapter body
	delays   map[string]time.Duration // per chapter
	failures map[string]int           // 503s to send before answering

	mu       sync.Mutex
	requests map[string]int
	inFlight int32
	maxSeen  int32
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	return &fakeUpstream{
		t:        t,
		chapters: map[string]string{},
		delays:   map[string]time.Duration{},
		failures: map[string]int{},
		requests: map[string]int{},
	}
}

func (f *fakeUpstream) start() (*httptest.Server, *scraper.API) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.GET("/api/manga/:slug", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(f.work))
	})
	r.GET("/api/manga/:slug/chapters", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(f.list))
	})
	r.GET("/api/manga/:slug/chapter", func(c *gin.Context) {
		key := c.Query("volume") + "/" + c.Query("number")

		n := atomic.AddInt32(&f.inFlight, 1)
		defer atomic.AddInt32(&f.inFlight, -1)
		for {
			seen := atomic.LoadInt32(&f.maxSeen)
			if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
				break
			}
		}

		f.mu.Lock()
		f.requests[key]++
		attempt := f.requests[key]
		f.mu.Unlock()

		if d := f.delays[key]; d > 0 {
			time.Sleep(d)
		}
		if attempt <= f.failures[key] {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		body, ok := f.chapters[key]
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		c.Data(http.StatusOK, "application/json", []byte(body))
	})

	server := httptest.NewServer(r)
	f.t.Cleanup(server.Close)

	client, err := fetcher.New(fetcher.Options{Retry: fetcher.Forever(10 * time.Millisecond)})
	require.NoError(f.t, err)
	return server, scraper.NewAPI(server.URL+"/api/manga", client)
}

func (f *fakeUpstream) requestCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[key]
}
