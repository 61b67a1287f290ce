package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func robotsServer(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newChecker() *RobotsChecker {
	return NewRobotsChecker(&http.Client{Timeout: 5 * time.Second}, "RegulatoryMonitorBot/1.0")
}

func TestRobotsChecker_AllowAndDisallow(t *testing.T) {
	srv := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private/\n", nil)
	rc := newChecker()

	allowed, err := rc.IsAllowed(context.Background(), srv.URL+"/public/page")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = rc.IsAllowed(context.Background(), srv.URL+"/private/secret")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRobotsChecker_AgentSpecificGroup(t *testing.T) {
	body := "User-agent: RegulatoryMonitorBot\nDisallow: /\n\nUser-agent: *\nAllow: /\n"
	srv := robotsServer(t, http.StatusOK, body, nil)

	allowed, err := newChecker().IsAllowed(context.Background(), srv.URL+"/circulars")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRobotsChecker_MissingOrBrokenRobotsAllowsAll(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError} {
		srv := robotsServer(t, status, "User-agent: *\nDisallow: /\n", nil)

		allowed, err := newChecker().IsAllowed(context.Background(), srv.URL+"/anything")
		require.NoError(t, err)
		assert.True(t, allowed, "status %d", status)
	}
}

func TestRobotsChecker_UnreachableHostAllowsAll(t *testing.T) {
	srv := robotsServer(t, http.StatusOK, "", nil)
	url := srv.URL
	srv.Close()

	allowed, err := newChecker().IsAllowed(context.Background(), url+"/page")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRobotsChecker_CachesPerHost(t *testing.T) {
	var hits atomic.Int32
	srv := robotsServer(t, http.StatusOK, "User-agent: *\nAllow: /\n", &hits)
	rc := newChecker()

	for n := 0; n < 3; n++ {
		_, err := rc.IsAllowed(context.Background(), srv.URL+"/page")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestRobotsChecker_ConcurrentChecksShareOneDownload(t *testing.T) {
	var hits atomic.Int32
	srv := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private\n", &hits)
	rc := newChecker()

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := rc.IsAllowed(context.Background(), srv.URL+"/private/a")
			assert.NoError(t, err)
			assert.False(t, allowed)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
}

func TestRobotsChecker_SlowHostDoesNotBlockOtherHosts(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(slow.Close)
	fast := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private\n", nil)
	rc := newChecker()

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, _ = rc.IsAllowed(context.Background(), slow.URL+"/page")
	}()
	<-entered

	start := time.Now()
	allowed, err := rc.IsAllowed(context.Background(), fast.URL+"/private/x")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	<-slowDone
}

func TestRobotsChecker_InvalidURL(t *testing.T) {
	_, err := newChecker().IsAllowed(context.Background(), "/relative/only")
	assert.Error(t, err)
}
