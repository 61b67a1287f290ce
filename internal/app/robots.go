package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

const maxRobotsBodyBytes = 512 * 1024

// RobotsChecker fetches robots.txt once per host and answers whether the
// configured user agent may request a URL. A missing, unreachable or
// unparsable robots.txt allows everything.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	mu        sync.RWMutex
	groups    map[string]*robotstxt.Group // nil entry = allow all
	fetches   singleflight.Group
}

func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		groups:    make(map[string]*robotstxt.Group),
	}
}

func (rc *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("robots: parse url: %w", err)
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return false, fmt.Errorf("robots: empty host in url %q", rawURL)
	}

	group, ok := rc.cached(host)
	if !ok {
		// Concurrent checks for one host share a single download; other
		// hosts are not held up by it.
		v, _, _ := rc.fetches.Do(host, func() (any, error) {
			if g, ok := rc.cached(host); ok {
				return g, nil
			}
			g := rc.fetchGroup(ctx, u.Scheme, host)
			rc.mu.Lock()
			rc.groups[host] = g
			rc.mu.Unlock()
			return g, nil
		})
		group, _ = v.(*robotstxt.Group)
	}

	if group == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path), nil
}

func (rc *RobotsChecker) cached(host string) (*robotstxt.Group, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	group, ok := rc.groups[host]
	return group, ok
}

func (rc *RobotsChecker) fetchGroup(ctx context.Context, scheme, host string) *robotstxt.Group {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data.FindGroup(rc.userAgent)
}
