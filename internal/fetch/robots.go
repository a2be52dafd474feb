package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// RobotsPolicy decides whether a URL may be fetched
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) (bool, error)
}

// RobotsCache fetches robots.txt once per scheme+host and answers from memory
type RobotsCache struct {
	client    *http.Client
	userAgent string
	mu        sync.RWMutex
	rules     map[string]*robotstxt.RobotsData
	group     singleflight.Group
}

// NewRobotsCache creates a robots policy checking rules for userAgent
func NewRobotsCache(client *http.Client, userAgent string) *RobotsCache {
	return &RobotsCache{
		client:    client,
		userAgent: userAgent,
		rules:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether rawURL is permitted. A robots.txt that cannot be
// fetched or parsed allows everything.
func (r *RobotsCache) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, err
	}

	data, err := r.rulesFor(ctx, u)
	if err != nil {
		return false, err
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, r.userAgent), nil
}

func (r *RobotsCache) rulesFor(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	key := u.Scheme + "://" + u.Host

	r.mu.RLock()
	data, ok := r.rules[key]
	r.mu.RUnlock()
	if ok {
		return data, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		data, err := r.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.rules[key] = data
		r.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*robotstxt.RobotsData), nil
}

// fetch only fails when ctx is done; every other problem degrades to allow-all
func (r *RobotsCache) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	robotsURL := origin + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating robots request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logrus.Warnf("robots.txt unavailable at %s, allowing all: %v", robotsURL, err)
		return allowAll(), nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		logrus.Warnf("robots.txt at %s unusable (status %d), allowing all: %v", robotsURL, resp.StatusCode, err)
		return allowAll(), nil
	}

	logrus.Debugf("Loaded robots.txt for %s (status %d)", origin, resp.StatusCode)
	return data, nil
}

func allowAll() *robotstxt.RobotsData {
	data, _ := robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)
	return data
}
