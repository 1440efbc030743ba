// Package robots caches robots.txt per host and answers whether a URL may be fetched.
package robots

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/user/fetch-service/internal/entity"
	"github.com/user/fetch-service/internal/repository"
)

const (
	DefaultTTL = time.Hour
	// unreachable robots.txt files are retried sooner
	failureTTL     = time.Minute
	requestTimeout = 10 * time.Second
	defaultAgent   = "*"
)

type entry struct {
	data    *robotstxt.RobotsData
	expires time.Time
}

// Cache fetches robots.txt through a PageTransport and keeps it per scheme and host.
type Cache struct {
	transport repository.PageTransport
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]entry
}

func NewCache(transport repository.PageTransport, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		transport: transport,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		entries:   make(map[string]entry),
	}
}

// Allowed reports whether userAgent may fetch rawURL. An empty agent is
// matched against the "*" group. Only cancellation of ctx yields an error.
func (c *Cache) Allowed(ctx context.Context, rawURL, userAgent string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parse %q: %w", rawURL, err)
	}
	if userAgent == "" {
		userAgent = defaultAgent
	}

	data, err := c.rulesFor(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return false, err
	}
	return data.TestAgent(u.RequestURI(), userAgent), nil
}

func (c *Cache) rulesFor(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	c.mu.Lock()
	e, ok := c.entries[origin]
	c.mu.Unlock()
	if ok && c.now().Before(e.expires) {
		return e.data, nil
	}

	v, err, _ := c.group.Do(origin, func() (interface{}, error) {
		data, ttl, err := c.load(ctx, origin)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[origin] = entry{data: data, expires: c.now().Add(ttl)}
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*robotstxt.RobotsData), nil
}

// load fetches and parses origin's robots.txt. Missing or unreadable files
// allow everything; 5xx answers disallow everything, as robotstxt decides.
func (c *Cache) load(ctx context.Context, origin string) (*robotstxt.RobotsData, time.Duration, error) {
	robotsURL := origin + "/robots.txt"
	resp, err := c.transport.Do(ctx, &repository.TransportRequest{
		URL:      robotsURL,
		Timeout:  requestTimeout,
		Identity: entity.Identity{},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		c.logger.Warn("Could not load robots.txt, proceeding without restrictions",
			zap.String("url", robotsURL), zap.Error(err))
		return allowAll(), failureTTL, nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		c.logger.Warn("Unusable robots.txt, proceeding without restrictions",
			zap.String("url", robotsURL), zap.Int("status", resp.StatusCode), zap.Error(err))
		return allowAll(), failureTTL, nil
	}
	c.logger.Debug("Loaded robots.txt", zap.String("url", robotsURL), zap.Int("status", resp.StatusCode))
	return data, c.ttl, nil
}

func allowAll() *robotstxt.RobotsData {
	data, _ := robotstxt.FromBytes(nil)
	return data
}
