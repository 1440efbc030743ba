package robots

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/fetch-service/internal/repository"
)

// robotsServer answers every request with the same scripted response.
type robotsServer struct {
	mu     sync.Mutex
	status int
	body   string
	err    error
	urls   []string
}

func (s *robotsServer) Do(ctx context.Context, req *repository.TransportRequest) (*repository.TransportResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, req.URL)
	if s.err != nil {
		return nil, s.err
	}
	return &repository.TransportResponse{StatusCode: s.status, Body: []byte(s.body)}, nil
}

func (s *robotsServer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

const rules = `User-agent: *
Disallow: /private/

User-agent: fetchbot
Disallow: /
Allow: /public/
`

func TestAllowed_Rules(t *testing.T) {
	t.Parallel()

	srv := &robotsServer{status: 200, body: rules}
	c := NewCache(srv, time.Hour, nil)
	ctx := context.Background()

	tests := []struct {
		url   string
		agent string
		want  bool
	}{
		{"https://example.com/", "", true},
		{"https://example.com/private/page?x=1", "", false},
		{"https://example.com/private/page", "SomeBrowser/1.0", false},
		{"https://example.com/public/page", "fetchbot", true},
		{"https://example.com/other", "fetchbot", false},
	}
	for _, tt := range tests {
		got, err := c.Allowed(ctx, tt.url, tt.agent)
		if err != nil {
			t.Fatalf("Allowed(%s): %v", tt.url, err)
		}
		if got != tt.want {
			t.Errorf("Allowed(%s, %q) = %v, want %v", tt.url, tt.agent, got, tt.want)
		}
	}
	if srv.calls() != 1 || srv.urls[0] != "https://example.com/robots.txt" {
		t.Errorf("robots.txt requests = %v, want one for the origin", srv.urls)
	}
}

func TestAllowed_CachePerOriginAndExpiry(t *testing.T) {
	t.Parallel()

	srv := &robotsServer{status: 200, body: rules}
	c := NewCache(srv, time.Minute, nil)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = c.Allowed(ctx, "https://a.test/x", "")
	_, _ = c.Allowed(ctx, "https://a.test/y", "")
	_, _ = c.Allowed(ctx, "https://b.test/x", "")
	_, _ = c.Allowed(ctx, "http://a.test/x", "")
	if srv.calls() != 3 {
		t.Fatalf("requests = %v, want one per scheme and host", srv.urls)
	}

	now = now.Add(2 * time.Minute)
	_, _ = c.Allowed(ctx, "https://a.test/x", "")
	if srv.calls() != 4 {
		t.Errorf("expired entry not refreshed, requests = %d", srv.calls())
	}
}

func TestAllowed_StatusHandling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"missing", 404, true},
		{"forbidden", 403, true},
		{"server error", 503, false},
		{"redirect", 301, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewCache(&robotsServer{status: tt.status}, 0, nil)
			got, err := c.Allowed(context.Background(), "https://example.com/page", "")
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("status %d: allowed = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestAllowed_TransportFailureAllows(t *testing.T) {
	t.Parallel()

	srv := &robotsServer{err: repository.ErrConnection}
	c := NewCache(srv, time.Hour, nil)
	now := time.Now()
	c.now = func() time.Time { return now }

	got, err := c.Allowed(context.Background(), "https://down.test/page", "")
	if err != nil || !got {
		t.Fatalf("Allowed = %v, %v; want true, nil", got, err)
	}

	// failures are cached briefly, not for the full TTL
	now = now.Add(failureTTL + time.Second)
	_, _ = c.Allowed(context.Background(), "https://down.test/page", "")
	if srv.calls() != 2 {
		t.Errorf("requests = %d, want a retry after the failure TTL", srv.calls())
	}
}

func TestAllowed_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCache(&robotsServer{err: context.Canceled}, time.Hour, nil)
	if _, err := c.Allowed(ctx, "https://example.com/", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
