package identity

import (
	"testing"

	"github.com/user/fetch-service/internal/entity"
)

func TestRotator_ProxiesRoundRobin(t *testing.T) {
	t.Parallel()

	r := NewRotator(nil, []string{"http://p1:8000", "http://p2:8000"})
	want := []string{"http://p1:8000", "http://p2:8000", "http://p1:8000"}
	for i, w := range want {
		if got := r.Next(entity.Identity{}).ProxyURL; got != w {
			t.Errorf("call %d proxy = %q, want %q", i, got, w)
		}
	}
}

func TestRotator_NoProxies(t *testing.T) {
	t.Parallel()

	id := NewRotator(nil, nil).Next(entity.Identity{})
	if id.ProxyURL != "" {
		t.Errorf("expected direct connection, got %q", id.ProxyURL)
	}
	if id.UserAgent == "" {
		t.Error("expected a default user agent")
	}
}

func TestRotator_ChangesUserAgent(t *testing.T) {
	t.Parallel()

	r := NewRotator([]string{"ua-a", "ua-b"}, nil)
	r.pick = func(int) int { return 0 } // always "ua-a"

	if got := r.Next(entity.Identity{UserAgent: "ua-a"}).UserAgent; got != "ua-b" {
		t.Errorf("UserAgent = %q, want rotation away from ua-a", got)
	}
	if got := r.Next(entity.Identity{UserAgent: "ua-b"}).UserAgent; got != "ua-a" {
		t.Errorf("UserAgent = %q, want ua-a", got)
	}
}
