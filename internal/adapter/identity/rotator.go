package identity

import (
	"math/rand/v2"
	"sync"

	"github.com/user/fetch-service/internal/entity"
)

// DefaultUserAgents is used when no user agents are configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// Rotator hands out request identities: a random user agent and the next proxy in order.
type Rotator struct {
	proxies    []string
	userAgents []string
	pick       func(n int) int

	mu         sync.Mutex
	proxyIndex int
}

func NewRotator(userAgents, proxies []string) *Rotator {
	if len(userAgents) == 0 {
		userAgents = DefaultUserAgents
	}
	return &Rotator{proxies: proxies, userAgents: userAgents, pick: rand.IntN}
}

// Next returns a fresh identity. A different user agent than previous is
// preferred when more than one is configured.
func (r *Rotator) Next(previous entity.Identity) entity.Identity {
	return entity.Identity{UserAgent: r.userAgent(previous.UserAgent), ProxyURL: r.proxy()}
}

func (r *Rotator) proxy() string {
	if len(r.proxies) == 0 {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.proxies[r.proxyIndex]
	r.proxyIndex = (r.proxyIndex + 1) % len(r.proxies)
	return p
}

func (r *Rotator) userAgent(previous string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ua := r.userAgents[r.pick(len(r.userAgents))]
	if ua == previous && len(r.userAgents) > 1 {
		for _, candidate := range r.userAgents {
			if candidate != previous {
				return candidate
			}
		}
	}
	return ua
}
