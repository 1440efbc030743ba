package breaker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/user/fetch-service/internal/repository"
)

// errServerFailure marks a 5xx that must count against the breaker while
// still reaching the fetch controller as a response.
var errServerFailure = errors.New("server failure")

// Settings tune every per-host breaker.
type Settings struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

func DefaultSettings() Settings {
	return Settings{MaxRequests: 2, Interval: 30 * time.Second, Timeout: 30 * time.Second, ConsecutiveFailures: 5}
}

// Transport wraps a PageTransport with one circuit breaker per host.
// An open circuit is reported as a connection error, so it is retried with backoff.
type Transport struct {
	next     repository.PageTransport
	settings Settings
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func New(next repository.PageTransport, settings Settings, logger *zap.Logger) *Transport {
	return &Transport{next: next, settings: settings, logger: logger, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

var _ repository.PageTransport = (*Transport)(nil)

func (t *Transport) Do(ctx context.Context, req *repository.TransportRequest) (*repository.TransportResponse, error) {
	cb := t.breakerFor(hostOf(req.URL))

	result, err := cb.Execute(func() (interface{}, error) {
		resp, err := t.next.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errServerFailure
		}
		return resp, nil
	})

	switch {
	case errors.Is(err, errServerFailure):
		return result.(*repository.TransportResponse), nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %v", repository.ErrConnection, err)
	case err != nil:
		return nil, err
	}
	return result.(*repository.TransportResponse), nil
}

// State reports the breaker state for host.
func (t *Transport) State(host string) gobreaker.State {
	return t.breakerFor(host).State()
}

func (t *Transport) breakerFor(host string) *gobreaker.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, ok := t.breakers[host]; ok {
		return cb
	}
	threshold := t.settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: t.settings.MaxRequests,
		Interval:    t.settings.Interval,
		Timeout:     t.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// Only upstream trouble trips the breaker.
			return err == nil || !(errors.Is(err, errServerFailure) ||
				errors.Is(err, repository.ErrConnection) || errors.Is(err, repository.ErrRequestTimeout))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn("circuit breaker state changed",
				zap.String("host", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	t.breakers[host] = cb
	return cb
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
