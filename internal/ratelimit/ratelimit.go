// Package ratelimit provides process-wide request limiters that are passed
// explicitly into the fetch controller.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter blocks until a request may proceed or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// New builds a limiter by name. "none" returns nil.
func New(kind string, maxRequests int, window time.Duration) (Limiter, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "token_bucket", "sliding_window", "leaky_bucket":
		if maxRequests < 1 {
			return nil, fmt.Errorf("rate limiter %s: max requests must be at least 1, got %d", kind, maxRequests)
		}
		if window <= 0 {
			return nil, fmt.Errorf("rate limiter %s: window must be positive, got %v", kind, window)
		}
	}

	switch kind {
	case "token_bucket":
		return NewTokenBucket(maxRequests, window), nil
	case "sliding_window":
		return NewSlidingWindow(maxRequests, window), nil
	case "leaky_bucket":
		return NewLeakyBucket(float64(maxRequests) / window.Seconds()), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter %q", kind)
	}
}

// TokenBucket allows bursts of up to maxRequests while holding the average rate.
type TokenBucket struct {
	limiter *rate.Limiter
}

func NewTokenBucket(maxRequests int, window time.Duration) *TokenBucket {
	every := rate.Every(window / time.Duration(maxRequests))
	return &TokenBucket{limiter: rate.NewLimiter(every, maxRequests)}
}

func (t *TokenBucket) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// SlidingWindow admits at most maxRequests within any window-long interval.
type SlidingWindow struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	requests []time.Time // admission times, oldest first
}

func NewSlidingWindow(maxRequests int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{maxRequests: maxRequests, window: window, now: time.Now}
}

func (s *SlidingWindow) Wait(ctx context.Context) error {
	for {
		wait := s.reserve()
		if wait <= 0 {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// reserve admits the caller and returns 0, or returns how long to wait.
func (s *SlidingWindow) reserve() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.requests) && !s.requests[i].After(cutoff) {
		i++
	}
	s.requests = s.requests[i:]

	if len(s.requests) < s.maxRequests {
		s.requests = append(s.requests, now)
		return 0
	}
	return s.requests[0].Add(s.window).Sub(now)
}

// LeakyBucket spaces requests evenly at a constant rate.
type LeakyBucket struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	next time.Time // earliest admission time for the next caller
}

func NewLeakyBucket(perSecond float64) *LeakyBucket {
	return &LeakyBucket{interval: time.Duration(float64(time.Second) / perSecond), now: time.Now}
}

func (l *LeakyBucket) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	l.next = slot.Add(l.interval)
	l.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		// The slot stays consumed; spacing for later callers is preserved.
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
