package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind    string
		wantNil bool
		wantErr bool
	}{
		{"none", true, false},
		{"", true, false},
		{"token_bucket", false, false},
		{"sliding_window", false, false},
		{"leaky_bucket", false, false},
		{"fixed_window", true, true},
	}
	for _, tt := range tests {
		l, err := New(tt.kind, 10, time.Second)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
		}
		if (l == nil) != tt.wantNil {
			t.Errorf("New(%q) nil = %v, want %v", tt.kind, l == nil, tt.wantNil)
		}
	}
}

func TestNew_RejectsEmptyBudget(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{"token_bucket", "sliding_window", "leaky_bucket"} {
		for _, tc := range []struct {
			maxRequests int
			window      time.Duration
		}{
			{0, time.Second},
			{-3, time.Second},
			{10, 0},
			{10, -time.Second},
		} {
			l, err := New(kind, tc.maxRequests, tc.window)
			if err == nil || l != nil {
				t.Errorf("New(%q, %d, %v) = %v, %v; want error", kind, tc.maxRequests, tc.window, l, err)
			}
		}
	}

	// "none" ignores the budget entirely.
	if l, err := New("none", 0, 0); err != nil || l != nil {
		t.Errorf("New(none, 0, 0) = %v, %v", l, err)
	}
}

func TestTokenBucket_Burst(t *testing.T) {
	t.Parallel()

	tb := NewTokenBucket(5, time.Hour)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := tb.Wait(ctx); err != nil {
			t.Fatalf("burst request %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx); err == nil {
		t.Error("expected the sixth request to be refused within the deadline")
	}
}

func TestSlidingWindow_Reserve(t *testing.T) {
	t.Parallel()

	clock := time.Unix(1000, 0)
	sw := NewSlidingWindow(2, time.Second)
	sw.now = func() time.Time { return clock }

	if d := sw.reserve(); d != 0 {
		t.Fatalf("first reserve wait = %v", d)
	}
	clock = clock.Add(200 * time.Millisecond)
	if d := sw.reserve(); d != 0 {
		t.Fatalf("second reserve wait = %v", d)
	}
	clock = clock.Add(300 * time.Millisecond)
	if d := sw.reserve(); d != 500*time.Millisecond {
		t.Errorf("third reserve wait = %v, want 500ms", d)
	}
	clock = clock.Add(500 * time.Millisecond)
	if d := sw.reserve(); d != 0 {
		t.Errorf("reserve after oldest expired wait = %v, want 0", d)
	}
}

func TestSlidingWindow_WaitCanceled(t *testing.T) {
	t.Parallel()

	sw := NewSlidingWindow(1, time.Hour)
	if err := sw.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sw.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLeakyBucket_Spacing(t *testing.T) {
	t.Parallel()

	lb := NewLeakyBucket(50) // 20ms spacing
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := lb.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("4 requests at 50/s took %v, want >= 60ms", elapsed)
	}
}
