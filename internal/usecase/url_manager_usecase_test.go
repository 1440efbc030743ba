package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/fetch-service/internal/entity"
	"github.com/user/fetch-service/pkg/utils"
)

func TestSubmit_QueuesAndDeduplicates(t *testing.T) {
	visited, queue := newMemVisited(), &memQueue{}
	m := NewURLManager(visited, queue, newMemPages(), newMemFailed(), time.Hour, nil)
	ctx := context.Background()

	id, err := m.Submit(ctx, "https://example.com/a", false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != utils.HashURL("https://example.com/a") {
		t.Errorf("id = %q", id)
	}
	if visited.urls["https://example.com/a"] != time.Hour {
		t.Errorf("dedup TTL = %v, want 1h", visited.urls["https://example.com/a"])
	}

	_, err = m.Submit(ctx, "https://example.com/a", false)
	if !errors.Is(err, ErrURLRecentlySubmitted) {
		t.Fatalf("second Submit err = %v, want ErrURLRecentlySubmitted", err)
	}
	if n, _ := queue.Size(ctx); n != 1 {
		t.Errorf("queue size = %d, want 1", n)
	}

	if _, err := m.Submit(ctx, "https://example.com/a", true); err != nil {
		t.Fatalf("forced Submit: %v", err)
	}
	if n, _ := queue.Size(ctx); n != 2 {
		t.Errorf("queue size after force = %d, want 2", n)
	}
}

func TestSubmit_DefaultTTL(t *testing.T) {
	visited := newMemVisited()
	m := NewURLManager(visited, &memQueue{}, newMemPages(), newMemFailed(), 0, nil)
	if _, err := m.Submit(context.Background(), "https://example.com", false); err != nil {
		t.Fatal(err)
	}
	if got := visited.urls["https://example.com"]; got != DefaultDeduplicationTTL {
		t.Errorf("TTL = %v, want %v", got, DefaultDeduplicationTTL)
	}
}

func TestSubmit_VisitedLookupError(t *testing.T) {
	visited := newMemVisited()
	visited.err = errors.New("redis down")
	queue := &memQueue{}
	m := NewURLManager(visited, queue, newMemPages(), newMemFailed(), 0, nil)
	if _, err := m.Submit(context.Background(), "https://example.com", false); err == nil {
		t.Fatal("expected error")
	}
	if len(queue.items) != 0 {
		t.Error("URL queued despite lookup failure")
	}
}

func TestGetStatus(t *testing.T) {
	ctx := context.Background()
	visited, pages, failed := newMemVisited(), newMemPages(), newMemFailed()
	m := NewURLManager(visited, &memQueue{}, pages, failed, 0, nil)

	fetchedAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	_ = pages.Save(ctx, &entity.FetchedPage{URL: "https://done.test", FetchTimestamp: fetchedAt})
	next := fetchedAt.Add(time.Minute)
	_ = failed.SaveOrUpdate(ctx, &entity.FailedURL{URL: "https://failed.test", FailureReason: "boom", NextRetryAt: &next})
	_ = visited.MarkVisited(ctx, "https://pending.test", time.Hour)
	// a completed page wins over a stale visited key
	_ = visited.MarkVisited(ctx, "https://done.test", time.Hour)

	tests := []struct {
		url    string
		status string
	}{
		{"https://done.test", StatusCompleted},
		{"https://failed.test", StatusFailed},
		{"https://pending.test", StatusPending},
		{"https://unknown.test", StatusNotFound},
	}
	for _, tt := range tests {
		st, err := m.GetStatus(ctx, tt.url)
		if err != nil {
			t.Fatalf("GetStatus(%s): %v", tt.url, err)
		}
		if st.CurrentStatus != tt.status {
			t.Errorf("GetStatus(%s) = %s, want %s", tt.url, st.CurrentStatus, tt.status)
		}
	}

	st, _ := m.GetStatus(ctx, "https://failed.test")
	if st.FailureReason != "boom" || st.NextRetryAt == nil || !st.NextRetryAt.Equal(next) {
		t.Errorf("failed status = %+v", st)
	}
	st, _ = m.GetStatus(ctx, "https://done.test")
	if st.LastFetchTimestamp == nil || !st.LastFetchTimestamp.Equal(fetchedAt) {
		t.Errorf("completed timestamp = %v", st.LastFetchTimestamp)
	}
}

func TestGetStatus_NewestOutcomeWins(t *testing.T) {
	ctx := context.Background()
	pages, failed := newMemPages(), newMemFailed()
	m := NewURLManager(newMemVisited(), &memQueue{}, pages, failed, 0, nil)

	earlier := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	// fetched once, then a forced re-fetch failed
	_ = pages.Save(ctx, &entity.FetchedPage{URL: "https://refetch.test", FetchTimestamp: earlier})
	_ = failed.SaveOrUpdate(ctx, &entity.FailedURL{URL: "https://refetch.test", FailureReason: "503", LastAttemptTimestamp: later})

	// failed first, then succeeded while the failure row lingered
	_ = failed.SaveOrUpdate(ctx, &entity.FailedURL{URL: "https://recovered.test", LastAttemptTimestamp: earlier})
	_ = pages.Save(ctx, &entity.FetchedPage{URL: "https://recovered.test", FetchTimestamp: later})

	st, err := m.GetStatus(ctx, "https://refetch.test")
	if err != nil {
		t.Fatal(err)
	}
	if st.CurrentStatus != StatusFailed || st.FailureReason != "503" || !st.LastFetchTimestamp.Equal(later) {
		t.Errorf("refetch status = %+v, want failed at %v", st, later)
	}

	st, err = m.GetStatus(ctx, "https://recovered.test")
	if err != nil {
		t.Fatal(err)
	}
	if st.CurrentStatus != StatusCompleted || !st.LastFetchTimestamp.Equal(later) {
		t.Errorf("recovered status = %+v, want completed at %v", st, later)
	}
}
