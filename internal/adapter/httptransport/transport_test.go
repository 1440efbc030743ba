package httptransport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/fetch-service/internal/entity"
	"github.com/user/fetch-service/internal/repository"
)

func TestDo_DoesNotFollowRedirects(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	resp, err := New(0).Do(context.Background(), &repository.TransportRequest{URL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/elsewhere" {
		t.Errorf("Location = %q", loc)
	}
}

func TestDo_SendsIdentityAndValidators(t *testing.T) {
	t.Parallel()

	var gotUA, gotINM, gotIMS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotINM = r.Header.Get("If-None-Match")
		gotIMS = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	req := &repository.TransportRequest{
		URL:        srv.URL,
		Timeout:    time.Second,
		Identity:   entity.Identity{UserAgent: "fetcher-test/1.0"},
		Validators: entity.Validators{ETag: `"v2"`, LastModified: "Mon, 02 Jan 2006 15:04:05 GMT"},
	}
	resp, err := New(0).Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("status = %d, want 304", resp.StatusCode)
	}
	if gotUA != "fetcher-test/1.0" || gotINM != `"v2"` || gotIMS == "" {
		t.Errorf("headers not sent: ua=%q inm=%q ims=%q", gotUA, gotINM, gotIMS)
	}
}

func TestDo_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(0).Do(context.Background(), &repository.TransportRequest{URL: srv.URL, Timeout: 20 * time.Millisecond})
	if !errors.Is(err, repository.ErrRequestTimeout) {
		t.Fatalf("expected ErrRequestTimeout, got %v", err)
	}
}

func TestDo_ConnectionRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = New(0).Do(context.Background(), &repository.TransportRequest{URL: "http://" + addr, Timeout: time.Second})
	if !errors.Is(err, repository.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestDo_BodyLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := New(16).Do(context.Background(), &repository.TransportRequest{URL: srv.URL, Timeout: time.Second})
	if err == nil {
		t.Fatal("expected body limit error")
	}
	if errors.Is(err, repository.ErrConnection) || errors.Is(err, repository.ErrRequestTimeout) {
		t.Errorf("body limit must not be retryable, got %v", err)
	}
}

func TestDo_InvalidProxy(t *testing.T) {
	t.Parallel()

	req := &repository.TransportRequest{URL: "http://example.com", Identity: entity.Identity{ProxyURL: "://bad"}}
	if _, err := New(0).Do(context.Background(), req); err == nil {
		t.Fatal("expected invalid proxy error")
	}
}
