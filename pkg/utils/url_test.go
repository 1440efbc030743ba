package utils

import (
	"net/url"
	"testing"
)

func TestHashURL(t *testing.T) {
	t.Parallel()

	a := HashURL("https://example.com/a")
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a != HashURL("https://example.com/a") {
		t.Error("hash is not stable")
	}
	if a == HashURL("https://example.com/b") {
		t.Error("different URLs hashed to the same key")
	}
}

func TestToAbsoluteURL(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.com/foo/bar")
	if err != nil {
		t.Fatalf("parse base: %v", err)
	}

	tests := []struct {
		relative string
		want     string
	}{
		{"/about", "https://example.com/about"},
		{"contact", "https://example.com/foo/contact"},
		{"../home", "https://example.com/home"},
		{"https://other.com/x", "https://other.com/x"},
	}
	for _, tt := range tests {
		got, err := ToAbsoluteURL(base, tt.relative)
		if err != nil {
			t.Errorf("ToAbsoluteURL(%q) error: %v", tt.relative, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ToAbsoluteURL(%q) = %q, want %q", tt.relative, got, tt.want)
		}
	}
}
