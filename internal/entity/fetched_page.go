package entity

import "time"

// FetchedPage mirrors the `fetched_pages` PostgreSQL table schema.
type FetchedPage struct {
	ID             int64
	URL            string
	FinalURL       string
	HTTPStatusCode int
	NotModified    bool
	ContentType    string
	ContentHash    string
	Body           []byte
	AttemptsMade   int
	RedirectCount  int
	ResponseTimeMS int
	FetchTimestamp time.Time
}
