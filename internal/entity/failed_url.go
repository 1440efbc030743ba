package entity

import "time"

// FailedURL mirrors the `failed_urls` PostgreSQL table schema.
type FailedURL struct {
	ID                   int64
	URL                  string
	FailureKind          string
	FailureReason        string
	HTTPStatusCode       int
	AttemptsMade         int
	LastAttemptTimestamp time.Time
	RetryCount           int
	// NextRetryAt is nil for permanent failures, which are never re-queued.
	NextRetryAt *time.Time
}
