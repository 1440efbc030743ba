package entity

import "time"

type FetchStatus struct {
	URL                string
	CurrentStatus      string // "pending", "completed", "failed", "not_found"
	LastFetchTimestamp *time.Time
	NextRetryAt        *time.Time
	FailureReason      string
}
