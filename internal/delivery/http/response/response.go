package response

import "time"

type SubmitFetchResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	FetchRequestID string `json:"fetch_request_id"`
}

// FetchStatusResponse is a DTO for fetch status, mirroring entity.FetchStatus
type FetchStatusResponse struct {
	URL                string     `json:"url"`
	CurrentStatus      string     `json:"current_status"` // "pending", "completed", "failed"
	LastFetchTimestamp *time.Time `json:"last_fetch_timestamp,omitempty"`
	NextRetryAt        *time.Time `json:"next_retry_at,omitempty"`
	FailureReason      string     `json:"failure_reason,omitempty"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
