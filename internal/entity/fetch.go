package entity

import (
	"net/http"
	"time"
)

// Outcome classifies a single HTTP attempt.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeRetryableError   Outcome = "retryable_error"
	OutcomePermanentError   Outcome = "permanent_error"
	OutcomeRedirectFollowed Outcome = "redirect_followed"
)

// FetchAttempt records one request issued while fetching a URL.
type FetchAttempt struct {
	URL           string        `json:"url"`
	AttemptNumber int           `json:"attempt_number"`
	Hop           int           `json:"hop"`
	Outcome       Outcome       `json:"outcome"`
	StatusCode    int           `json:"status_code,omitempty"`
	Delay         time.Duration `json:"delay"` // wait applied after this attempt
	Err           string        `json:"error,omitempty"`
}

// Validators are the HTTP cache validators used for conditional GETs.
type Validators struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

func (v Validators) IsZero() bool {
	return v.ETag == "" && v.LastModified == ""
}

// FetchResult is the outcome of a full fetch sequence for one URL.
type FetchResult struct {
	URL         string         `json:"url"`
	FinalURL    string         `json:"final_url,omitempty"`
	StatusCode  int            `json:"status_code,omitempty"`
	NotModified bool           `json:"not_modified,omitempty"`
	Body        []byte         `json:"-"`
	Header      http.Header    `json:"-"`
	Validators  Validators     `json:"validators"`
	Attempts    []FetchAttempt `json:"attempts"`
	Elapsed     time.Duration  `json:"elapsed"`
}

// AttemptsMade is the highest attempt number reached, redirect hops excluded.
func (r *FetchResult) AttemptsMade() int {
	if len(r.Attempts) == 0 {
		return 0
	}
	return r.Attempts[len(r.Attempts)-1].AttemptNumber
}
