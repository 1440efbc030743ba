package usecase

import (
	"errors"
	"fmt"
)

// FailureKind is the terminal classification of a failed fetch.
type FailureKind string

const (
	KindPermanent        FailureKind = "permanent_error"
	KindRetriesExhausted FailureKind = "retries_exhausted"
	KindTooManyRedirects FailureKind = "too_many_redirects"
	KindCanceled         FailureKind = "canceled"
	KindRateLimited      FailureKind = "rate_limited"
)

// Sentinels for errors.Is against a *FetchError.
var (
	ErrPermanent        = errors.New("permanent fetch error")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrFetchCanceled    = errors.New("fetch canceled")
	ErrRateLimited      = errors.New("rate limiter refused request")

	// ErrDisallowedByRobots is wrapped by the permanent error returned for a
	// URL that robots.txt forbids.
	ErrDisallowedByRobots = errors.New("disallowed by robots.txt")
)

var kindSentinels = map[FailureKind]error{
	KindPermanent:        ErrPermanent,
	KindRetriesExhausted: ErrRetriesExhausted,
	KindTooManyRedirects: ErrTooManyRedirects,
	KindCanceled:         ErrFetchCanceled,
	KindRateLimited:      ErrRateLimited,
}

// FetchError is returned by Fetch for every terminal failure.
type FetchError struct {
	Kind       FailureKind
	URL        string
	LastStatus int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s after %d attempt(s)", e.URL, e.Kind, e.Attempts)
	if e.LastStatus != 0 {
		msg += fmt.Sprintf(", last status %d", e.LastStatus)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// IsAuthFailure reports whether err is a permanent 401/403 failure, the only
// case where re-invoking with a different identity can help.
func IsAuthFailure(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindPermanent {
		return false
	}
	return fe.LastStatus == 401 || fe.LastStatus == 403
}
