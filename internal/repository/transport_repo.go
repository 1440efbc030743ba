package repository

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/user/fetch-service/internal/entity"
)

var (
	// ErrRequestTimeout marks a transport error caused by the per-request timeout.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrConnection marks a transport error raised before any response arrived.
	ErrConnection = errors.New("connection failed")
)

// TransportRequest is a single GET issued by the fetch controller.
type TransportRequest struct {
	URL        string
	Timeout    time.Duration
	Identity   entity.Identity
	Validators entity.Validators
}

// TransportResponse is the raw, unclassified answer to a TransportRequest.
type TransportResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// PageTransport issues exactly one request and never follows redirects on its own.
type PageTransport interface {
	// Do returns an error wrapping ErrRequestTimeout or ErrConnection for network
	// failures. Any other error is treated as permanent.
	Do(ctx context.Context, req *TransportRequest) (*TransportResponse, error)
}
