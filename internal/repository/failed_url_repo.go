package repository

import (
	"context"

	"github.com/user/fetch-service/internal/entity"
)

// FailedURLRepository defines the interface for managing URLs that failed to be fetched.
type FailedURLRepository interface {
	// SaveOrUpdate creates or updates a record for a failed URL.
	SaveOrUpdate(ctx context.Context, failedURL *entity.FailedURL) error
	// FindByURL returns ErrNotFound when no failure is recorded.
	FindByURL(ctx context.Context, url string) (*entity.FailedURL, error)
	// FindRetryable retrieves a batch of URLs that are due for a retry.
	FindRetryable(ctx context.Context, limit int) ([]*entity.FailedURL, error)
	// Delete removes a failed URL record, typically after a successful fetch.
	Delete(ctx context.Context, url string) error
}
