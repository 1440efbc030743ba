package repository

import (
	"context"
	"errors"

	"github.com/user/fetch-service/internal/entity"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// FetchedPageRepository stores the latest successful fetch per URL.
type FetchedPageRepository interface {
	// Save stores the page for a URL. If the URL already exists, it is updated.
	// A NotModified page keeps the previously stored body.
	Save(ctx context.Context, page *entity.FetchedPage) error
	// FindByURL returns ErrNotFound when the URL was never fetched successfully.
	FindByURL(ctx context.Context, url string) (*entity.FetchedPage, error)
}
