package repository

import (
	"context"

	"github.com/user/fetch-service/internal/entity"
)

// ValidatorRepository caches ETag/Last-Modified per URL for conditional GETs.
type ValidatorRepository interface {
	Get(ctx context.Context, url string) (entity.Validators, error)
	Set(ctx context.Context, url string, v entity.Validators) error
}
