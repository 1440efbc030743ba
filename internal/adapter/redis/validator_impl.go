package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/fetch-service/internal/entity"
	"github.com/user/fetch-service/pkg/utils"
)

const (
	validatorPrefix = "fetcher:validators:"
	validatorTTL    = 30 * 24 * time.Hour
)

// ValidatorRepoImpl keeps ETag/Last-Modified in a Redis hash per URL.
type ValidatorRepoImpl struct {
	client redis.UniversalClient
}

func NewValidatorRepo(client redis.UniversalClient) *ValidatorRepoImpl {
	return &ValidatorRepoImpl{client: client}
}

func validatorKey(url string) string {
	return validatorPrefix + utils.HashURL(url)
}

// Get returns zero validators when nothing is cached.
func (r *ValidatorRepoImpl) Get(ctx context.Context, url string) (entity.Validators, error) {
	vals, err := r.client.HGetAll(ctx, validatorKey(url)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return entity.Validators{}, err
	}
	return entity.Validators{ETag: vals["etag"], LastModified: vals["last_modified"]}, nil
}

// Set replaces the cached validators; zero validators clear the entry.
func (r *ValidatorRepoImpl) Set(ctx context.Context, url string, v entity.Validators) error {
	key := validatorKey(url)
	if v.IsZero() {
		return r.client.Del(ctx, key).Err()
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "etag", v.ETag, "last_modified", v.LastModified)
		pipe.Expire(ctx, key, validatorTTL)
		return nil
	})
	return err
}
