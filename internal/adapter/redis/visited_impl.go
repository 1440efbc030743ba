package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/fetch-service/pkg/utils"
)

const visitedURLPrefix = "fetcher:visited:"

// VisitedRepoImpl implements repository.VisitedRepository with expiring Redis keys.
type VisitedRepoImpl struct {
	client redis.UniversalClient
}

func NewVisitedRepo(client redis.UniversalClient) *VisitedRepoImpl {
	return &VisitedRepoImpl{client: client}
}

func visitedKey(url string) string {
	return visitedURLPrefix + utils.HashURL(url)
}

// MarkVisited uses SETEX so the key and its expiry are set atomically.
func (r *VisitedRepoImpl) MarkVisited(ctx context.Context, url string, expiry time.Duration) error {
	return r.client.SetEx(ctx, visitedKey(url), "1", expiry).Err()
}

func (r *VisitedRepoImpl) IsVisited(ctx context.Context, url string) (bool, error) {
	n, err := r.client.Exists(ctx, visitedKey(url)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *VisitedRepoImpl) RemoveVisited(ctx context.Context, url string) error {
	return r.client.Del(ctx, visitedKey(url)).Err()
}
