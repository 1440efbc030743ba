package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/user/fetch-service/internal/repository"
)

const fetchQueueKey = "fetcher:queue"

// QueueRepoImpl implements repository.QueueRepository on a Redis list:
// LPUSH at the tail, RPOP at the head.
type QueueRepoImpl struct {
	client redis.UniversalClient
}

func NewQueueRepo(client redis.UniversalClient) *QueueRepoImpl {
	return &QueueRepoImpl{client: client}
}

func (r *QueueRepoImpl) Push(ctx context.Context, url string) error {
	return r.client.LPush(ctx, fetchQueueKey, url).Err()
}

// Pop returns repository.ErrQueueEmpty instead of redis.Nil.
func (r *QueueRepoImpl) Pop(ctx context.Context) (string, error) {
	url, err := r.client.RPop(ctx, fetchQueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", repository.ErrQueueEmpty
	}
	return url, err
}

func (r *QueueRepoImpl) Size(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, fetchQueueKey).Result()
}
