package usecase

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/user/fetch-service/internal/repository"
	"github.com/user/fetch-service/pkg/metrics"
)

const DefaultSweepSchedule = "@every 30s"

// RetrySweeper moves failed URLs whose next_retry_at has passed back onto the queue.
type RetrySweeper struct {
	failedURLRepo repository.FailedURLRepository
	queueRepo     repository.QueueRepository
	batchSize     int
	logger        *zap.Logger
}

func NewRetrySweeper(failedURLRepo repository.FailedURLRepository, queueRepo repository.QueueRepository, batchSize int, logger *zap.Logger) *RetrySweeper {
	if batchSize < 1 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrySweeper{
		failedURLRepo: failedURLRepo,
		queueRepo:     queueRepo,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// Sweep re-queues one batch and returns how many URLs were pushed.
func (s *RetrySweeper) Sweep(ctx context.Context) (int, error) {
	due, err := s.failedURLRepo.FindRetryable(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("find retryable URLs: %w", err)
	}
	pushed := 0
	for _, f := range due {
		if err := s.queueRepo.Push(ctx, f.URL); err != nil {
			return pushed, fmt.Errorf("requeue %s: %w", f.URL, err)
		}
		pushed++
		metrics.URLsRequeued.Inc()
	}
	if pushed > 0 {
		s.logger.Info("Requeued failed URLs", zap.Int("count", pushed))
	}
	return pushed, nil
}

// Start schedules Sweep with a standard cron expression or descriptor such as
// "@every 30s". The returned cron is already running; Stop it on shutdown.
func (s *RetrySweeper) Start(ctx context.Context, schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("Retry sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}
