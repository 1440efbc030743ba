package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/fetch-service/internal/repository"
	"github.com/user/fetch-service/pkg/metrics"
)

// WorkerPool runs FetchWorker loops until its context is canceled.
type WorkerPool struct {
	worker    FetchWorker
	queueRepo repository.QueueRepository
	workers   int
	idleWait  time.Duration
	logger    *zap.Logger
}

func NewWorkerPool(worker FetchWorker, queueRepo repository.QueueRepository, workers int, logger *zap.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		worker:    worker,
		queueRepo: queueRepo,
		workers:   workers,
		idleWait:  time.Second,
		logger:    logger,
	}
}

// Run blocks until ctx is done. Per-URL errors are logged and never stop the pool.
func (p *WorkerPool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			p.loop(ctx, i)
			return nil
		})
	}
	g.Go(func() error {
		p.reportQueueSize(ctx)
		return nil
	})
	return g.Wait()
}

func (p *WorkerPool) loop(ctx context.Context, id int) {
	logger := p.logger.With(zap.Int("worker", id))
	logger.Debug("Worker started")
	for ctx.Err() == nil {
		err := p.worker.ProcessURLFromQueue(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, repository.ErrQueueEmpty):
		default:
			logger.Error("Failed to process URL", zap.Error(err))
		}
		if sleepContext(ctx, p.idleWait) != nil {
			break
		}
	}
	logger.Debug("Worker stopped")
}

func (p *WorkerPool) reportQueueSize(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			size, err := p.queueRepo.Size(ctx)
			if err != nil {
				p.logger.Warn("Failed to read queue size", zap.Error(err))
				continue
			}
			metrics.URLsInQueue.Set(float64(size))
		}
	}
}
