package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/fetch-service/internal/entity"
	"github.com/user/fetch-service/internal/repository"
	"github.com/user/fetch-service/pkg/metrics"
	"github.com/user/fetch-service/pkg/utils"
)

// DefaultRetryCooldown delays the re-queue of a URL whose retries ran out.
const DefaultRetryCooldown = 10 * time.Minute

// IdentityRotator supplies a new request identity after an auth failure.
type IdentityRotator interface {
	Next(previous entity.Identity) entity.Identity
}

// FetchWorker defines the interface for the queue-driven fetch process.
type FetchWorker interface {
	// ProcessURLFromQueue returns repository.ErrQueueEmpty when there is nothing to do.
	ProcessURLFromQueue(ctx context.Context) error
	// FetchURL fetches and stores a single URL without touching the queue.
	FetchURL(ctx context.Context, url string) error
}

type FetchWorkerConfig struct {
	// IdentityRetries is how many times a 401/403 is re-fetched with a rotated identity.
	IdentityRetries int
	RetryCooldown   time.Duration
}

type fetchWorkerUseCase struct {
	queueRepo     repository.QueueRepository
	pageRepo      repository.FetchedPageRepository
	failedURLRepo repository.FailedURLRepository
	validatorRepo repository.ValidatorRepository
	fetcher       Fetcher
	rotator       IdentityRotator
	cfg           FetchWorkerConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewFetchWorker wires a worker. rotator may be nil, in which case auth
// failures are recorded without re-fetching.
func NewFetchWorker(
	queueRepo repository.QueueRepository,
	pageRepo repository.FetchedPageRepository,
	failedURLRepo repository.FailedURLRepository,
	validatorRepo repository.ValidatorRepository,
	fetcher Fetcher,
	rotator IdentityRotator,
	cfg FetchWorkerConfig,
	logger *zap.Logger,
) FetchWorker {
	if cfg.RetryCooldown <= 0 {
		cfg.RetryCooldown = DefaultRetryCooldown
	}
	if cfg.IdentityRetries < 0 {
		cfg.IdentityRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fetchWorkerUseCase{
		queueRepo:     queueRepo,
		pageRepo:      pageRepo,
		failedURLRepo: failedURLRepo,
		validatorRepo: validatorRepo,
		fetcher:       fetcher,
		rotator:       rotator,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

// ProcessURLFromQueue pops a single URL and processes it.
func (uc *fetchWorkerUseCase) ProcessURLFromQueue(ctx context.Context) error {
	url, err := uc.queueRepo.Pop(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrQueueEmpty) {
			return err
		}
		return fmt.Errorf("failed to pop URL from queue: %w", err)
	}
	return uc.FetchURL(ctx, url)
}

func (uc *fetchWorkerUseCase) FetchURL(ctx context.Context, url string) error {
	uc.logger.Info("Processing URL", zap.String("url", url))

	validators, err := uc.validatorRepo.Get(ctx, url)
	if err != nil {
		uc.logger.Warn("Failed to load validators, fetching unconditionally", zap.String("url", url), zap.Error(err))
		validators = entity.Validators{}
	}

	result, fetchErr := uc.fetchWithRotation(ctx, url, validators)

	// Results are persisted even when the worker is shutting down.
	storeCtx := context.WithoutCancel(ctx)
	if fetchErr != nil {
		return uc.handleFetchFailure(storeCtx, url, result, fetchErr)
	}
	return uc.handleFetchSuccess(storeCtx, url, result)
}

// fetchWithRotation re-invokes the fetch as a new sequence with a rotated
// identity while the failure is a 401/403 and rotations remain.
func (uc *fetchWorkerUseCase) fetchWithRotation(ctx context.Context, url string, validators entity.Validators) (*entity.FetchResult, error) {
	var ident entity.Identity
	if uc.rotator != nil {
		ident = uc.rotator.Next(entity.Identity{})
	}

	result, err := uc.fetcher.Fetch(ctx, url, FetchOptions{Identity: ident, Validators: validators})
	for i := 0; i < uc.cfg.IdentityRetries && uc.rotator != nil && IsAuthFailure(err); i++ {
		ident = uc.rotator.Next(ident)
		metrics.IdentityRotations.Inc()
		uc.logger.Info("Auth failure, retrying with rotated identity",
			zap.String("url", url),
			zap.Int("rotation", i+1),
			zap.Bool("proxied", ident.ProxyURL != ""),
		)
		result, err = uc.fetcher.Fetch(ctx, url, FetchOptions{Identity: ident, Validators: validators})
	}
	return result, err
}

func (uc *fetchWorkerUseCase) handleFetchSuccess(ctx context.Context, url string, result *entity.FetchResult) error {
	page := &entity.FetchedPage{
		URL:            url,
		FinalURL:       result.FinalURL,
		HTTPStatusCode: result.StatusCode,
		NotModified:    result.NotModified,
		AttemptsMade:   result.AttemptsMade(),
		RedirectCount:  redirectCount(result),
		ResponseTimeMS: int(result.Elapsed.Milliseconds()),
		FetchTimestamp: uc.now(),
	}
	if !result.NotModified {
		page.Body = result.Body
		page.ContentHash = utils.HashBytes(result.Body)
		page.ContentType = result.Header.Get("Content-Type")
	}

	if err := uc.pageRepo.Save(ctx, page); err != nil {
		return fmt.Errorf("failed to save fetched page for %s: %w", url, err)
	}

	if !result.Validators.IsZero() {
		if err := uc.validatorRepo.Set(ctx, url, result.Validators); err != nil {
			uc.logger.Warn("Failed to store validators", zap.String("url", url), zap.Error(err))
		}
	}

	if err := uc.failedURLRepo.Delete(ctx, url); err != nil {
		uc.logger.Warn("Failed to delete URL from failed_urls after successful fetch", zap.String("url", url), zap.Error(err))
	}

	uc.logger.Info("Fetch successful",
		zap.String("url", url),
		zap.String("final_url", result.FinalURL),
		zap.Int("status", result.StatusCode),
		zap.Bool("not_modified", result.NotModified),
		zap.Int("attempts", page.AttemptsMade),
		zap.Duration("elapsed", result.Elapsed),
	)
	return nil
}

func (uc *fetchWorkerUseCase) handleFetchFailure(ctx context.Context, url string, result *entity.FetchResult, fetchErr error) error {
	failed := &entity.FailedURL{
		URL:                  url,
		FailureKind:          "unknown",
		FailureReason:        fetchErr.Error(),
		AttemptsMade:         result.AttemptsMade(),
		LastAttemptTimestamp: uc.now(),
	}

	var fe *FetchError
	if errors.As(fetchErr, &fe) {
		failed.FailureKind = string(fe.Kind)
		failed.HTTPStatusCode = fe.LastStatus
		if fe.Kind == KindRetriesExhausted || fe.Kind == KindCanceled || fe.Kind == KindRateLimited {
			next := failed.LastAttemptTimestamp.Add(uc.cfg.RetryCooldown)
			failed.NextRetryAt = &next
		}
	}

	uc.logger.Warn("Fetch failed",
		zap.String("url", url),
		zap.String("kind", failed.FailureKind),
		zap.Int("last_status", failed.HTTPStatusCode),
		zap.Int("attempts", failed.AttemptsMade),
		zap.Error(fetchErr),
	)

	if err := uc.failedURLRepo.SaveOrUpdate(ctx, failed); err != nil {
		return fmt.Errorf("failed to save or update failed URL record for %s: %w", url, err)
	}
	return nil
}

func redirectCount(result *entity.FetchResult) int {
	n := 0
	for _, a := range result.Attempts {
		if a.Outcome == entity.OutcomeRedirectFollowed {
			n++
		}
	}
	return n
}
