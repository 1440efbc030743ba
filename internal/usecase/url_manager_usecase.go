package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/user/fetch-service/internal/entity"
	"github.com/user/fetch-service/internal/repository"
	"github.com/user/fetch-service/pkg/utils"
)

var ErrURLRecentlySubmitted = errors.New("URL has been submitted recently and force_fetch is false")

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusNotFound  = "not_found"
)

// DefaultDeduplicationTTL is how long a submitted URL blocks resubmission.
const DefaultDeduplicationTTL = 48 * time.Hour

// URLManager defines the interface for submitting and checking URLs.
type URLManager interface {
	Submit(ctx context.Context, url string, force bool) (string, error)
	GetStatus(ctx context.Context, url string) (*entity.FetchStatus, error)
}

type urlManagerUseCase struct {
	visitedRepo   repository.VisitedRepository
	queueRepo     repository.QueueRepository
	pageRepo      repository.FetchedPageRepository
	failedURLRepo repository.FailedURLRepository
	dedupTTL      time.Duration
	logger        *zap.Logger
}

// NewURLManager creates a new URLManager use case. A non-positive dedupTTL
// falls back to DefaultDeduplicationTTL.
func NewURLManager(
	visitedRepo repository.VisitedRepository,
	queueRepo repository.QueueRepository,
	pageRepo repository.FetchedPageRepository,
	failedURLRepo repository.FailedURLRepository,
	dedupTTL time.Duration,
	logger *zap.Logger,
) URLManager {
	if dedupTTL <= 0 {
		dedupTTL = DefaultDeduplicationTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &urlManagerUseCase{
		visitedRepo:   visitedRepo,
		queueRepo:     queueRepo,
		pageRepo:      pageRepo,
		failedURLRepo: failedURLRepo,
		dedupTTL:      dedupTTL,
		logger:        logger,
	}
}

// Submit queues url for fetching and returns its request ID.
func (uc *urlManagerUseCase) Submit(ctx context.Context, url string, force bool) (string, error) {
	requestID := utils.HashURL(url)

	if force {
		if err := uc.visitedRepo.RemoveVisited(ctx, url); err != nil {
			// not fatal, the URL is queued anyway
			uc.logger.Warn("Failed to remove visited key for force fetch", zap.String("url", url), zap.Error(err))
		}
	} else {
		isVisited, err := uc.visitedRepo.IsVisited(ctx, url)
		if err != nil {
			return "", err
		}
		if isVisited {
			return requestID, ErrURLRecentlySubmitted
		}
	}

	if err := uc.queueRepo.Push(ctx, url); err != nil {
		return "", err
	}

	if err := uc.visitedRepo.MarkVisited(ctx, url, uc.dedupTTL); err != nil {
		// The URL is queued but may be queued again by a concurrent submit.
		uc.logger.Error("Failed to mark URL as visited after queueing", zap.String("url", url), zap.Error(err))
	}

	return requestID, nil
}

// GetStatus reports completed or failed from the most recent outcome, then
// pending or not_found.
func (uc *urlManagerUseCase) GetStatus(ctx context.Context, url string) (*entity.FetchStatus, error) {
	page, err := uc.pageRepo.FindByURL(ctx, url)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	failed, err := uc.failedURLRepo.FindByURL(ctx, url)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	// A page and a failure record coexist when a forced re-fetch fails.
	if failed != nil && (page == nil || failed.LastAttemptTimestamp.After(page.FetchTimestamp)) {
		return &entity.FetchStatus{
			URL:                url,
			CurrentStatus:      StatusFailed,
			LastFetchTimestamp: &failed.LastAttemptTimestamp,
			NextRetryAt:        failed.NextRetryAt,
			FailureReason:      failed.FailureReason,
		}, nil
	}
	if page != nil {
		return &entity.FetchStatus{
			URL:                url,
			CurrentStatus:      StatusCompleted,
			LastFetchTimestamp: &page.FetchTimestamp,
		}, nil
	}

	isVisited, err := uc.visitedRepo.IsVisited(ctx, url)
	if err != nil {
		return nil, err
	}
	if isVisited {
		return &entity.FetchStatus{URL: url, CurrentStatus: StatusPending}, nil
	}

	return &entity.FetchStatus{URL: url, CurrentStatus: StatusNotFound}, nil
}
