package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/fetch-service/internal/entity"
	"github.com/user/fetch-service/internal/repository"
)

// FailedURLRepoImpl implements repository.FailedURLRepository using PostgreSQL.
type FailedURLRepoImpl struct {
	db *pgxpool.Pool
}

func NewFailedURLRepo(db *pgxpool.Pool) *FailedURLRepoImpl {
	return &FailedURLRepoImpl{db: db}
}

const failedURLColumns = `id, url, failure_kind, failure_reason, http_status_code, attempts_made,
	last_attempt_timestamp, retry_count, next_retry_at`

// SaveOrUpdate creates or updates a record for a failed URL.
// It increments the retry_count on conflict.
func (r *FailedURLRepoImpl) SaveOrUpdate(ctx context.Context, f *entity.FailedURL) error {
	query := `
		INSERT INTO failed_urls (url, failure_kind, failure_reason, http_status_code, attempts_made,
			last_attempt_timestamp, retry_count, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
		ON CONFLICT (url) DO UPDATE SET
			failure_kind = EXCLUDED.failure_kind,
			failure_reason = EXCLUDED.failure_reason,
			http_status_code = EXCLUDED.http_status_code,
			attempts_made = EXCLUDED.attempts_made,
			last_attempt_timestamp = EXCLUDED.last_attempt_timestamp,
			retry_count = failed_urls.retry_count + 1,
			next_retry_at = EXCLUDED.next_retry_at;
	`
	_, err := r.db.Exec(ctx, query,
		f.URL,
		f.FailureKind,
		f.FailureReason,
		f.HTTPStatusCode,
		f.AttemptsMade,
		f.LastAttemptTimestamp,
		f.NextRetryAt,
	)
	return err
}

func (r *FailedURLRepoImpl) FindByURL(ctx context.Context, url string) (*entity.FailedURL, error) {
	row := r.db.QueryRow(ctx, `SELECT `+failedURLColumns+` FROM failed_urls WHERE url = $1;`, url)
	f, err := scanFailedURL(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return f, err
}

// FindRetryable claims a batch of URLs that are due for a retry. Claimed rows
// get next_retry_at cleared so concurrent sweeps do not queue them twice.
func (r *FailedURLRepoImpl) FindRetryable(ctx context.Context, limit int) ([]*entity.FailedURL, error) {
	query := `
		UPDATE failed_urls SET next_retry_at = NULL
		WHERE id IN (
			SELECT id FROM failed_urls
			WHERE next_retry_at IS NOT NULL AND next_retry_at <= NOW()
			ORDER BY next_retry_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + failedURLColumns + `;
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failed []*entity.FailedURL
	for rows.Next() {
		f, err := scanFailedURL(rows)
		if err != nil {
			return nil, err
		}
		failed = append(failed, f)
	}
	return failed, rows.Err()
}

// Delete removes a failed URL record, typically after a successful fetch.
func (r *FailedURLRepoImpl) Delete(ctx context.Context, url string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM failed_urls WHERE url = $1;`, url)
	return err
}

func scanFailedURL(row pgx.Row) (*entity.FailedURL, error) {
	var f entity.FailedURL
	if err := row.Scan(
		&f.ID,
		&f.URL,
		&f.FailureKind,
		&f.FailureReason,
		&f.HTTPStatusCode,
		&f.AttemptsMade,
		&f.LastAttemptTimestamp,
		&f.RetryCount,
		&f.NextRetryAt,
	); err != nil {
		return nil, err
	}
	return &f, nil
}
