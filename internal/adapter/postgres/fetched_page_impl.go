package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/fetch-service/internal/entity"
	"github.com/user/fetch-service/internal/repository"
)

// FetchedPageRepoImpl implements repository.FetchedPageRepository using PostgreSQL.
type FetchedPageRepoImpl struct {
	db *pgxpool.Pool
}

func NewFetchedPageRepo(db *pgxpool.Pool) *FetchedPageRepoImpl {
	return &FetchedPageRepoImpl{db: db}
}

// Save upserts the page. A 304 refreshes metadata but keeps the stored body and hash.
func (r *FetchedPageRepoImpl) Save(ctx context.Context, page *entity.FetchedPage) error {
	query := `
		INSERT INTO fetched_pages (url, final_url, http_status_code, not_modified, content_type, content_hash, body,
			attempts_made, redirect_count, response_time_ms, fetch_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (url) DO UPDATE SET
			final_url = EXCLUDED.final_url,
			http_status_code = EXCLUDED.http_status_code,
			not_modified = EXCLUDED.not_modified,
			content_type = CASE WHEN EXCLUDED.not_modified THEN fetched_pages.content_type ELSE EXCLUDED.content_type END,
			content_hash = CASE WHEN EXCLUDED.not_modified THEN fetched_pages.content_hash ELSE EXCLUDED.content_hash END,
			body = CASE WHEN EXCLUDED.not_modified THEN fetched_pages.body ELSE EXCLUDED.body END,
			attempts_made = EXCLUDED.attempts_made,
			redirect_count = EXCLUDED.redirect_count,
			response_time_ms = EXCLUDED.response_time_ms,
			fetch_timestamp = EXCLUDED.fetch_timestamp;
	`
	_, err := r.db.Exec(ctx, query,
		page.URL,
		page.FinalURL,
		page.HTTPStatusCode,
		page.NotModified,
		page.ContentType,
		page.ContentHash,
		page.Body,
		page.AttemptsMade,
		page.RedirectCount,
		page.ResponseTimeMS,
		page.FetchTimestamp,
	)
	return err
}

func (r *FetchedPageRepoImpl) FindByURL(ctx context.Context, url string) (*entity.FetchedPage, error) {
	query := `
		SELECT id, url, final_url, http_status_code, not_modified, content_type, content_hash, body,
			attempts_made, redirect_count, response_time_ms, fetch_timestamp
		FROM fetched_pages
		WHERE url = $1;
	`
	var p entity.FetchedPage
	err := r.db.QueryRow(ctx, query, url).Scan(
		&p.ID,
		&p.URL,
		&p.FinalURL,
		&p.HTTPStatusCode,
		&p.NotModified,
		&p.ContentType,
		&p.ContentHash,
		&p.Body,
		&p.AttemptsMade,
		&p.RedirectCount,
		&p.ResponseTimeMS,
		&p.FetchTimestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
