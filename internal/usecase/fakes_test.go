package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/user/fetch-service/internal/entity"
	"github.com/user/fetch-service/internal/repository"
)

type memVisited struct {
	mu   sync.Mutex
	urls map[string]time.Duration
	err  error
}

func newMemVisited() *memVisited { return &memVisited{urls: map[string]time.Duration{}} }

func (m *memVisited) MarkVisited(ctx context.Context, url string, expiry time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls[url] = expiry
	return nil
}

func (m *memVisited) IsVisited(ctx context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.urls[url]
	return ok, nil
}

func (m *memVisited) RemoveVisited(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.urls, url)
	return nil
}

type memQueue struct {
	mu    sync.Mutex
	items []string
}

func (q *memQueue) Push(ctx context.Context, url string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, url)
	return nil
}

func (q *memQueue) Pop(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", repository.ErrQueueEmpty
	}
	url := q.items[0]
	q.items = q.items[1:]
	return url, nil
}

func (q *memQueue) Size(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

type memPages struct {
	mu    sync.Mutex
	pages map[string]*entity.FetchedPage
}

func newMemPages() *memPages { return &memPages{pages: map[string]*entity.FetchedPage{}} }

func (m *memPages) Save(ctx context.Context, page *entity.FetchedPage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *page
	if prev, ok := m.pages[page.URL]; ok && page.NotModified {
		cp.Body, cp.ContentHash, cp.ContentType = prev.Body, prev.ContentHash, prev.ContentType
	}
	m.pages[page.URL] = &cp
	return nil
}

func (m *memPages) FindByURL(ctx context.Context, url string) (*entity.FetchedPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[url]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

type memFailed struct {
	mu     sync.Mutex
	failed map[string]*entity.FailedURL
	now    func() time.Time
}

func newMemFailed() *memFailed {
	return &memFailed{failed: map[string]*entity.FailedURL{}, now: time.Now}
}

func (m *memFailed) SaveOrUpdate(ctx context.Context, f *entity.FailedURL) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	cp.RetryCount = 1
	if prev, ok := m.failed[f.URL]; ok {
		cp.RetryCount = prev.RetryCount + 1
	}
	m.failed[f.URL] = &cp
	return nil
}

func (m *memFailed) FindByURL(ctx context.Context, url string) (*entity.FailedURL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.failed[url]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return f, nil
}

func (m *memFailed) FindRetryable(ctx context.Context, limit int) ([]*entity.FailedURL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*entity.FailedURL
	for _, f := range m.failed {
		if len(due) == limit {
			break
		}
		if f.NextRetryAt != nil && !f.NextRetryAt.After(m.now()) {
			f.NextRetryAt = nil
			due = append(due, f)
		}
	}
	return due, nil
}

func (m *memFailed) Delete(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failed, url)
	return nil
}

type memValidators struct {
	mu   sync.Mutex
	vals map[string]entity.Validators
}

func newMemValidators() *memValidators { return &memValidators{vals: map[string]entity.Validators{}} }

func (m *memValidators) Get(ctx context.Context, url string) (entity.Validators, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vals[url], nil
}

func (m *memValidators) Set(ctx context.Context, url string, v entity.Validators) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[url] = v
	return nil
}
