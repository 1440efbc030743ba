package usecase

import (
	"context"
	"sync"
	"testing"
	"time"
)

type countingWorker struct {
	mu    sync.Mutex
	urls  []string
	queue *memQueue
	done  chan struct{}
	want  int
}

func (w *countingWorker) ProcessURLFromQueue(ctx context.Context) error {
	url, err := w.queue.Pop(ctx)
	if err != nil {
		return err
	}
	return w.FetchURL(ctx, url)
}

func (w *countingWorker) FetchURL(ctx context.Context, url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.urls = append(w.urls, url)
	if len(w.urls) == w.want {
		close(w.done)
	}
	return nil
}

func TestWorkerPool_DrainsQueueAndStops(t *testing.T) {
	queue := &memQueue{}
	for _, u := range []string{"https://a.test", "https://b.test", "https://c.test", "https://d.test"} {
		_ = queue.Push(context.Background(), u)
	}
	w := &countingWorker{queue: queue, done: make(chan struct{}), want: 4}
	pool := NewWorkerPool(w, queue, 3, nil)
	pool.idleWait = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- pool.Run(ctx) }()

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue not drained")
	}
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop")
	}
	if len(w.urls) != 4 {
		t.Errorf("processed %d URLs", len(w.urls))
	}
}

var _ FetchWorker = (*countingWorker)(nil)
