package chromedp_transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/fetch-service/internal/repository"
)

// ChromedpTransport renders pages in headless Chrome. The browser follows
// redirects itself, so the controller only ever sees the final document.
type ChromedpTransport struct {
	logger *zap.Logger

	mu         sync.Mutex
	allocators map[string]allocator // keyed by proxy URL
}

type allocator struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewChromedpTransport creates a transport that starts browsers lazily, one per proxy.
func NewChromedpTransport(logger *zap.Logger) *ChromedpTransport {
	return &ChromedpTransport{logger: logger, allocators: make(map[string]allocator)}
}

var _ repository.PageTransport = (*ChromedpTransport)(nil)

func (c *ChromedpTransport) allocatorFor(proxyURL string) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.allocators[proxyURL]; ok {
		return a.ctx
	}
	ctx, cancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(proxyURL)...)
	c.allocators[proxyURL] = allocator{ctx: ctx, cancel: cancel}
	return ctx
}

func allocatorOptions(proxyURL string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(proxyURL))
	}
	return opts
}

// Do navigates to the URL and returns the main document's status with the rendered HTML.
func (c *ChromedpTransport) Do(ctx context.Context, req *repository.TransportRequest) (*repository.TransportResponse, error) {
	tabCtx, cancelTab := chromedp.NewContext(c.allocatorFor(req.Identity.ProxyURL))
	defer cancelTab()

	// Stop the tab when the caller gives up.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	runCtx := tabCtx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(tabCtx, req.Timeout)
		defer cancel()
	}

	var (
		docMu  sync.Mutex
		status int64
		header http.Header
	)
	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			docMu.Lock()
			status = e.Response.Status
			header = headersFrom(e.Response.Headers)
			docMu.Unlock()
		}
	})

	extra := network.Headers{}
	if req.Validators.ETag != "" {
		extra["If-None-Match"] = req.Validators.ETag
	}
	if req.Validators.LastModified != "" {
		extra["If-Modified-Since"] = req.Validators.LastModified
	}

	actions := []chromedp.Action{network.Enable()}
	if len(extra) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(extra))
	}
	if req.Identity.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(req.Identity.UserAgent))
	}
	var html string
	actions = append(actions, chromedp.Navigate(req.URL), chromedp.OuterHTML("html", &html))

	err := chromedp.Run(runCtx, actions...)

	docMu.Lock()
	defer docMu.Unlock()
	if err != nil {
		c.logger.Debug("browser navigation failed", zap.String("url", req.URL), zap.Error(err))
		return nil, classifyNavError(ctx, runCtx, err)
	}
	if status == 0 {
		return nil, fmt.Errorf("%w: no document response for %s", repository.ErrConnection, req.URL)
	}
	return &repository.TransportResponse{StatusCode: int(status), Header: header, Body: []byte(html)}, nil
}

// Close shuts down every browser started by the transport.
func (c *ChromedpTransport) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, a := range c.allocators {
		a.cancel()
		delete(c.allocators, k)
	}
}

func headersFrom(h network.Headers) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		// Chrome joins repeated headers with newlines.
		for _, part := range strings.Split(fmt.Sprint(v), "\n") {
			out.Add(k, part)
		}
	}
	return out
}

func classifyNavError(parent, runCtx context.Context, err error) error {
	if parent.Err() != nil {
		return err
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", repository.ErrRequestTimeout, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "ERR_TIMED_OUT") {
		return fmt.Errorf("%w: %v", repository.ErrRequestTimeout, err)
	}
	if strings.Contains(msg, "net::ERR_") {
		return fmt.Errorf("%w: %v", repository.ErrConnection, err)
	}
	return err
}
