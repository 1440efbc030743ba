package httptransport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/user/fetch-service/internal/repository"
)

const defaultMaxBodyBytes = 10 << 20

// Transport issues single GET requests with net/http and never follows redirects.
type Transport struct {
	maxBodyBytes int64
	base         func() *http.Transport

	mu      sync.Mutex
	clients map[string]*http.Client // keyed by proxy URL, "" for direct
}

// New creates a Transport. maxBodyBytes <= 0 selects the default cap.
func New(maxBodyBytes int64) *Transport {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &Transport{
		maxBodyBytes: maxBodyBytes,
		base: func() *http.Transport {
			return http.DefaultTransport.(*http.Transport).Clone()
		},
		clients: make(map[string]*http.Client),
	}
}

var _ repository.PageTransport = (*Transport)(nil)

func (t *Transport) Do(ctx context.Context, req *repository.TransportRequest) (*repository.TransportResponse, error) {
	client, err := t.client(req.Identity.ProxyURL)
	if err != nil {
		return nil, err
	}

	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if req.Identity.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.Identity.UserAgent)
	}
	if req.Validators.ETag != "" {
		httpReq.Header.Set("If-None-Match", req.Validators.ETag)
	}
	if req.Validators.LastModified != "" {
		httpReq.Header.Set("If-Modified-Since", req.Validators.LastModified)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes+1))
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	if int64(len(body)) > t.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", t.maxBodyBytes)
	}

	return &repository.TransportResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (t *Transport) client(proxyURL string) (*http.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[proxyURL]; ok {
		return c, nil
	}

	tr := t.base()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", proxyURL, err)
		}
		tr.Proxy = http.ProxyURL(u)
	}
	c := &http.Client{
		Transport: tr,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	t.clients[proxyURL] = c
	return c, nil
}

// classifyError maps net/http failures onto the repository's retryable sentinels.
// parent is the caller's context: its cancellation is reported as-is.
func classifyError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return err
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", repository.ErrRequestTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", repository.ErrRequestTimeout, err)
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %v", repository.ErrConnection, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", repository.ErrConnection, err)
	}
	return err
}
