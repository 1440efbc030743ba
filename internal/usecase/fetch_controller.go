package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/user/fetch-service/internal/entity"
	"github.com/user/fetch-service/internal/repository"
	"github.com/user/fetch-service/pkg/metrics"
	"github.com/user/fetch-service/pkg/utils"
)

// Limiter gates outgoing requests. Implementations may be shared across fetches.
type Limiter interface {
	Wait(ctx context.Context) error
}

// RobotsPolicy answers whether robots.txt lets userAgent fetch rawURL.
// Implementations return an error only when the answer could not be
// obtained; an unreachable robots.txt should be reported as allowed.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL, userAgent string) (bool, error)
}

// FetchOptions carries per-call request decoration.
type FetchOptions struct {
	Identity   entity.Identity
	Validators entity.Validators
}

// Fetcher runs a complete fetch-retry sequence for one URL.
type Fetcher interface {
	// Fetch always returns a non-nil result holding the attempt history.
	// The error is nil on success and a *FetchError otherwise.
	Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*entity.FetchResult, error)
}

type fetchController struct {
	transport repository.PageTransport
	policy    entity.RetryPolicy
	limiter   Limiter
	robots    RobotsPolicy
	logger    *zap.Logger
	wait      func(ctx context.Context, d time.Duration) error
	jitter    func(max time.Duration) time.Duration
}

// ControllerOption customizes a fetch controller.
type ControllerOption func(*fetchController)

// WithLimiter makes every request wait on l first.
func WithLimiter(l Limiter) ControllerOption {
	return func(c *fetchController) { c.limiter = l }
}

// WithRobots makes the controller consult robots.txt before the first
// request to every URL, redirect targets included.
func WithRobots(r RobotsPolicy) ControllerOption {
	return func(c *fetchController) { c.robots = r }
}

func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *fetchController) { c.logger = l }
}

// NewFetchController creates a Fetcher issuing requests through transport.
func NewFetchController(transport repository.PageTransport, policy entity.RetryPolicy, opts ...ControllerOption) Fetcher {
	c := &fetchController{
		transport: transport,
		policy:    policy.Normalize(),
		logger:    zap.NewNop(),
		wait:      sleepContext,
		jitter:    randomJitter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// step is the controller's decision about one attempt.
type step int

const (
	stepDone step = iota
	stepRedirect
	stepRetry
	stepFail
)

func (c *fetchController) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*entity.FetchResult, error) {
	start := time.Now()
	result := &entity.FetchResult{URL: rawURL}
	finish := func(err error) (*entity.FetchResult, error) {
		result.Elapsed = time.Since(start)
		kind := "success"
		var fe *FetchError
		if errors.As(err, &fe) {
			fe.Attempts = result.AttemptsMade()
			kind = string(fe.Kind)
		}
		metrics.FetchesTotal.WithLabelValues(kind).Inc()
		metrics.FetchDuration.WithLabelValues(kind).Observe(result.Elapsed.Seconds())
		return result, err
	}

	current, err := parseAbsoluteURL(rawURL)
	if err != nil {
		return finish(&FetchError{Kind: KindPermanent, URL: rawURL, Err: err})
	}

	attempt := 1
	hop := 0
	redirectsLeft := c.policy.MaxRedirectDepth
	timeout := c.policy.Timeout
	lastStatus := 0
	robotsPending := c.robots != nil

	for {
		if robotsPending {
			robotsPending = false
			if fe := c.checkRobots(ctx, rawURL, current, opts.Identity, lastStatus); fe != nil {
				return finish(fe)
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return finish(&FetchError{Kind: KindCanceled, URL: rawURL, LastStatus: lastStatus, Err: ctx.Err()})
				}
				// e.g. the next slot lies beyond the context deadline
				return finish(&FetchError{Kind: KindRateLimited, URL: rawURL, LastStatus: lastStatus, Err: err})
			}
		}

		req := &repository.TransportRequest{URL: current.String(), Timeout: timeout, Identity: opts.Identity}
		if hop == 0 {
			req.Validators = opts.Validators
		}
		rec := entity.FetchAttempt{URL: req.URL, AttemptNumber: attempt, Hop: hop}

		resp, doErr := c.transport.Do(ctx, req)
		if doErr != nil && ctx.Err() != nil {
			rec.Outcome = entity.OutcomeRetryableError
			rec.Err = doErr.Error()
			c.record(result, rec)
			return finish(&FetchError{Kind: KindCanceled, URL: rawURL, LastStatus: lastStatus, Err: ctx.Err()})
		}

		var (
			next  step
			delay time.Duration
			cause error
		)
		if doErr != nil {
			rec.Err = doErr.Error()
			if errors.Is(doErr, repository.ErrRequestTimeout) || errors.Is(doErr, repository.ErrConnection) {
				next, delay = stepRetry, c.policy.ServerErrorDelay
				timeout += c.policy.TimeoutStep
			} else {
				next, cause = stepFail, doErr
			}
		} else {
			lastStatus = resp.StatusCode
			rec.StatusCode = resp.StatusCode
			next, delay, cause = c.classify(resp.StatusCode, attempt)
		}

		switch next {
		case stepDone:
			rec.Outcome = entity.OutcomeSuccess
			c.record(result, rec)
			result.FinalURL = current.String()
			result.StatusCode = resp.StatusCode
			result.Header = resp.Header
			result.Validators = validatorsFrom(resp.Header)
			if resp.StatusCode == http.StatusNotModified {
				result.NotModified = true
			} else {
				result.Body = resp.Body
			}
			c.logger.Debug("fetch succeeded",
				zap.String("url", rawURL),
				zap.String("final_url", result.FinalURL),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempts", attempt),
			)
			return finish(nil)

		case stepRedirect:
			if redirectsLeft <= 0 {
				rec.Outcome = entity.OutcomePermanentError
				c.record(result, rec)
				return finish(&FetchError{Kind: KindTooManyRedirects, URL: rawURL, LastStatus: lastStatus,
					Err: fmt.Errorf("redirect depth %d exceeded", c.policy.MaxRedirectDepth)})
			}
			target, err := redirectTarget(current, resp.Header.Get("Location"))
			if err != nil {
				rec.Outcome = entity.OutcomePermanentError
				rec.Err = err.Error()
				c.record(result, rec)
				return finish(&FetchError{Kind: KindPermanent, URL: rawURL, LastStatus: lastStatus, Err: err})
			}
			rec.Outcome = entity.OutcomeRedirectFollowed
			c.record(result, rec)
			c.logger.Debug("following redirect",
				zap.String("from", current.String()),
				zap.String("to", target.String()),
				zap.Int("status", resp.StatusCode),
			)
			current = target
			redirectsLeft--
			hop++
			robotsPending = c.robots != nil

		case stepRetry:
			rec.Outcome = entity.OutcomeRetryableError
			if attempt > c.policy.MaxRetries {
				c.record(result, rec)
				return finish(&FetchError{Kind: KindRetriesExhausted, URL: rawURL, LastStatus: lastStatus, Err: doErr})
			}
			rec.Delay = delay
			c.record(result, rec)
			metrics.RetryDelay.WithLabelValues(retryReason(rec.StatusCode)).Observe(delay.Seconds())
			c.logger.Warn("retrying fetch",
				zap.String("url", rec.URL),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", c.policy.MaxRetries),
				zap.Int("status", rec.StatusCode),
				zap.Duration("delay", delay),
				zap.Duration("next_timeout", timeout),
			)
			if err := c.wait(ctx, delay); err != nil {
				return finish(&FetchError{Kind: KindCanceled, URL: rawURL, LastStatus: lastStatus, Err: err})
			}
			attempt++

		default:
			rec.Outcome = entity.OutcomePermanentError
			c.record(result, rec)
			return finish(&FetchError{Kind: KindPermanent, URL: rawURL, LastStatus: lastStatus, Err: cause})
		}
	}
}

// checkRobots returns a terminal error when target must not be fetched.
// Lookup failures other than cancellation fall back to fetching.
func (c *fetchController) checkRobots(ctx context.Context, rawURL string, target *url.URL, ident entity.Identity, lastStatus int) *FetchError {
	allowed, err := c.robots.Allowed(ctx, target.String(), ident.UserAgent)
	if err != nil {
		if ctx.Err() != nil {
			return &FetchError{Kind: KindCanceled, URL: rawURL, LastStatus: lastStatus, Err: ctx.Err()}
		}
		c.logger.Warn("robots.txt lookup failed, fetching anyway", zap.String("url", target.String()), zap.Error(err))
		return nil
	}
	if allowed {
		return nil
	}
	c.logger.Info("fetch disallowed by robots.txt", zap.String("url", target.String()))
	return &FetchError{Kind: KindPermanent, URL: rawURL, LastStatus: lastStatus,
		Err: fmt.Errorf("%w: %s", ErrDisallowedByRobots, target.String())}
}

// classify maps a status code to the next step and, for retries, the delay.
func (c *fetchController) classify(status, attempt int) (step, time.Duration, error) {
	switch {
	case status >= 200 && status <= 299, status == http.StatusNotModified:
		return stepDone, 0, nil
	case status == http.StatusMovedPermanently, status == http.StatusFound, status == http.StatusSeeOther,
		status == http.StatusTemporaryRedirect, status == http.StatusPermanentRedirect:
		return stepRedirect, 0, nil
	case status == http.StatusTooManyRequests:
		return stepRetry, c.rateLimitBackoff(attempt), nil
	case status == http.StatusInternalServerError, status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return stepRetry, c.policy.ServerErrorDelay, nil
	default:
		// 404, 401, 403 and anything unexpected.
		return stepFail, 0, fmt.Errorf("status %d %s", status, http.StatusText(status))
	}
}

// rateLimitBackoff is BaseDelay * 2^(attempt-1) plus jitter in [0, JitterRange).
func (c *fetchController) rateLimitBackoff(attempt int) time.Duration {
	exp := float64(c.policy.BaseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(math.MaxInt64/2) {
		exp = float64(math.MaxInt64 / 2)
	}
	return time.Duration(exp) + c.jitter(c.policy.JitterRange)
}

func (c *fetchController) record(result *entity.FetchResult, rec entity.FetchAttempt) {
	result.Attempts = append(result.Attempts, rec)
	metrics.FetchAttemptsTotal.WithLabelValues(string(rec.Outcome)).Inc()
}

func parseAbsoluteURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("malformed url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("malformed url %q: not absolute", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("malformed url %q: unsupported scheme %q", rawURL, u.Scheme)
	}
	return u, nil
}

func redirectTarget(base *url.URL, location string) (*url.URL, error) {
	if location == "" {
		return nil, errors.New("redirect without Location header")
	}
	abs, err := utils.ToAbsoluteURL(base, location)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect location %q: %w", location, err)
	}
	return parseAbsoluteURL(abs)
}

func validatorsFrom(h http.Header) entity.Validators {
	if h == nil {
		return entity.Validators{}
	}
	return entity.Validators{ETag: h.Get("ETag"), LastModified: h.Get("Last-Modified")}
}

func retryReason(status int) string {
	if status == 0 {
		return "network"
	}
	return strconv.Itoa(status)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}
