package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/fetch-service/internal/adapter/breaker"
	"github.com/user/fetch-service/internal/adapter/chromedp_transport"
	"github.com/user/fetch-service/internal/adapter/httptransport"
	"github.com/user/fetch-service/internal/adapter/identity"
	"github.com/user/fetch-service/internal/adapter/robots"
	"github.com/user/fetch-service/internal/entity"
	"github.com/user/fetch-service/internal/ratelimit"
	"github.com/user/fetch-service/internal/repository"
	"github.com/user/fetch-service/internal/usecase"
	"github.com/user/fetch-service/pkg/logger"
)

// errFetchFailed is returned when at least one URL could not be fetched.
var errFetchFailed = errors.New("one or more fetches failed")

type getOptions struct {
	policy       entity.RetryPolicy
	concurrency  int
	transport    string
	maxBodyBytes int64
	breaker      bool
	robots       bool

	rateLimiter       string
	rateLimitRequests int
	rateLimitWindow   time.Duration

	userAgents []string
	proxies    []string
	body       bool
}

// fetchOutput is one JSON line written per URL.
type fetchOutput struct {
	URL    string              `json:"url"`
	OK     bool                `json:"ok"`
	Result *entity.FetchResult `json:"result"`
	Body   string              `json:"body,omitempty"`
	Error  *fetchErrorOutput   `json:"error,omitempty"`
}

type fetchErrorOutput struct {
	Kind       string `json:"kind"`
	LastStatus int    `json:"last_status,omitempty"`
	Attempts   int    `json:"attempts"`
	Message    string `json:"message"`
}

// NewGetCmd creates the get command.
func NewGetCmd() *cobra.Command {
	opts := &getOptions{policy: entity.DefaultRetryPolicy()}

	cmd := &cobra.Command{
		Use:   "get <url> [url...]",
		Short: "Fetch URLs and print one JSON result per URL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			return runGet(cmd, opts, level, args)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.policy.MaxRetries, "max-retries", opts.policy.MaxRetries, "Retries after the first attempt")
	f.DurationVar(&opts.policy.BaseDelay, "base-delay", opts.policy.BaseDelay, "Base delay for 429 exponential backoff")
	f.DurationVar(&opts.policy.JitterRange, "jitter", opts.policy.JitterRange, "Upper bound of random jitter added to 429 backoff")
	f.IntVar(&opts.policy.MaxRedirectDepth, "max-redirects", opts.policy.MaxRedirectDepth, "Maximum redirects to follow")
	f.DurationVar(&opts.policy.ServerErrorDelay, "server-error-delay", opts.policy.ServerErrorDelay, "Fixed delay after a 5xx or network error")
	f.DurationVar(&opts.policy.Timeout, "timeout", opts.policy.Timeout, "Timeout of the first attempt")
	f.DurationVar(&opts.policy.TimeoutStep, "timeout-step", opts.policy.TimeoutStep, "Timeout increase after each network error")
	f.IntVarP(&opts.concurrency, "concurrency", "c", 4, "URLs fetched in parallel")
	f.StringVar(&opts.transport, "transport", "http", "Transport to use (http, chromedp)")
	f.Int64Var(&opts.maxBodyBytes, "max-body-bytes", 10<<20, "Response body size cap")
	f.BoolVar(&opts.breaker, "breaker", false, "Wrap the transport in a per-host circuit breaker")
	f.BoolVar(&opts.robots, "robots", true, "Skip URLs disallowed by robots.txt")
	f.StringVar(&opts.rateLimiter, "rate-limiter", "none", "Limiter (none, token_bucket, sliding_window, leaky_bucket)")
	f.IntVar(&opts.rateLimitRequests, "rate-limit-requests", 10, "Requests allowed per rate-limit window")
	f.DurationVar(&opts.rateLimitWindow, "rate-limit-window", time.Second, "Rate-limit window")
	f.StringSliceVar(&opts.userAgents, "user-agent", nil, "User-Agent to send; repeat to rotate")
	f.StringSliceVar(&opts.proxies, "proxy", nil, "Proxy URL; repeat to rotate")
	f.BoolVar(&opts.body, "body", false, "Include the response body in the output")

	return cmd
}

func runGet(cmd *cobra.Command, opts *getOptions, logLevel string, urls []string) error {
	log, err := logger.New(logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	limiter, err := ratelimit.New(opts.rateLimiter, opts.rateLimitRequests, opts.rateLimitWindow)
	if err != nil {
		return err
	}

	var transport repository.PageTransport
	switch opts.transport {
	case "http":
		transport = httptransport.New(opts.maxBodyBytes)
	case "chromedp":
		ct := chromedp_transport.NewChromedpTransport(log)
		defer ct.Close()
		transport = ct
	default:
		return fmt.Errorf("unknown transport %q", opts.transport)
	}
	if opts.breaker {
		transport = breaker.New(transport, breaker.DefaultSettings(), log)
	}

	controllerOpts := []usecase.ControllerOption{usecase.WithLogger(log)}
	if limiter != nil {
		controllerOpts = append(controllerOpts, usecase.WithLimiter(limiter))
	}
	if opts.robots {
		controllerOpts = append(controllerOpts, usecase.WithRobots(robots.NewCache(httptransport.New(opts.maxBodyBytes), 0, log)))
	}
	fetcher := usecase.NewFetchController(transport, opts.policy, controllerOpts...)
	rotator := identity.NewRotator(opts.userAgents, opts.proxies)

	outputs := make([]fetchOutput, len(urls))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(opts.concurrency, 1))
	for i, u := range urls {
		g.Go(func() error {
			outputs[i] = fetchOne(ctx, fetcher, rotator, u, opts.body)
			// A failed URL never cancels the others.
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(cmd.OutOrStdout())
	failed := 0
	for _, out := range outputs {
		if !out.OK {
			failed++
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if failed > 0 {
		log.Debug("Fetches failed", zap.Int("failed", failed), zap.Int("total", len(urls)))
		return fmt.Errorf("%w: %d of %d", errFetchFailed, failed, len(urls))
	}
	return nil
}

func fetchOne(ctx context.Context, fetcher usecase.Fetcher, rotator *identity.Rotator, url string, withBody bool) fetchOutput {
	result, err := fetcher.Fetch(ctx, url, usecase.FetchOptions{Identity: rotator.Next(entity.Identity{})})
	out := fetchOutput{URL: url, OK: err == nil, Result: result}
	if withBody && err == nil {
		out.Body = string(result.Body)
	}
	var fe *usecase.FetchError
	if errors.As(err, &fe) {
		out.Error = &fetchErrorOutput{Kind: string(fe.Kind), LastStatus: fe.LastStatus, Attempts: fe.Attempts, Message: fe.Error()}
	} else if err != nil {
		out.Error = &fetchErrorOutput{Kind: "unknown", Attempts: result.AttemptsMade(), Message: err.Error()}
	}
	return out
}
