// Copyright (C) 2025 Mars Vista Authors.
// See LICENSE for copying information.

// Package fetch wraps all outbound HTTP calls to the NASA and PDS
// endpoints with retry, a per-host circuit breaker and a politeness pause.
// It is oblivious to payload semantics.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub001/private/sync2"
)

var (
	mon = monkit.Package()

	// Error is the default error class for the fetch package.
	Error = errs.Class("fetch")
	// ErrCircuitOpen is returned without contacting the origin while a
	// host's breaker is open.
	ErrCircuitOpen = errs.Class("circuit open")
	// ErrUpstreamStatus is returned for non-retryable upstream statuses.
	ErrUpstreamStatus = errs.Class("upstream status")
)

// Config contains configuration for the resilience layer.
type Config struct {
	RequestTimeout  time.Duration `help:"deadline for a single outbound request" default:"30s"`
	MaxRetries      int           `help:"retries after the initial attempt" default:"3"`
	BackoffInitial  time.Duration `help:"first retry backoff interval" default:"2s"`
	Pause           time.Duration `help:"politeness pause between requests to the same host" default:"1s"`
	BreakerFailures uint32        `help:"consecutive failures before a host's breaker opens" default:"5"`
	BreakerTimeout  time.Duration `help:"how long an open breaker rejects requests" default:"60s"`
	UserAgent       string        `help:"User-Agent header for upstream requests" default:"mars-vista-aggregator"`
}

// Client is a shared outbound HTTP caller. It is safe for concurrent use;
// each upstream host gets its own breaker and politeness clock.
type Client struct {
	log    *zap.Logger
	client *http.Client
	config Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	lastHit  map[string]time.Time
}

// NewClient creates a resilience-layer client.
func NewClient(log *zap.Logger, config Config) *Client {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.BackoffInitial <= 0 {
		config.BackoffInitial = 2 * time.Second
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = 5
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = time.Minute
	}
	return &Client{
		log:      log,
		client:   &http.Client{},
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		lastHit:  make(map[string]time.Time),
	}
}

// Get fetches the url and returns the response body. A 404 is not an
// error: it returns (nil, nil), meaning "no data for this unit".
func (client *Client) Get(ctx context.Context, rawurl string) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	body, err := client.Open(ctx, rawurl)
	if err != nil || body == nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, body.Close()) }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return data, nil
}

// Open fetches the url and returns the response body as a stream, for
// large payloads such as PDS index files. The caller owns the stream.
// A 404 returns (nil, nil).
func (client *Client) Open(ctx context.Context, rawurl string) (_ io.ReadCloser, err error) {
	defer mon.Task()(&ctx)(&err)

	host, err := hostOf(rawurl)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	breaker := client.breakerFor(host)

	var body io.ReadCloser

	attempt := func() error {
		result, err := breaker.Execute(func() (interface{}, error) {
			return client.fetchOnce(ctx, rawurl)
		})
		if err != nil {
			switch {
			case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
				return backoff.Permanent(ErrCircuitOpen.New("%s", host))
			case ErrUpstreamStatus.Has(err):
				return backoff.Permanent(err)
			case ctx.Err() != nil:
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if result != nil {
			body = result.(io.ReadCloser)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = client.config.BackoffInitial
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxInterval = client.config.BackoffInitial * 8
	policy.MaxElapsedTime = 0

	err = backoff.Retry(attempt, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(client.config.MaxRetries)), ctx))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// fetchOnce performs a single HTTP attempt. It returns a nil stream for
// 404 and an error for any status the caller should treat as a failure.
func (client *Client) fetchOnce(ctx context.Context, rawurl string) (io.ReadCloser, error) {
	client.politeWait(ctx, rawurl)

	ctx, cancel := context.WithTimeout(ctx, client.config.RequestTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		cancel()
		return nil, Error.Wrap(err)
	}
	req.Header.Set("User-Agent", client.config.UserAgent)

	resp, err := client.client.Do(req)
	if err != nil {
		cancel()
		return nil, Error.Wrap(err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		cancel()
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		_ = resp.Body.Close()
		cancel()
		return nil, Error.New("upstream returned %d for %s", resp.StatusCode, rawurl)
	case resp.StatusCode >= http.StatusBadRequest:
		_ = resp.Body.Close()
		cancel()
		return nil, ErrUpstreamStatus.New("upstream returned %d for %s", resp.StatusCode, rawurl)
	}

	return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, nil
}

// politeWait enforces the configured pause between successive requests to
// the same host.
func (client *Client) politeWait(ctx context.Context, rawurl string) {
	if client.config.Pause <= 0 {
		return
	}
	host, err := hostOf(rawurl)
	if err != nil {
		return
	}

	client.mu.Lock()
	last, seen := client.lastHit[host]
	now := time.Now()
	client.lastHit[host] = now
	client.mu.Unlock()

	if !seen {
		return
	}
	if wait := client.config.Pause - now.Sub(last); wait > 0 {
		sync2.Sleep(ctx, wait)
	}
}

func (client *Client) breakerFor(host string) *gobreaker.CircuitBreaker {
	client.mu.Lock()
	defer client.mu.Unlock()

	breaker, ok := client.breakers[host]
	if !ok {
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    host,
			Timeout: client.config.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= client.config.BreakerFailures
			},
			IsSuccessful: func(err error) bool {
				// Deliberate upstream refusals do not indicate host trouble.
				return err == nil || ErrUpstreamStatus.Has(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				client.log.Warn("circuit breaker state change",
					zap.String("host", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		client.breakers[host] = breaker
	}
	return breaker
}

func hostOf(rawurl string) (string, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (rc *cancelReadCloser) Close() error {
	err := rc.ReadCloser.Close()
	rc.cancel()
	return err
}
