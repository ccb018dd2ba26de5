package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"pump-sniper-go/internal/errs"
	"pump-sniper-go/internal/logger"
)

// ErrEndpointsUnavailable is the aggregate failure after every endpoint was tried.
var ErrEndpointsUnavailable = errors.New("RPC endpoints unavailable")

// Pool sends JSON-RPC requests across a fixed list of endpoints, first success wins.
type Pool struct {
	endpoints []string
	rotate    bool
	counter   atomic.Uint64

	transport     Transport
	direct        *HTTPTransport
	limiter       *rate.Limiter
	skipPreflight bool
	pollInterval  time.Duration

	logger *logger.Logger
}

// PoolConfig contains configuration for the endpoint pool
type PoolConfig struct {
	Endpoints     []string
	Rotate        bool
	Timeout       time.Duration
	APIKey        string
	SkipPreflight bool
}

// Option customises a Pool at construction time.
type Option func(*Pool)

// WithTransport tries t before the direct HTTP call on every endpoint.
func WithTransport(t Transport) Option {
	return func(p *Pool) { p.transport = t }
}

// WithRateLimit caps outbound attempts at rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(p *Pool) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithPollInterval sets how often ConfirmTransaction polls signature statuses.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) { p.pollInterval = d }
}

// NewPool creates a new endpoint pool
func NewPool(cfg PoolConfig, log *logger.Logger, opts ...Option) (*Pool, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errs.Errorf(errs.Config, "new rpc pool", "at least one endpoint is required")
	}

	var headers map[string]string
	if cfg.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}

	p := &Pool{
		endpoints:     append([]string(nil), cfg.Endpoints...),
		rotate:        cfg.Rotate,
		direct:        NewHTTPTransport(cfg.Timeout, headers),
		skipPreflight: cfg.SkipPreflight,
		pollInterval:  500 * time.Millisecond,
		logger:        log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Endpoints returns a copy of the configured endpoint list.
func (p *Pool) Endpoints() []string {
	return append([]string(nil), p.endpoints...)
}

// nextStart returns the sweep offset for the next request.
func (p *Pool) nextStart() int {
	if !p.rotate {
		return 0
	}
	return int((p.counter.Add(1) - 1) % uint64(len(p.endpoints)))
}

// Request sends method to each endpoint in rotation order until one returns a
// well-formed, error-free envelope whose result decodes into out. A result of
// the wrong shape counts as that endpoint's failure.
func (p *Pool) Request(ctx context.Context, method string, params []interface{}, out interface{}) error {
	start := p.nextStart()
	n := len(p.endpoints)

	var lastErr error
	for attempt := 0; attempt < n; attempt++ {
		endpoint := p.endpoints[(start+attempt)%n]

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return errs.E(errs.Network, method, err)
			}
		}

		resp, err := p.try(ctx, endpoint, method, params)
		if err == nil {
			if out == nil {
				return nil
			}
			if err = json.Unmarshal(resp.Result, out); err == nil {
				return nil
			}
			err = fmt.Errorf("failed to decode result: %w", err)
		}

		lastErr = err
		p.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"method":   method,
			"attempt":  attempt + 1,
			"error":    err.Error(),
		}).Warn("⚠️ RPC endpoint failed, trying next")

		if ctx.Err() != nil {
			return errs.E(errs.Network, method, ctx.Err())
		}
	}

	return errs.E(errs.Rpc, method, fmt.Errorf("%w: last error: %v", ErrEndpointsUnavailable, lastErr))
}

// try runs one endpoint: the injected transport first, then the direct call if
// the transport itself failed.
func (p *Pool) try(ctx context.Context, endpoint, method string, params []interface{}) (*Response, error) {
	if p.transport != nil {
		raw, err := p.transport.Call(ctx, endpoint, method, params)
		if err == nil {
			return decodeEnvelope(raw)
		}
		p.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"method":   method,
		}).WithError(err).Debug("Transport failed, falling back to direct call")
	}

	raw, err := p.direct.Call(ctx, endpoint, method, params)
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(raw)
}

func decodeEnvelope(raw []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("response has neither result nor error")
	}
	return &resp, nil
}

// WithRetry runs fn up to attempts times while it fails with a rate-limit
// error, sleeping base*attempt between tries.
func WithRetry(ctx context.Context, attempts int, base time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !errs.IsRateLimited(err) || attempt == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return errs.E(errs.Network, "retry", ctx.Err())
		case <-time.After(base * time.Duration(attempt)):
		}
	}
	return err
}
