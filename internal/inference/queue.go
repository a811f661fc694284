// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package inference

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/clinicore/pumpmatch/internal/metrics"
)

// Config configures the serialization queue in front of the provider.
type Config struct {
	// MinInterval is the minimum delay between provider calls, measured
	// from the end of the previous call. The provider enforces a
	// requests-per-minute quota; this lane is the only place that quota
	// is spent.
	MinInterval time.Duration

	// CallTimeout bounds one provider call once dequeued.
	CallTimeout time.Duration

	// RequestTimeout bounds a caller's total wait: queue turn plus call.
	RequestTimeout time.Duration

	// QueueSize is the pending-request capacity.
	QueueSize int

	// BreakerFailureThreshold is the number of consecutive provider
	// failures before the circuit opens.
	BreakerFailureThreshold uint32

	// BreakerOpenTimeout is the open-state duration before half-open.
	BreakerOpenTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinInterval:             1200 * time.Millisecond,
		CallTimeout:             25 * time.Second,
		RequestTimeout:          30 * time.Second,
		QueueSize:               64,
		BreakerFailureThreshold: 5,
		BreakerOpenTimeout:      30 * time.Second,
	}
}

// outcome is what the worker delivers back to a waiting caller.
type outcome struct {
	text string
	err  error
}

// request is one queued generation request. The result channel is buffered
// so the worker never blocks delivering to an abandoned caller; the result
// of an abandoned in-flight call is simply discarded.
type request struct {
	ctx    context.Context
	prompt string
	system string
	result chan outcome
}

// Queue is the single-lane, rate-limited serialization queue wrapping the
// external inference provider. Multiple callers may enqueue concurrently;
// exactly one provider call is ever in flight, and consecutive calls are
// spaced by at least MinInterval measured end-to-start.
//
// Queue implements suture.Service; the worker runs under the supervisor.
type Queue struct {
	cfg      Config
	provider Provider
	requests chan *request
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[string]
	logger   zerolog.Logger
}

// NewQueue creates the queue. It does not start the worker; run Serve under
// a supervisor (or directly in tests).
func NewQueue(cfg Config, provider Provider, logger zerolog.Logger) *Queue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}

	q := &Queue{
		cfg:      cfg,
		provider: provider,
		requests: make(chan *request, cfg.QueueSize),
		logger:   logger,
	}

	// The limiter guards the provider's requests-per-minute quota; the
	// end-of-call spacing below is the stricter invariant and usually
	// dominates.
	if cfg.MinInterval > 0 {
		q.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	q.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "inference-provider",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("inference breaker state change")
		},
	})

	return q
}

// Generate submits a prompt through the lane and waits for the result. The
// caller's total wait is bounded by RequestTimeout; expiry yields
// ErrProviderTimeout. A caller that abandons a queued request causes it to
// be skipped without side effects; an in-flight call completes and its
// result is discarded.
func (q *Queue) Generate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, q.cfg.RequestTimeout)
	defer cancel()

	req := &request{
		ctx:    ctx,
		prompt: prompt,
		system: systemInstruction,
		result: make(chan outcome, 1),
	}

	select {
	case q.requests <- req:
		metrics.QueueDepth.Set(float64(len(q.requests)))
	default:
		return "", ErrQueueFull
	}

	select {
	case out := <-req.result:
		return out.text, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrProviderTimeout
		}
		return "", ctx.Err()
	}
}

// Serve drains the queue until the context is canceled. It implements
// suture.Service.
func (q *Queue) Serve(ctx context.Context) error {
	var lastCallEnd time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-q.requests:
			metrics.QueueDepth.Set(float64(len(q.requests)))

			// Abandoned while queued: skip without side effects.
			if req.ctx.Err() != nil {
				continue
			}

			if err := q.waitTurn(ctx, lastCallEnd); err != nil {
				return err
			}

			// Re-check after the spacing wait; the caller may have
			// given up while we slept.
			if req.ctx.Err() != nil {
				continue
			}

			text, err := q.callProvider(req)
			lastCallEnd = time.Now()

			req.result <- outcome{text: text, err: err}
		}
	}
}

// waitTurn enforces the quota limiter and the minimum end-of-call spacing.
func (q *Queue) waitTurn(ctx context.Context, lastCallEnd time.Time) error {
	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if q.cfg.MinInterval <= 0 || lastCallEnd.IsZero() {
		return nil
	}
	wait := q.cfg.MinInterval - time.Since(lastCallEnd)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// callProvider issues one call through the circuit breaker.
func (q *Queue) callProvider(req *request) (string, error) {
	callCtx := req.ctx
	if q.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, q.cfg.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := q.breaker.Execute(func() (string, error) {
		return q.provider.Generate(callCtx, req.prompt, req.system)
	})
	metrics.ProviderCallDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.ProviderCalls.WithLabelValues("ok").Inc()
		return text, nil
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ProviderCalls.WithLabelValues("breaker_open").Inc()
		return "", ErrProviderUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		metrics.ProviderCalls.WithLabelValues("timeout").Inc()
		return "", ErrProviderTimeout
	default:
		metrics.ProviderCalls.WithLabelValues("error").Inc()
		q.logger.Warn().Err(err).Msg("provider call failed")
		return "", errors.Join(ErrProviderUnavailable, err)
	}
}
