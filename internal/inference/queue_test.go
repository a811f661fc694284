// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package inference

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeProvider records call start times and returns canned responses.
type fakeProvider struct {
	mu       sync.Mutex
	starts   []time.Time
	response string
	err      error
	delay    time.Duration
}

func (f *fakeProvider) Generate(ctx context.Context, prompt, system string) (string, error) {
	f.mu.Lock()
	f.starts = append(f.starts, time.Now())
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.response, f.err
}

func (f *fakeProvider) callStarts() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.starts))
	copy(out, f.starts)
	return out
}

func startQueue(t *testing.T, cfg Config, p Provider) *Queue {
	t.Helper()
	q := NewQueue(cfg, p, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return q
}

func TestGenerateDeliversResponse(t *testing.T) {
	p := &fakeProvider{response: `{"primary_priority":"cost"}`}
	q := startQueue(t, Config{MinInterval: 0, RequestTimeout: time.Second, QueueSize: 4}, p)

	got, err := q.Generate(context.Background(), "prompt", "system")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != p.response {
		t.Errorf("Generate() = %q, want %q", got, p.response)
	}
}

func TestMinimumSpacingUnderConcurrentBurst(t *testing.T) {
	const minInterval = 40 * time.Millisecond
	const n = 4

	p := &fakeProvider{response: "ok"}
	q := startQueue(t, Config{
		MinInterval:    minInterval,
		RequestTimeout: 5 * time.Second,
		QueueSize:      16,
	}, p)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.Generate(context.Background(), "p", ""); err != nil {
				t.Errorf("Generate() error = %v", err)
			}
		}()
	}
	wg.Wait()

	starts := p.callStarts()
	if len(starts) != n {
		t.Fatalf("provider called %d times, want %d", len(starts), n)
	}
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		if gap < minInterval {
			t.Errorf("calls %d and %d spaced %v apart, want >= %v", i-1, i, gap, minInterval)
		}
	}
}

func TestRequestTimeout(t *testing.T) {
	p := &fakeProvider{response: "slow", delay: 500 * time.Millisecond}
	q := startQueue(t, Config{
		MinInterval:    0,
		CallTimeout:    time.Second,
		RequestTimeout: 50 * time.Millisecond,
		QueueSize:      4,
	}, p)

	_, err := q.Generate(context.Background(), "p", "")
	if !errors.Is(err, ErrProviderTimeout) {
		t.Errorf("Generate() error = %v, want ErrProviderTimeout", err)
	}
}

func TestAbandonedQueuedRequestSkipped(t *testing.T) {
	// The first request holds the worker long enough for the second to
	// be abandoned while still queued.
	p := &fakeProvider{response: "ok", delay: 80 * time.Millisecond}
	q := startQueue(t, Config{MinInterval: 0, RequestTimeout: 5 * time.Second, QueueSize: 4}, p)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = q.Generate(context.Background(), "first", "")
	}()

	time.Sleep(10 * time.Millisecond) // let the first request reach the worker

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Generate(ctx, "second", "")
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("abandoned Generate() error = %v, want context.Canceled", err)
	}
	wg.Wait()

	// Give the worker a chance to drain; the abandoned request must not
	// reach the provider.
	time.Sleep(50 * time.Millisecond)
	if calls := len(p.callStarts()); calls != 1 {
		t.Errorf("provider called %d times, want 1 (abandoned request skipped)", calls)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	p := &fakeProvider{err: errors.New("boom")}
	q := startQueue(t, Config{
		MinInterval:             0,
		RequestTimeout:          time.Second,
		QueueSize:               16,
		BreakerFailureThreshold: 3,
		BreakerOpenTimeout:      time.Minute,
	}, p)

	for i := 0; i < 3; i++ {
		if _, err := q.Generate(context.Background(), "p", ""); !errors.Is(err, ErrProviderUnavailable) {
			t.Fatalf("call %d error = %v, want ErrProviderUnavailable", i, err)
		}
	}

	// Breaker is now open: the provider must not be reached again.
	before := len(p.callStarts())
	if _, err := q.Generate(context.Background(), "p", ""); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("open-breaker call error = %v, want ErrProviderUnavailable", err)
	}
	if after := len(p.callStarts()); after != before {
		t.Errorf("provider reached while breaker open: %d -> %d calls", before, after)
	}
}

func TestQueueFull(t *testing.T) {
	// No worker running: the lane fills up.
	q := NewQueue(Config{MinInterval: 0, RequestTimeout: time.Second, QueueSize: 1}, &fakeProvider{}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	go func() { _, _ = q.Generate(ctx, "fill", "") }()
	time.Sleep(5 * time.Millisecond)

	_, err := q.Generate(ctx, "overflow", "")
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Generate() error = %v, want ErrQueueFull", err)
	}
}

func TestDisabledProvider(t *testing.T) {
	q := startQueue(t, Config{MinInterval: 0, RequestTimeout: time.Second, QueueSize: 4}, DisabledProvider{})

	_, err := q.Generate(context.Background(), "p", "")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Generate() error = %v, want ErrProviderUnavailable", err)
	}
}
