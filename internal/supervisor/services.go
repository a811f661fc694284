// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPService runs an http.Server as a suture.Service with graceful
// shutdown on context cancellation.
type HTTPService struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          zerolog.Logger
}

// NewHTTPService wraps a configured http.Server.
func NewHTTPService(server *http.Server, shutdownTimeout time.Duration, logger zerolog.Logger) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// Serve listens until the context is canceled, then shuts down gracefully.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("http server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("http server shutdown incomplete")
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return ctx.Err()
		}
		return err
	}
}

func (s *HTTPService) String() string { return "http-server" }

// PrunableStore is the pruner's view of the recommendation store.
type PrunableStore interface {
	Prune(ctx context.Context, maxEntries int) (int, error)
}

// StorePruner periodically trims the recommendation store down to its
// retention cap. Pruning is opportunistic; a failed pass is retried on the
// next tick.
type StorePruner struct {
	store      PrunableStore
	maxEntries int
	interval   time.Duration
	logger     zerolog.Logger
}

// NewStorePruner creates the pruner service.
func NewStorePruner(store PrunableStore, maxEntries int, interval time.Duration, logger zerolog.Logger) *StorePruner {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StorePruner{
		store:      store,
		maxEntries: maxEntries,
		interval:   interval,
		logger:     logger,
	}
}

// Serve prunes on every tick until the context is canceled.
func (p *StorePruner) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			deleted, err := p.store.Prune(ctx, p.maxEntries)
			if err != nil {
				p.logger.Warn().Err(err).Msg("store prune failed")
				continue
			}
			if deleted > 0 {
				p.logger.Info().Int("deleted", deleted).Msg("pruned recommendation store")
			}
		}
	}
}

func (p *StorePruner) String() string { return "store-pruner" }
