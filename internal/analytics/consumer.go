// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package analytics

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/clinicore/pumpmatch/internal/recommend"
)

// Consumer drains the bus into the usage log. It implements suture.Service
// and runs under the supervisor for the process lifetime.
type Consumer struct {
	bus    *Bus
	log    *UsageLog
	logger zerolog.Logger
}

// NewConsumer creates the consumer for a bus and usage log.
func NewConsumer(bus *Bus, log *UsageLog, logger zerolog.Logger) *Consumer {
	return &Consumer{bus: bus, log: log, logger: logger}
}

// Serve subscribes and processes events until the context is canceled.
// Undecodable messages are acked and dropped; one bad payload must not wedge
// the subscription.
func (c *Consumer) Serve(ctx context.Context) error {
	msgs, err := c.bus.pubsub.Subscribe(ctx, topicRecommendations)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return ctx.Err()
			}
			var ev recommend.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				c.logger.Warn().Err(err).Str("message", msg.UUID).Msg("dropping undecodable analytics event")
				msg.Ack()
				continue
			}
			c.log.Append(ev)
			msg.Ack()
		}
	}
}

func (c *Consumer) String() string { return "analytics-consumer" }
