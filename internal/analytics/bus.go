// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

// Package analytics carries recommendation usage events from the service to
// the usage log over an in-process pub/sub bus. Emission is fire-and-forget:
// a full or failing bus drops events and never touches the request path.
package analytics

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/clinicore/pumpmatch/internal/metrics"
	"github.com/clinicore/pumpmatch/internal/recommend"
)

const topicRecommendations = "recommendations"

// Bus is the in-process event bus. It implements recommend.EventRecorder on
// the publish side; the Consumer drains the subscribe side.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger zerolog.Logger
}

// NewBus creates the bus. Events published before the consumer subscribes
// are dropped, which is acceptable for usage telemetry.
func NewBus(logger zerolog.Logger) *Bus {
	ps := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, newWatermillLogger(logger))

	return &Bus{pubsub: ps, logger: logger}
}

// RecordRecommendation publishes one event. All failures are swallowed.
func (b *Bus) RecordRecommendation(ev recommend.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		metrics.AnalyticsEventsDropped.Inc()
		b.logger.Warn().Err(err).Msg("analytics event marshal failed")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(topicRecommendations, msg); err != nil {
		metrics.AnalyticsEventsDropped.Inc()
		b.logger.Warn().Err(err).Msg("analytics event publish failed")
	}
}

// Close shuts the bus down; in-flight messages are discarded.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
