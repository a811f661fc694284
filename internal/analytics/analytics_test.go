// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicore/pumpmatch/internal/recommend"
)

func TestUsageLogAggregates(t *testing.T) {
	log := NewUsageLog(10)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	log.Append(recommend.Event{RequestType: "miss", Latency: 200 * time.Millisecond,
		Approach: recommend.ApproachFeature, At: base})
	log.Append(recommend.Event{RequestType: "hit", Similarity: 0.9, Latency: 10 * time.Millisecond,
		Approach: recommend.ApproachFeature, At: base.Add(time.Minute)})
	log.Append(recommend.Event{RequestType: "hit", Similarity: 0.86, Latency: 30 * time.Millisecond,
		Approach: recommend.ApproachPersona, At: base.Add(2 * time.Minute)})

	s := log.Stats()
	if s.Total != 3 || s.Hits != 2 || s.Misses != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", s.Total, s.Hits, s.Misses)
	}
	if s.HitRate < 0.66 || s.HitRate > 0.67 {
		t.Errorf("hit rate = %v, want 2/3", s.HitRate)
	}
	if s.AvgSimilarity != 0.88 {
		t.Errorf("avg similarity = %v, want 0.88", s.AvgSimilarity)
	}
	if s.AvgLatencyMS != 80 {
		t.Errorf("avg latency = %v ms, want 80", s.AvgLatencyMS)
	}
	if s.ByApproach[recommend.ApproachFeature] != 2 || s.ByApproach[recommend.ApproachPersona] != 1 {
		t.Errorf("by approach = %v", s.ByApproach)
	}
	if !s.LastEventAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("last event at = %v", s.LastEventAt)
	}
}

func TestUsageLogBoundedRetention(t *testing.T) {
	log := NewUsageLog(3)
	for i := 0; i < 5; i++ {
		log.Append(recommend.Event{ID: string(rune('a' + i)), RequestType: "miss"})
	}

	recent := log.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("retained %d events, want 3", len(recent))
	}
	if recent[0].ID != "e" || recent[2].ID != "c" {
		t.Errorf("recent order = %q..%q, want e..c", recent[0].ID, recent[2].ID)
	}

	// Aggregates still cover everything appended.
	if s := log.Stats(); s.Total != 5 {
		t.Errorf("total = %d, want 5", s.Total)
	}
}

func TestBusDeliversToConsumer(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()
	log := NewUsageLog(10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewConsumer(bus, log, zerolog.Nop()).Serve(ctx)
	}()

	// Give the subscription a moment to attach; pre-subscribe events are
	// dropped by design.
	time.Sleep(20 * time.Millisecond)

	bus.RecordRecommendation(recommend.Event{ID: "ev1", RequestType: "hit", Similarity: 0.9})
	bus.RecordRecommendation(recommend.Event{ID: "ev2", RequestType: "miss"})

	deadline := time.After(2 * time.Second)
	for log.Stats().Total < 2 {
		select {
		case <-deadline:
			t.Fatalf("consumer recorded %d events, want 2", log.Stats().Total)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done

	recent := log.Recent(2)
	if recent[0].ID != "ev2" || recent[1].ID != "ev1" {
		t.Errorf("recent = %q, %q, want ev2, ev1", recent[0].ID, recent[1].ID)
	}
}

func TestRecordRecommendationWithoutSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < 100; i++ {
			bus.RecordRecommendation(recommend.Event{RequestType: "miss"})
		}
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing without a subscriber blocked")
	}
}
