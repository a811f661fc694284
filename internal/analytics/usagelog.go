// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package analytics

import (
	"sync"
	"time"

	"github.com/clinicore/pumpmatch/internal/recommend"
)

// Stats is the aggregate view over recorded events, served by the stats
// endpoint.
type Stats struct {
	Total         uint64                        `json:"total"`
	Hits          uint64                        `json:"hits"`
	Misses        uint64                        `json:"misses"`
	HitRate       float64                       `json:"hitRate"`
	AvgSimilarity float64                       `json:"avgSimilarity"` // over hits
	AvgLatencyMS  float64                       `json:"avgLatencyMs"`
	ByApproach    map[recommend.Approach]uint64 `json:"byApproach"`
	LastEventAt   time.Time                     `json:"lastEventAt,omitempty"`
}

// UsageLog is a bounded in-memory log of recommendation events with running
// aggregates. The consumer appends; the API reads.
type UsageLog struct {
	mu       sync.RWMutex
	events   []recommend.Event
	capacity int

	total         uint64
	hits          uint64
	misses        uint64
	sumSimilarity float64
	sumLatency    time.Duration
	byApproach    map[recommend.Approach]uint64
	lastEventAt   time.Time
}

// NewUsageLog creates a log retaining at most capacity recent events.
// Aggregates cover every event ever appended, not just the retained window.
func NewUsageLog(capacity int) *UsageLog {
	if capacity <= 0 {
		capacity = 1024
	}
	return &UsageLog{
		capacity:   capacity,
		byApproach: make(map[recommend.Approach]uint64),
	}
}

// Append records one event.
func (l *UsageLog) Append(ev recommend.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, ev)
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}

	l.total++
	switch ev.RequestType {
	case "hit":
		l.hits++
		l.sumSimilarity += ev.Similarity
	case "miss":
		l.misses++
	}
	l.sumLatency += ev.Latency
	if ev.Approach != "" {
		l.byApproach[ev.Approach]++
	}
	if ev.At.After(l.lastEventAt) {
		l.lastEventAt = ev.At
	}
}

// Stats returns the aggregate view.
func (l *UsageLog) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Stats{
		Total:       l.total,
		Hits:        l.hits,
		Misses:      l.misses,
		ByApproach:  make(map[recommend.Approach]uint64, len(l.byApproach)),
		LastEventAt: l.lastEventAt,
	}
	for k, v := range l.byApproach {
		s.ByApproach[k] = v
	}
	if l.total > 0 {
		s.HitRate = float64(l.hits) / float64(l.total)
		s.AvgLatencyMS = float64(l.sumLatency.Milliseconds()) / float64(l.total)
	}
	if l.hits > 0 {
		s.AvgSimilarity = l.sumSimilarity / float64(l.hits)
	}
	return s
}

// Recent returns up to n most recent events, newest first.
func (l *UsageLog) Recent(n int) []recommend.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]recommend.Event, 0, n)
	for i := len(l.events) - 1; i >= len(l.events)-n; i-- {
		out = append(out, l.events[i])
	}
	return out
}
