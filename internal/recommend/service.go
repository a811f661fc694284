// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package recommend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/pumpmatch/internal/metrics"
)

// Store is the service's view of the durable recommendation cache.
// Implemented by storage.Store.
type Store interface {
	Insert(ctx context.Context, rec *CachedRecord) error
	FindBestMatch(ctx context.Context, profile Profile, minSimilarity float64) (*CachedRecord, float64, error)
	Touch(ctx context.Context, id string) error
}

// Event is one recommendation call's analytics record.
type Event struct {
	ID          string        `json:"id"`
	RequestType string        `json:"requestType"` // hit | miss
	Similarity  float64       `json:"similarity"`
	Latency     time.Duration `json:"latency"`
	Approach    Approach      `json:"approach"`
	DeviceID    string        `json:"deviceId"`
	At          time.Time     `json:"at"`
}

// EventRecorder receives analytics events. Emission is fire-and-forget;
// implementations must never block the recommendation path.
type EventRecorder interface {
	RecordRecommendation(ev Event)
}

// ServiceConfig holds the cache policy thresholds.
type ServiceConfig struct {
	// StrongHitThreshold is the similarity at or above which a cached
	// recommendation is reused (adapted). Default 0.85.
	StrongHitThreshold float64

	// ScanThreshold is the minimum similarity FindBestMatch considers at
	// all. Matches in [ScanThreshold, StrongHitThreshold) are computed
	// but discarded; close is not close enough to trust verbatim.
	// Default 0.75.
	ScanThreshold float64
}

// DefaultServiceConfig returns the production thresholds.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		StrongHitThreshold: 0.85,
		ScanThreshold:      0.75,
	}
}

// Service is the caller-facing recommendation entry point: a profile
// similarity cache in front of the orchestrator. Safe for concurrent use;
// all shared state lives in the store.
type Service struct {
	store  Store
	orch   *Orchestrator
	events EventRecorder
	cfg    ServiceConfig
	logger zerolog.Logger
}

// NewService wires the cache policy around the orchestrator. events may be
// nil when no analytics sink is configured.
func NewService(store Store, orch *Orchestrator, events EventRecorder, cfg ServiceConfig, logger zerolog.Logger) *Service {
	if cfg.StrongHitThreshold <= 0 {
		cfg.StrongHitThreshold = 0.85
	}
	if cfg.ScanThreshold <= 0 {
		cfg.ScanThreshold = 0.75
	}
	return &Service{
		store:  store,
		orch:   orch,
		events: events,
		cfg:    cfg,
		logger: logger,
	}
}

// Recommend serves one request through the cache policy: a strong hit
// returns an adapted copy of the cached recommendation, anything less runs
// the orchestrator. Store failures degrade to a miss; only orchestrator
// input errors surface to the caller.
func (s *Service) Recommend(ctx context.Context, req UnifiedRecommendationRequest) (*UnifiedRecommendationResult, error) {
	start := time.Now()

	profile := req.Profile
	if len(profile) == 0 {
		profile = deriveProfile(req)
	}

	if len(profile) > 0 {
		match, sim, err := s.store.FindBestMatch(ctx, profile, s.cfg.ScanThreshold)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache lookup failed, treating as miss")
		} else if match != nil && sim >= s.cfg.StrongHitThreshold {
			return s.serveHit(ctx, profile, match, sim, start), nil
		}
	}

	metrics.CacheMisses.Inc()
	result, err := s.orch.Recommend(ctx, req)
	if err != nil {
		metrics.ObserveRecommend("miss", start)
		return nil, err
	}

	if len(profile) > 0 {
		now := time.Now()
		rec := &CachedRecord{
			ID:             uuid.NewString(),
			ProfileHash:    profile.Hash(),
			Profile:        profile.Clone(),
			Recommendation: result.recommendation(),
			Approach:       result.Approach,
			CreatedAt:      now,
			LastUsedAt:     now,
			UseCount:       1,
		}
		if err := s.store.Insert(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Str("record", rec.ID).Msg("caching recommendation failed")
		}
	}

	s.emit(Event{
		ID:          uuid.NewString(),
		RequestType: "miss",
		Latency:     time.Since(start),
		Approach:    result.Approach,
		DeviceID:    result.TopRecommendation.DeviceID,
		At:          start,
	})
	metrics.ObserveRecommend("miss", start)
	return result, nil
}

// serveHit adapts the cached recommendation for the new profile. The cached
// instance is never returned or mutated; the adapted copy is persisted as
// its own record so near-duplicates accumulate independent entries.
func (s *Service) serveHit(ctx context.Context, profile Profile, match *CachedRecord, sim float64, start time.Time) *UnifiedRecommendationResult {
	metrics.CacheHits.Inc()
	metrics.CacheSimilarity.Observe(sim)

	rec := match.Recommendation.Clone()
	if clause := synthesizeInsights(profile); clause != "" {
		if rec.PersonalizedInsights != "" {
			rec.PersonalizedInsights += ". " + clause
		} else {
			rec.PersonalizedInsights = clause
		}
	}
	rec.Provenance = ProvenanceCache

	if err := s.store.Touch(ctx, match.ID); err != nil {
		s.logger.Warn().Err(err).Str("record", match.ID).Msg("touch on cache hit failed")
	}

	now := time.Now()
	adapted := &CachedRecord{
		ID:             uuid.NewString(),
		ProfileHash:    profile.Hash(),
		Profile:        profile.Clone(),
		Recommendation: rec,
		Approach:       match.Approach,
		CreatedAt:      now,
		LastUsedAt:     now,
		UseCount:       1,
	}
	if err := s.store.Insert(ctx, adapted); err != nil {
		s.logger.Warn().Err(err).Str("record", adapted.ID).Msg("persisting adapted recommendation failed")
	}

	approach := match.Approach
	if approach == "" {
		approach = ApproachHybrid
	}
	result := resultFrom(rec, approach,
		fmt.Sprintf("Adapted from a prior recommendation for a closely similar profile (similarity %.2f)", sim))
	result.Provenance = ProvenanceCache
	result.CacheSimilarity = sim

	s.emit(Event{
		ID:          uuid.NewString(),
		RequestType: "hit",
		Similarity:  sim,
		Latency:     time.Since(start),
		Approach:    approach,
		DeviceID:    result.TopRecommendation.DeviceID,
		At:          start,
	})
	metrics.ObserveRecommend("hit", start)
	return result
}

// emit sends an analytics event. Failures are the recorder's problem;
// nothing here may affect the recommendation call.
func (s *Service) emit(ev Event) {
	if s.events == nil {
		return
	}
	s.events.RecordRecommendation(ev)
}

// insightTerm maps a distinguishing signal in the new profile's text to a
// fixed insight phrase.
type insightTerm struct {
	term   string
	phrase string
}

var insightTerms = []insightTerm{
	{"insurance", "coverage constraints were noted"},
	{"cost", "cost sensitivity was considered"},
	{"active", "an active lifestyle was factored in"},
	{"swim", "regular water exposure was factored in"},
	{"automat", "a preference for automation was noted"},
	{"tight", "a tight-control goal was acknowledged"},
	{"perfect", "a tight-control goal was acknowledged"},
}

// synthesizeInsights scans the profile's category text for distinguishing
// terms and joins one fixed phrase per present term with commas.
func synthesizeInsights(profile Profile) string {
	var text strings.Builder
	for _, resp := range profile {
		text.WriteString(strings.ToLower(resp.MainText))
		text.WriteByte(' ')
		text.WriteString(strings.ToLower(resp.FollowUpText))
		text.WriteByte(' ')
	}
	haystack := text.String()

	var phrases []string
	seen := make(map[string]struct{})
	for _, it := range insightTerms {
		if !strings.Contains(haystack, it.term) {
			continue
		}
		if _, dup := seen[it.phrase]; dup {
			continue
		}
		seen[it.phrase] = struct{}{}
		phrases = append(phrases, it.phrase)
	}
	if len(phrases) == 0 {
		return ""
	}
	return "For your situation, " + strings.Join(phrases, ", ")
}

// deriveProfile builds a sparse profile from whatever the request carries
// so cache similarity still has something to work with.
func deriveProfile(req UnifiedRecommendationRequest) Profile {
	now := time.Now()
	profile := make(Profile)

	if desc := strings.TrimSpace(req.UserDescription); desc != "" {
		profile[CategoryLifestyle] = CategoryResponse{MainText: desc, CapturedAt: now}
	}

	if req.SelectedPersona != "" {
		topics := make([]string, 0, 1+len(req.DealBreakers))
		topics = append(topics, req.SelectedPersona)
		topics = append(topics, req.DealBreakers...)
		profile[CategoryLifestyle] = CategoryResponse{
			MainText:       "persona " + req.SelectedPersona,
			SelectedTopics: topics,
			CapturedAt:     now,
		}
		if len(req.ClinicalFactors) > 0 {
			profile[CategorySupport] = CategoryResponse{
				MainText:   joinAnswers(req.ClinicalFactors),
				CapturedAt: now,
			}
		}
	}

	// Sorted question order keeps derived profiles, and their hashes,
	// stable across calls.
	questions := make([]string, 0, len(req.TraditionalAnswers))
	for q := range req.TraditionalAnswers {
		questions = append(questions, q)
	}
	sort.Strings(questions)
	for _, question := range questions {
		cat := categoryForQuestion(question)
		resp := profile[cat]
		if resp.MainText != "" {
			resp.MainText += " "
		}
		resp.MainText += question + " " + req.TraditionalAnswers[question]
		resp.CapturedAt = now
		profile[cat] = resp
	}

	return profile
}

// categoryForQuestion routes a questionnaire id to the profile category its
// text should accumulate under.
func categoryForQuestion(question string) string {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "priority") || strings.Contains(q, "cost") || strings.Contains(q, "battery"):
		return CategoryCost
	case strings.Contains(q, "activity") || strings.Contains(q, "water") || strings.Contains(q, "form"):
		return CategoryLifestyle
	case strings.Contains(q, "algorithm") || strings.Contains(q, "control"):
		return CategoryAlgorithm
	case strings.Contains(q, "tech") || strings.Contains(q, "phone"):
		return CategoryComplexity
	default:
		return CategoryEaseToStart
	}
}

func joinAnswers(answers map[string]string) string {
	pairs := make([]string, 0, len(answers))
	for k, v := range answers {
		pairs = append(pairs, k+" "+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, " ")
}
