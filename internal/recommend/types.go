// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package recommend

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/goccy/go-json"
)

// Profile categories form a fixed vocabulary. A category record may carry
// empty text but must exist to participate in similarity scoring.
const (
	CategoryCost        = "cost"
	CategoryLifestyle   = "lifestyle"
	CategoryAlgorithm   = "algorithm"
	CategoryEaseToStart = "easeToStart"
	CategoryComplexity  = "complexity"
	CategorySupport     = "support"
)

// CategoryResponse is a patient's answer set for one profile category.
type CategoryResponse struct {
	MainText       string    `json:"mainText"`
	FollowUpText   string    `json:"followUpText,omitempty"`
	SelectedTopics []string  `json:"selectedTopics,omitempty"`
	CapturedAt     time.Time `json:"capturedAt"`
}

// Profile maps category names to responses. Profiles are created per request
// and never mutated after creation.
type Profile map[string]CategoryResponse

// Hash returns a stable content hash of the profile, used as the cached
// record's profileHash. Categories are serialized in sorted order so the
// hash is independent of map iteration.
func (p Profile) Hash() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		resp := p[k]
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(resp.MainText))
		h.Write([]byte{0})
		h.Write([]byte(resp.FollowUpText))
		h.Write([]byte{0})
		for _, topic := range resp.SelectedTopics {
			h.Write([]byte(topic))
			h.Write([]byte{1})
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Clone returns a deep copy of the profile.
func (p Profile) Clone() Profile {
	out := make(Profile, len(p))
	for k, v := range p {
		topics := make([]string, len(v.SelectedTopics))
		copy(topics, v.SelectedTopics)
		v.SelectedTopics = topics
		out[k] = v
	}
	return out
}

// Provenance records where a recommendation came from.
type Provenance string

const (
	// ProvenanceCache marks a recommendation adapted from a cached one.
	ProvenanceCache Provenance = "cache"
	// ProvenanceInference marks a recommendation involving the external
	// inference provider (including its deterministic fallback).
	ProvenanceInference Provenance = "inference"
	// ProvenanceRule marks a recommendation from deterministic rule
	// evaluation (persona or feature scoring).
	ProvenanceRule Provenance = "rule"
)

// Ranked is one scored device candidate.
type Ranked struct {
	DeviceID string   `json:"deviceId"`
	Score    float64  `json:"score"` // 0-100
	Reasons  []string `json:"reasons,omitempty"`
}

// Clone returns a deep copy.
func (r Ranked) Clone() Ranked {
	reasons := make([]string, len(r.Reasons))
	copy(reasons, r.Reasons)
	r.Reasons = reasons
	return r
}

// Recommendation is a ranked device result. TopChoice.Score is always >=
// Alternatives[0].Score when alternatives are present, and alternatives are
// in non-increasing score order.
type Recommendation struct {
	TopChoice            Ranked     `json:"topChoice"`
	Alternatives         []Ranked   `json:"alternatives,omitempty"`
	KeyFactors           []string   `json:"keyFactors,omitempty"`
	PersonalizedInsights string     `json:"personalizedInsights,omitempty"`
	Provenance           Provenance `json:"provenance"`
}

// Clone returns a deep copy. Cached recommendations are always cloned before
// adaptation; callers never receive the stored instance.
func (r Recommendation) Clone() Recommendation {
	out := r
	out.TopChoice = r.TopChoice.Clone()
	out.Alternatives = make([]Ranked, len(r.Alternatives))
	for i, alt := range r.Alternatives {
		out.Alternatives[i] = alt.Clone()
	}
	out.KeyFactors = make([]string, len(r.KeyFactors))
	copy(out.KeyFactors, r.KeyFactors)
	return out
}

// CachedRecord is a stored (profile, recommendation) pair with usage
// metadata. Records are owned exclusively by the store and mutated only
// through its Touch/Prune operations.
type CachedRecord struct {
	ID             string         `json:"id"`
	ProfileHash    string         `json:"profileHash"`
	Profile        Profile        `json:"profile"`
	Recommendation Recommendation `json:"recommendation"`
	Approach       Approach       `json:"approach,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastUsedAt     time.Time      `json:"lastUsedAt"`
	UseCount       uint64         `json:"useCount"`
}

// Approach identifies the strategy that produced a result.
type Approach string

const (
	ApproachPersona Approach = "persona"
	ApproachFeature Approach = "feature"
	ApproachHybrid  Approach = "hybrid"
)

// UnifiedRecommendationRequest is the caller-facing request. At most one of
// the three input shapes may be supplied: a selected persona (with optional
// deal-breakers and clinical factors), a free-text description, or
// traditional questionnaire answers. Supplying none is ErrNoInput.
type UnifiedRecommendationRequest struct {
	SelectedPersona string            `json:"selectedPersona,omitempty"`
	DealBreakers    []string          `json:"dealBreakers,omitempty"`
	ClinicalFactors map[string]string `json:"clinicalFactors,omitempty"`

	UserDescription string `json:"userDescription,omitempty"`

	TraditionalAnswers map[string]string `json:"traditionalAnswers,omitempty"`

	// Profile carries the structured category responses used for cache
	// similarity and insight adaptation. Optional; a sparse profile is
	// derived from the other inputs when absent.
	Profile Profile `json:"profile,omitempty"`
}

// UnifiedRecommendationResult is the caller-facing result.
type UnifiedRecommendationResult struct {
	Approach             Approach   `json:"approach"`
	Confidence           int        `json:"confidence"` // 0-100
	TopRecommendation    Ranked     `json:"topRecommendation"`
	Alternatives         []Ranked   `json:"alternatives,omitempty"` // 0-3 entries
	KeyFactors           []string   `json:"keyFactors,omitempty"`
	PersonalizedInsights string     `json:"personalizedInsights,omitempty"`
	Methodology          string     `json:"methodology"`
	Provenance           Provenance `json:"provenance"`
	CacheSimilarity      float64    `json:"cacheSimilarity,omitempty"`
}

// recommendation flattens a result back into the stored Recommendation shape.
func (r *UnifiedRecommendationResult) recommendation() Recommendation {
	return Recommendation{
		TopChoice:            r.TopRecommendation,
		Alternatives:         r.Alternatives,
		KeyFactors:           r.KeyFactors,
		PersonalizedInsights: r.PersonalizedInsights,
		Provenance:           r.Provenance,
	}
}

// MarshalBinary implements encoding for store serialization.
func (r *CachedRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalBinary implements decoding for store serialization.
func (r *CachedRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}
