// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicore/pumpmatch/internal/metrics"
	"github.com/clinicore/pumpmatch/internal/recommend/catalog"
)

// TextGenerator is the orchestrator's view of the inference lane: a prompt
// goes in, untrusted text comes out. Implemented by inference.Queue.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, systemInstruction string) (string, error)
}

// Orchestrator selects exactly one strategy per request and runs it. The
// dispatch order is fixed: selected persona, then free-text description,
// then traditional answers. Provider failures and malformed responses on
// the free-text path collapse to a pseudo-random catalog fallback; they
// never surface as hard errors.
type Orchestrator struct {
	catalog   *catalog.Catalog
	personas  *PersonaEngine
	features  *FeatureEngine
	generator TextGenerator
	logger    zerolog.Logger

	// rngMu guards rng; math/rand sources are not safe for concurrent
	// use. The source is seedable so fallback selection is testable.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewOrchestrator wires the strategy engines together. seed selects the
// fallback device sequence; pass 0 for a time-based seed.
func NewOrchestrator(cat *catalog.Catalog, personas *PersonaEngine, features *FeatureEngine, generator TextGenerator, seed int64, logger zerolog.Logger) *Orchestrator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Orchestrator{
		catalog:   cat,
		personas:  personas,
		features:  features,
		generator: generator,
		logger:    logger,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Recommend dispatches the request to one strategy and returns its result.
// ErrNoInput, ErrUnknownPersona and ErrAllCandidatesEliminated propagate to
// the caller; everything else degrades to a ranked result.
func (o *Orchestrator) Recommend(ctx context.Context, req UnifiedRecommendationRequest) (*UnifiedRecommendationResult, error) {
	switch {
	case req.SelectedPersona != "":
		return o.personaPath(req)
	case strings.TrimSpace(req.UserDescription) != "":
		return o.freeTextPath(ctx, req)
	case len(req.TraditionalAnswers) > 0:
		return o.featurePath(req.TraditionalAnswers)
	default:
		return nil, ErrNoInput
	}
}

func (o *Orchestrator) personaPath(req UnifiedRecommendationRequest) (*UnifiedRecommendationResult, error) {
	rec, err := o.personas.GetRecommendations(req.SelectedPersona, req.DealBreakers, req.ClinicalFactors)
	if err != nil {
		return nil, err
	}
	return resultFrom(rec, ApproachPersona,
		fmt.Sprintf("Curated persona shortlist for %q with deal-breaker filtering and clinical adjustments", req.SelectedPersona)), nil
}

func (o *Orchestrator) featurePath(answers map[string]string) (*UnifiedRecommendationResult, error) {
	rec, err := o.features.Score(answers)
	if err != nil {
		return nil, err
	}
	return resultFrom(rec, ApproachFeature,
		fmt.Sprintf("Weighted dimension scoring over %d answered questions", len(answers))), nil
}

// freeTextPath resolves a description either through keyword-matched
// personas or, failing that, by asking the provider to structure the text
// for feature scoring. Only this path talks to the provider, and every
// failure past the keyword stage ends in the fallback.
func (o *Orchestrator) freeTextPath(ctx context.Context, req UnifiedRecommendationRequest) (*UnifiedRecommendationResult, error) {
	keywords := o.scanKeywords(req.UserDescription)

	if persona := o.personas.FindBestPersona(keywords); persona != nil {
		rec, err := o.personas.GetRecommendations(persona.ID, req.DealBreakers, req.ClinicalFactors)
		if err == nil {
			return resultFrom(rec, ApproachHybrid,
				fmt.Sprintf("Description matched the %q profile on %s; curated shortlist applied",
					persona.Name, strings.Join(keywords, ", "))), nil
		}
		// Elimination wiped the matched persona's list. A hard
		// constraint the patient stated must not be silently ignored.
		if errors.Is(err, ErrAllCandidatesEliminated) {
			return nil, err
		}
		o.logger.Warn().Err(err).Str("persona", persona.ID).Msg("keyword-matched persona path failed")
	}

	answers, err := o.structureDescription(ctx, req.UserDescription)
	if err != nil {
		o.logger.Warn().Err(err).Msg("free-text structuring failed, serving fallback")
		metrics.FallbacksServed.Inc()
		return o.fallback("Assistant unavailable; a general catalog suggestion was served"), nil
	}

	rec, err := o.features.Score(answers)
	if err != nil {
		o.logger.Warn().Err(err).Msg("structured answers unusable, serving fallback")
		metrics.FallbacksServed.Inc()
		return o.fallback("Assistant response was unusable; a general catalog suggestion was served"), nil
	}

	result := resultFrom(rec, ApproachHybrid,
		"Description structured by the assistant, then scored on weighted device dimensions")
	result.Provenance = ProvenanceInference
	return result, nil
}

// scanKeywords runs every catalog keyword bucket's pattern over the
// description and returns the names of the buckets that fired, in catalog
// order.
func (o *Orchestrator) scanKeywords(description string) []string {
	var hits []string
	for i := range o.catalog.KeywordBuckets {
		b := &o.catalog.KeywordBuckets[i]
		if b.Pattern().MatchString(description) {
			hits = append(hits, b.Name)
		}
	}
	return hits
}

// structureDescription asks the provider to map free text onto the feature
// questionnaire and defensively parses the reply.
func (o *Orchestrator) structureDescription(ctx context.Context, description string) (map[string]string, error) {
	text, err := o.generator.Generate(ctx, o.structuringPrompt(description), structuringSystemInstruction)
	if err != nil {
		return nil, err
	}
	return parseStructuredAnswers(text)
}

const structuringSystemInstruction = "You translate a patient's free-text description of their insulin pump needs " +
	"into questionnaire answers. Respond with a single JSON object and nothing else. " +
	"Use only the question ids and answer values listed in the prompt; omit questions the text does not address."

// structuringPrompt lists the questionnaire vocabulary in a stable order so
// prompts are reproducible.
func (o *Orchestrator) structuringPrompt(description string) string {
	questions := make([]string, 0, len(o.catalog.Preferences))
	for q := range o.catalog.Preferences {
		questions = append(questions, q)
	}
	sort.Strings(questions)

	var b strings.Builder
	b.WriteString("Questions and allowed answers:\n")
	for _, q := range questions {
		answers := make([]string, 0, len(o.catalog.Preferences[q]))
		for a := range o.catalog.Preferences[q] {
			answers = append(answers, a)
		}
		sort.Strings(answers)
		fmt.Fprintf(&b, "- %s: %s\n", q, strings.Join(answers, " | "))
	}
	b.WriteString("\nPatient description:\n")
	b.WriteString(description)
	return b.String()
}

// fallback builds the pseudo-random catalog recommendation served when the
// free-text path cannot complete. The structure is always fully populated;
// only the device choice is random.
func (o *Orchestrator) fallback(methodology string) *UnifiedRecommendationResult {
	o.rngMu.Lock()
	pick := o.rng.Intn(len(o.catalog.Devices))
	o.rngMu.Unlock()

	device := o.catalog.Devices[pick]
	top := Ranked{
		DeviceID: device.ID,
		Score:    55,
		Reasons: []string{
			"Suggested from the general catalog while detailed matching is unavailable",
			"Review with your care team before deciding",
		},
	}

	// Alternatives follow catalog order after the pick, wrapped.
	var alts []Ranked
	for off := 1; off <= 3 && off < len(o.catalog.Devices); off++ {
		alt := o.catalog.Devices[(pick+off)%len(o.catalog.Devices)]
		alts = append(alts, Ranked{
			DeviceID: alt.ID,
			Score:    float64(55 - 5*off),
			Reasons:  []string{"General catalog alternative"},
		})
	}

	return &UnifiedRecommendationResult{
		Approach:          ApproachHybrid,
		Confidence:        40,
		TopRecommendation: top,
		Alternatives:      alts,
		KeyFactors:        []string{"general catalog suggestion"},
		Methodology:       methodology,
		Provenance:        ProvenanceInference,
	}
}

// resultFrom lifts an engine Recommendation into the caller-facing shape.
// Confidence is the rounded top score clamped to [0,100].
func resultFrom(rec Recommendation, approach Approach, methodology string) *UnifiedRecommendationResult {
	confidence := int(math.Round(rec.TopChoice.Score))
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return &UnifiedRecommendationResult{
		Approach:             approach,
		Confidence:           confidence,
		TopRecommendation:    rec.TopChoice,
		Alternatives:         rec.Alternatives,
		KeyFactors:           rec.KeyFactors,
		PersonalizedInsights: rec.PersonalizedInsights,
		Methodology:          methodology,
		Provenance:           rec.Provenance,
	}
}
