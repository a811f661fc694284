// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package recommend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinicore/pumpmatch/internal/recommend/catalog"
)

// fakeGenerator is an in-package TextGenerator double.
type fakeGenerator struct {
	text  string
	err   error
	calls int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt, system string) (string, error) {
	f.calls++
	return f.text, f.err
}

func newTestOrchestrator(gen TextGenerator) *Orchestrator {
	cat := catalog.Default()
	return NewOrchestrator(cat, NewPersonaEngine(cat), NewFeatureEngine(cat), gen, 1, zerolog.Nop())
}

func TestOrchestratorDispatchPersona(t *testing.T) {
	gen := &fakeGenerator{}
	o := newTestOrchestrator(gen)

	res, err := o.Recommend(context.Background(), UnifiedRecommendationRequest{
		SelectedPersona: "budget-conscious",
	})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if res.Approach != ApproachPersona {
		t.Errorf("approach = %q, want persona", res.Approach)
	}
	if res.TopRecommendation.DeviceID != "omnipod-5" {
		t.Errorf("top = %q, want omnipod-5", res.TopRecommendation.DeviceID)
	}
	if res.Confidence != 90 {
		t.Errorf("confidence = %d, want 90", res.Confidence)
	}
	if res.Methodology == "" {
		t.Error("methodology is empty")
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times on the persona path", gen.calls)
	}
}

func TestOrchestratorDispatchTraditional(t *testing.T) {
	o := newTestOrchestrator(&fakeGenerator{})

	res, err := o.Recommend(context.Background(), UnifiedRecommendationRequest{
		TraditionalAnswers: map[string]string{"primary_priority": "cost"},
	})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if res.Approach != ApproachFeature {
		t.Errorf("approach = %q, want feature", res.Approach)
	}
	if res.Provenance != ProvenanceRule {
		t.Errorf("provenance = %q, want rule", res.Provenance)
	}
}

func TestOrchestratorNoInput(t *testing.T) {
	o := newTestOrchestrator(&fakeGenerator{})

	_, err := o.Recommend(context.Background(), UnifiedRecommendationRequest{})
	if !errors.Is(err, ErrNoInput) {
		t.Errorf("Recommend() error = %v, want ErrNoInput", err)
	}

	_, err = o.Recommend(context.Background(), UnifiedRecommendationRequest{UserDescription: "   "})
	if !errors.Is(err, ErrNoInput) {
		t.Errorf("blank description error = %v, want ErrNoInput", err)
	}
}

func TestOrchestratorFreeTextKeywordMatch(t *testing.T) {
	gen := &fakeGenerator{}
	o := newTestOrchestrator(gen)

	res, err := o.Recommend(context.Background(), UnifiedRecommendationRequest{
		UserDescription: "I swim most mornings and spend weekends outdoors",
	})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if res.Approach != ApproachHybrid {
		t.Errorf("approach = %q, want hybrid", res.Approach)
	}
	if res.TopRecommendation.DeviceID != "omnipod-5" {
		t.Errorf("top = %q, want omnipod-5 (active-lifestyle shortlist)", res.TopRecommendation.DeviceID)
	}
	if !strings.Contains(res.Methodology, "Active") {
		t.Errorf("methodology %q does not name the matched profile", res.Methodology)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times despite keyword match", gen.calls)
	}
}

func TestOrchestratorFreeTextEliminationPropagates(t *testing.T) {
	o := newTestOrchestrator(&fakeGenerator{})

	// "tight control" matches the tight-control shortlist, which is all
	// tubed pumps; the stated hard constraint must surface, not vanish.
	_, err := o.Recommend(context.Background(), UnifiedRecommendationRequest{
		UserDescription: "I want really tight control of my numbers",
		DealBreakers:    []string{"no_tubing"},
	})
	if !errors.Is(err, ErrAllCandidatesEliminated) {
		t.Errorf("Recommend() error = %v, want ErrAllCandidatesEliminated", err)
	}
}

func TestOrchestratorFreeTextInferencePath(t *testing.T) {
	gen := &fakeGenerator{text: `The answers are {"primary_priority": "cost"} as requested.`}
	o := newTestOrchestrator(gen)

	res, err := o.Recommend(context.Background(), UnifiedRecommendationRequest{
		UserDescription: "my hands shake and I struggle with numbers",
	})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("generator called %d times, want 1", gen.calls)
	}
	if res.Approach != ApproachHybrid {
		t.Errorf("approach = %q, want hybrid", res.Approach)
	}
	if res.Provenance != ProvenanceInference {
		t.Errorf("provenance = %q, want inference", res.Provenance)
	}
	if res.TopRecommendation.DeviceID != "omnipod-5" {
		t.Errorf("top = %q, want omnipod-5 (cost scoring)", res.TopRecommendation.DeviceID)
	}
}

func TestOrchestratorFallbackOnProviderError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("provider exploded")}
	o := newTestOrchestrator(gen)

	res, err := o.Recommend(context.Background(), UnifiedRecommendationRequest{
		UserDescription: "my hands shake and I struggle with numbers",
	})
	if err != nil {
		t.Fatalf("Recommend() error = %v, fallback must not surface errors", err)
	}
	assertFallbackShape(t, o, res)
}

func TestOrchestratorFallbackOnNonJSONResponse(t *testing.T) {
	gen := &fakeGenerator{text: "I am sorry, I cannot help with that."}
	o := newTestOrchestrator(gen)

	res, err := o.Recommend(context.Background(), UnifiedRecommendationRequest{
		UserDescription: "my hands shake and I struggle with numbers",
	})
	if err != nil {
		t.Fatalf("Recommend() error = %v, fallback must not surface errors", err)
	}
	assertFallbackShape(t, o, res)
}

func TestOrchestratorFallbackOnUnusableAnswers(t *testing.T) {
	gen := &fakeGenerator{text: `{"favorite_color": "blue"}`}
	o := newTestOrchestrator(gen)

	res, err := o.Recommend(context.Background(), UnifiedRecommendationRequest{
		UserDescription: "my hands shake and I struggle with numbers",
	})
	if err != nil {
		t.Fatalf("Recommend() error = %v, fallback must not surface errors", err)
	}
	assertFallbackShape(t, o, res)
}

func TestOrchestratorFallbackSeedDeterministic(t *testing.T) {
	req := UnifiedRecommendationRequest{
		UserDescription: "my hands shake and I struggle with numbers",
	}

	first, err := newTestOrchestrator(&fakeGenerator{err: errors.New("down")}).
		Recommend(context.Background(), req)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	second, err := newTestOrchestrator(&fakeGenerator{err: errors.New("down")}).
		Recommend(context.Background(), req)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if first.TopRecommendation.DeviceID != second.TopRecommendation.DeviceID {
		t.Errorf("same seed picked %q then %q", first.TopRecommendation.DeviceID, second.TopRecommendation.DeviceID)
	}
}

// assertFallbackShape checks the fallback result is fully populated and
// internally consistent.
func assertFallbackShape(t *testing.T, o *Orchestrator, res *UnifiedRecommendationResult) {
	t.Helper()

	if _, ok := o.catalog.DeviceByID(res.TopRecommendation.DeviceID); !ok {
		t.Errorf("fallback picked unknown device %q", res.TopRecommendation.DeviceID)
	}
	if res.Provenance != ProvenanceInference {
		t.Errorf("provenance = %q, want inference", res.Provenance)
	}
	if res.Confidence <= 0 || res.Confidence > 100 {
		t.Errorf("confidence = %d out of range", res.Confidence)
	}
	if len(res.TopRecommendation.Reasons) == 0 {
		t.Error("fallback top choice has no reasons")
	}
	if res.Methodology == "" {
		t.Error("fallback methodology is empty")
	}
	prev := res.TopRecommendation.Score
	for i, alt := range res.Alternatives {
		if alt.Score > prev {
			t.Errorf("alternative %d score %v exceeds previous %v", i, alt.Score, prev)
		}
		prev = alt.Score
	}
}
