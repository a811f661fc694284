// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package recommend

import (
	"errors"
	"testing"

	"github.com/clinicore/pumpmatch/internal/recommend/catalog"
)

func TestPersonaRecommendationsCuratedOrder(t *testing.T) {
	e := NewPersonaEngine(catalog.Default())

	rec, err := e.GetRecommendations("budget-conscious", nil, nil)
	if err != nil {
		t.Fatalf("GetRecommendations() error = %v", err)
	}
	if rec.TopChoice.DeviceID != "omnipod-5" {
		t.Errorf("top choice = %q, want omnipod-5", rec.TopChoice.DeviceID)
	}
	if rec.TopChoice.Score != 90 {
		t.Errorf("top score = %v, want 90", rec.TopChoice.Score)
	}
	if len(rec.Alternatives) != 2 {
		t.Fatalf("alternatives = %d, want 2", len(rec.Alternatives))
	}
	if rec.Alternatives[0].DeviceID != "beta-bionics-ilet" || rec.Alternatives[1].DeviceID != "medtronic-780g" {
		t.Errorf("alternatives order = %q, %q", rec.Alternatives[0].DeviceID, rec.Alternatives[1].DeviceID)
	}
	if rec.Provenance != ProvenanceRule {
		t.Errorf("provenance = %q, want rule", rec.Provenance)
	}
}

func TestPersonaUnknownID(t *testing.T) {
	e := NewPersonaEngine(catalog.Default())

	_, err := e.GetRecommendations("night-owl", nil, nil)
	if !errors.Is(err, ErrUnknownPersona) {
		t.Errorf("GetRecommendations() error = %v, want ErrUnknownPersona", err)
	}
}

func TestPersonaDealBreakerUnion(t *testing.T) {
	e := NewPersonaEngine(catalog.Default())

	// Phone dependence removes mobi and twiist; the waterproof requirement
	// removes tslim as well. Only the pod survives the tech-forward list.
	rec, err := e.GetRecommendations("tech-forward",
		[]string{"no_phone_dependence", "must_be_waterproof"}, nil)
	if err != nil {
		t.Fatalf("GetRecommendations() error = %v", err)
	}
	if rec.TopChoice.DeviceID != "omnipod-5" {
		t.Errorf("top choice = %q, want omnipod-5", rec.TopChoice.DeviceID)
	}
	if len(rec.Alternatives) != 0 {
		t.Errorf("alternatives = %d, want 0", len(rec.Alternatives))
	}
}

func TestPersonaAllCandidatesEliminated(t *testing.T) {
	e := NewPersonaEngine(catalog.Default())

	// Every tight-control match is a tubed pump.
	_, err := e.GetRecommendations("tight-control", []string{"no_tubing"}, nil)
	if !errors.Is(err, ErrAllCandidatesEliminated) {
		t.Errorf("GetRecommendations() error = %v, want ErrAllCandidatesEliminated", err)
	}
}

func TestPersonaUnknownDealBreakerIgnored(t *testing.T) {
	e := NewPersonaEngine(catalog.Default())

	rec, err := e.GetRecommendations("budget-conscious", []string{"hates_mondays"}, nil)
	if err != nil {
		t.Fatalf("GetRecommendations() error = %v", err)
	}
	if rec.TopChoice.DeviceID != "omnipod-5" {
		t.Errorf("top choice = %q, want omnipod-5", rec.TopChoice.DeviceID)
	}
}

func TestPersonaClinicalBoostAppliesReason(t *testing.T) {
	e := NewPersonaEngine(catalog.Default())

	rec, err := e.GetRecommendations("budget-conscious", nil,
		map[string]string{"carb_counting": "unable"})
	if err != nil {
		t.Fatalf("GetRecommendations() error = %v", err)
	}

	var ilet *Ranked
	if rec.TopChoice.DeviceID == "beta-bionics-ilet" {
		ilet = &rec.TopChoice
	}
	for i := range rec.Alternatives {
		if rec.Alternatives[i].DeviceID == "beta-bionics-ilet" {
			ilet = &rec.Alternatives[i]
		}
	}
	if ilet == nil {
		t.Fatal("iLet missing from result")
	}
	if ilet.Score != 90 { // 83 curated + 7 boost
		t.Errorf("boosted score = %v, want 90", ilet.Score)
	}
	found := false
	for _, r := range ilet.Reasons {
		if r == "Meal announcements replace carb counting" {
			found = true
		}
	}
	if !found {
		t.Errorf("boost reason missing from %v", ilet.Reasons)
	}
}

func TestPersonaBoostTieKeepsCuratedOrder(t *testing.T) {
	e := NewPersonaEngine(catalog.Default())

	// tslim moves from 87 to 93, tying the 780G; the curated leader stays
	// in front on a tie.
	rec, err := e.GetRecommendations("tight-control", nil,
		map[string]string{"hypo_frequency": "frequent"})
	if err != nil {
		t.Fatalf("GetRecommendations() error = %v", err)
	}
	if rec.TopChoice.DeviceID != "medtronic-780g" {
		t.Errorf("top choice = %q, want medtronic-780g", rec.TopChoice.DeviceID)
	}
	if rec.Alternatives[0].DeviceID != "tandem-tslim-x2" || rec.Alternatives[0].Score != 93 {
		t.Errorf("first alternative = %q score %v, want tandem-tslim-x2 at 93",
			rec.Alternatives[0].DeviceID, rec.Alternatives[0].Score)
	}
}

func TestApplyClinicalRulesReordersAndCaps(t *testing.T) {
	e := NewPersonaEngine(catalog.Default())

	candidates := []Ranked{
		{DeviceID: "omnipod-5", Score: 80},
		{DeviceID: "tandem-tslim-x2", Score: 78},
		{DeviceID: "medtronic-780g", Score: 96},
	}
	out := e.ApplyClinicalRules(candidates, map[string]string{
		"hypo_frequency": "frequent", // tslim +6 -> 84
		"a1c":            "above_9",  // 780g +8 -> capped at 100
	})

	if out[0].DeviceID != "medtronic-780g" || out[0].Score != 100 {
		t.Errorf("out[0] = %q score %v, want medtronic-780g capped at 100", out[0].DeviceID, out[0].Score)
	}
	if out[1].DeviceID != "tandem-tslim-x2" || out[1].Score != 84 {
		t.Errorf("out[1] = %q score %v, want tandem-tslim-x2 at 84", out[1].DeviceID, out[1].Score)
	}
	if out[2].DeviceID != "omnipod-5" || out[2].Score != 80 {
		t.Errorf("out[2] = %q score %v, want omnipod-5 at 80", out[2].DeviceID, out[2].Score)
	}
}

func TestApplyClinicalRulesEmptyAnswerIsNoMatch(t *testing.T) {
	e := NewPersonaEngine(catalog.Default())

	out := e.ApplyClinicalRules(
		[]Ranked{{DeviceID: "medtronic-780g", Score: 50}},
		map[string]string{"a1c": ""},
	)
	if out[0].Score != 50 {
		t.Errorf("score = %v, want unchanged 50", out[0].Score)
	}
}

func TestFindBestPersona(t *testing.T) {
	e := NewPersonaEngine(catalog.Default())

	tests := []struct {
		name     string
		keywords []string
		want     string // persona id, "" for nil
	}{
		{"activity terms", []string{"swimming", "gym"}, "active-lifestyle"},
		{"cost terms beat single overlap", []string{"cost", "budget", "swim"}, "budget-conscious"},
		{"substring both directions", []string{"automation"}, "tech-forward"},
		{"no overlap", []string{"gibberish", "zzz"}, ""},
		{"empty input", nil, ""},
		{"blank keywords ignored", []string{"", "  "}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.FindBestPersona(tt.keywords)
			switch {
			case tt.want == "" && got != nil:
				t.Errorf("FindBestPersona() = %q, want nil", got.ID)
			case tt.want != "" && got == nil:
				t.Errorf("FindBestPersona() = nil, want %q", tt.want)
			case tt.want != "" && got.ID != tt.want:
				t.Errorf("FindBestPersona() = %q, want %q", got.ID, tt.want)
			}
		})
	}
}
