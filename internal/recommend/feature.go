// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package recommend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clinicore/pumpmatch/internal/recommend/catalog"
)

// FeatureEngine is the deterministic weighted-dimension scorer over the
// device catalog. Answers map to dimension preferences through the
// catalog's preference table; devices are ranked by how well their
// dimension values match the accumulated preferences.
//
// The engine is pure and safe for concurrent use.
type FeatureEngine struct {
	catalog *catalog.Catalog
}

// NewFeatureEngine creates a feature engine over the given catalog.
func NewFeatureEngine(cat *catalog.Catalog) *FeatureEngine {
	return &FeatureEngine{catalog: cat}
}

// dimensionScore tracks one device's earned weight on one dimension.
type dimensionScore struct {
	dimension string
	earned    float64
}

// Score ranks all catalog devices against the answered questions and
// returns the top choice plus up to three alternatives, scores normalized
// to [0,100]. Ties break by catalog insertion order, so results are fully
// deterministic.
func (e *FeatureEngine) Score(answers map[string]string) (Recommendation, error) {
	prefs := e.accumulatePreferences(answers)
	if len(prefs) == 0 {
		return Recommendation{}, fmt.Errorf("%w: no answer mapped to a preference", ErrNoInput)
	}

	var totalWeight float64
	for _, dimPrefs := range prefs {
		for _, p := range dimPrefs {
			totalWeight += p.Weight
		}
	}

	type scored struct {
		device     catalog.Device
		score      float64
		dimensions []dimensionScore
	}

	results := make([]scored, 0, len(e.catalog.Devices))
	for _, device := range e.catalog.Devices {
		var earned float64
		var dims []dimensionScore

		for dimension, dimPrefs := range prefs {
			value := device.Dimensions[dimension]
			var dimEarned float64
			for _, p := range dimPrefs {
				dimEarned += p.Weight * valueSimilarity(value, p.Value)
			}
			if dimEarned > 0 {
				dims = append(dims, dimensionScore{dimension: dimension, earned: dimEarned})
			}
			earned += dimEarned
		}

		results = append(results, scored{
			device:     device,
			score:      100 * earned / totalWeight,
			dimensions: dims,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return e.catalog.DeviceOrder(results[i].device.ID) < e.catalog.DeviceOrder(results[j].device.ID)
	})

	top := results[0]
	rec := Recommendation{
		TopChoice: Ranked{
			DeviceID: top.device.ID,
			Score:    top.score,
			Reasons:  e.explain(top.device, top.dimensions),
		},
		KeyFactors: answeredDimensions(prefs),
		Provenance: ProvenanceRule,
	}

	for _, alt := range results[1:] {
		if len(rec.Alternatives) == 3 {
			break
		}
		rec.Alternatives = append(rec.Alternatives, Ranked{
			DeviceID: alt.device.ID,
			Score:    alt.score,
			Reasons:  e.explain(alt.device, alt.dimensions),
		})
	}

	return rec, nil
}

// accumulatePreferences folds every answered question into a per-dimension
// preference list.
func (e *FeatureEngine) accumulatePreferences(answers map[string]string) map[string][]catalog.Preference {
	prefs := make(map[string][]catalog.Preference)
	for question, answer := range answers {
		byAnswer, ok := e.catalog.Preferences[question]
		if !ok {
			continue
		}
		for _, p := range byAnswer[strings.ToLower(strings.TrimSpace(answer))] {
			prefs[p.Dimension] = append(prefs[p.Dimension], p)
		}
	}
	return prefs
}

// explain lists the top 3 dimensions by weighted contribution where the
// device's value matched a stated preference.
func (e *FeatureEngine) explain(device catalog.Device, dims []dimensionScore) []string {
	sort.Slice(dims, func(i, j int) bool {
		if dims[i].earned != dims[j].earned {
			return dims[i].earned > dims[j].earned
		}
		return dims[i].dimension < dims[j].dimension
	})

	reasons := make([]string, 0, 3)
	for _, d := range dims {
		if len(reasons) == 3 {
			break
		}
		value := device.Dimensions[d.dimension]
		reasons = append(reasons, fmt.Sprintf("%s %q matches your stated preference", d.dimension, value))
	}
	return reasons
}

// answeredDimensions returns the distinct preference dimensions in a stable
// order, used as the recommendation's key factors.
func answeredDimensions(prefs map[string][]catalog.Preference) []string {
	dims := make([]string, 0, len(prefs))
	for d := range prefs {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	return dims
}

// valueSimilarity is the normalized string similarity between a device's
// dimension value and a desired value: exact case-insensitive match scores
// 1, substring containment 0.5, anything else 0.
func valueSimilarity(deviceValue, desired string) float64 {
	dv := strings.ToLower(strings.TrimSpace(deviceValue))
	want := strings.ToLower(strings.TrimSpace(desired))
	if dv == "" || want == "" {
		return 0
	}
	if dv == want {
		return 1
	}
	if strings.Contains(dv, want) || strings.Contains(want, dv) {
		return 0.5
	}
	return 0
}
