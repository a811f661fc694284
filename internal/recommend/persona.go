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

// PersonaEngine serves curated persona-to-device match tables with
// deal-breaker elimination and clinical-rule score boosting. Pure and safe
// for concurrent use; all tables come from the injected read-only catalog.
type PersonaEngine struct {
	catalog *catalog.Catalog
}

// NewPersonaEngine creates a persona engine over the given catalog.
func NewPersonaEngine(cat *catalog.Catalog) *PersonaEngine {
	return &PersonaEngine{catalog: cat}
}

// GetRecommendations returns the persona's curated shortlist with
// deal-breaker elimination and clinical boosts applied, re-sorted by boosted
// score. When elimination removes every candidate it returns
// ErrAllCandidatesEliminated: no device satisfies all hard constraints, and
// that is a reportable condition, never a silent empty result.
func (e *PersonaEngine) GetRecommendations(personaID string, dealBreakers []string, clinicalAnswers map[string]string) (Recommendation, error) {
	persona, ok := e.catalog.PersonaByID(personaID)
	if !ok {
		return Recommendation{}, fmt.Errorf("%w: %q", ErrUnknownPersona, personaID)
	}

	eliminated := e.eliminatedDevices(dealBreakers)

	candidates := make([]Ranked, 0, len(persona.Matches))
	for _, m := range persona.Matches {
		if _, out := eliminated[m.DeviceID]; out {
			continue
		}
		reasons := make([]string, len(m.Reasons))
		copy(reasons, m.Reasons)
		candidates = append(candidates, Ranked{DeviceID: m.DeviceID, Score: m.Score, Reasons: reasons})
	}

	if len(candidates) == 0 {
		return Recommendation{}, fmt.Errorf("%w: persona %q with deal-breakers %v",
			ErrAllCandidatesEliminated, personaID, dealBreakers)
	}

	candidates = e.ApplyClinicalRules(candidates, clinicalAnswers)

	rec := Recommendation{
		TopChoice:  candidates[0],
		KeyFactors: []string{"persona: " + persona.Name},
		Provenance: ProvenanceRule,
	}
	if len(candidates) > 1 {
		limit := len(candidates)
		if limit > 4 {
			limit = 4
		}
		rec.Alternatives = candidates[1:limit]
	}
	return rec, nil
}

// eliminatedDevices unions the eliminated device sets of every supplied
// deal-breaker answer. Unknown triggers are ignored.
func (e *PersonaEngine) eliminatedDevices(dealBreakers []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, trigger := range dealBreakers {
		rule, ok := e.catalog.Elimination(strings.TrimSpace(trigger))
		if !ok {
			continue
		}
		for _, id := range rule.EliminatedDeviceIDs {
			out[id] = struct{}{}
		}
	}
	return out
}

// ApplyClinicalRules adds each matching clinical rule's boost to the
// corresponding candidate's score and re-sorts descending. Boosts are soft
// preferences, additive and capped at 100; ties keep the curated order.
func (e *PersonaEngine) ApplyClinicalRules(candidates []Ranked, clinicalAnswers map[string]string) []Ranked {
	if len(clinicalAnswers) == 0 {
		return candidates
	}

	for _, rule := range e.catalog.ClinicalRules {
		if !rule.Matches(clinicalAnswers) {
			continue
		}
		for i := range candidates {
			if candidates[i].DeviceID != rule.DeviceID {
				continue
			}
			candidates[i].Score += rule.Boost
			if candidates[i].Score > 100 {
				candidates[i].Score = 100
			}
			if rule.Reason != "" {
				candidates[i].Reasons = append(candidates[i].Reasons, rule.Reason)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// FindBestPersona scores every persona by counting case-insensitive
// substring overlaps between the supplied keywords and the persona's
// keyword list, returning the best scorer or nil when the best score is 0.
func (e *PersonaEngine) FindBestPersona(keywords []string) *catalog.Persona {
	var best *catalog.Persona
	bestScore := 0

	for i := range e.catalog.Personas {
		persona := &e.catalog.Personas[i]
		score := 0
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			for _, pk := range persona.Keywords {
				pk = strings.ToLower(pk)
				if strings.Contains(pk, kw) || strings.Contains(kw, pk) {
					score++
				}
			}
		}
		if score > bestScore {
			bestScore = score
			best = persona
		}
	}

	return best
}
