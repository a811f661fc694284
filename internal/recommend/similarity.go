// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package recommend

import "strings"

// categoryWeights are the fixed similarity weights per profile category.
// They sum to 1 over the full vocabulary and are renormalized over the
// categories actually present in a comparison.
var categoryWeights = map[string]float64{
	CategoryCost:        0.20,
	CategoryLifestyle:   0.25,
	CategoryAlgorithm:   0.25,
	CategoryEaseToStart: 0.10,
	CategoryComplexity:  0.10,
	CategorySupport:     0.10,
}

// Weight of the text component vs the selected-topics component inside one
// category comparison.
const (
	textSimWeight  = 0.6
	topicSimWeight = 0.4
)

// Similarity computes the weighted similarity of two profiles in [0,1].
//
// Per shared category it blends token-overlap similarity of the main text
// with Jaccard similarity of the selected topics. A category present on only
// one side contributes 0 to the comparison; a category absent from both
// sides is excluded and its weight redistributed proportionally over the
// remaining compared categories. Symmetric by construction.
func Similarity(a, b Profile) float64 {
	var weightedSum, totalWeight float64

	for category, weight := range categoryWeights {
		respA, okA := a[category]
		respB, okB := b[category]

		if !okA && !okB {
			continue // excluded, weight redistributed via renormalization
		}

		if !okA || !okB {
			totalWeight += weight // one-sided category contributes 0
			continue
		}

		catSim, ok := categorySimilarity(respA, respB)
		if !ok {
			continue // no signal on either side, exclude like both-absent
		}
		totalWeight += weight
		weightedSum += weight * catSim
	}

	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// categorySimilarity blends the text and topic components of one shared
// category. A component that is empty on both sides carries no signal and
// its weight shifts to the other component; this keeps Similarity(a, a) == 1
// for any profile with content. A component empty on exactly one side scores
// 0 at full weight. Returns ok=false when both components are empty on both
// sides.
func categorySimilarity(a, b CategoryResponse) (float64, bool) {
	tokensA := tokenize(a.MainText)
	tokensB := tokenize(b.MainText)
	textActive := len(tokensA) > 0 || len(tokensB) > 0
	topicActive := len(a.SelectedTopics) > 0 || len(b.SelectedTopics) > 0

	if !textActive && !topicActive {
		return 0, false
	}

	var sum, weight float64
	if textActive {
		sum += textSimWeight * textSimilarity(a.MainText, b.MainText)
		weight += textSimWeight
	}
	if topicActive {
		sum += topicSimWeight * topicSimilarity(a.SelectedTopics, b.SelectedTopics)
		weight += topicSimWeight
	}
	return sum / weight, true
}

// textSimilarity is a token-overlap similarity over lower-cased tokens of
// length > 2: |intersection| / max(|tokensA|, |tokensB|). Zero when either
// token set is empty.
func textSimilarity(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	var intersection int
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			intersection++
		}
	}

	maxLen := len(tokensA)
	if len(tokensB) > maxLen {
		maxLen = len(tokensB)
	}
	return float64(intersection) / float64(maxLen)
}

// topicSimilarity is the standard Jaccard similarity of two topic sets,
// zero when either set is empty.
func topicSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[strings.ToLower(t)] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[strings.ToLower(t)] = struct{}{}
	}

	var intersection int
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// tokenize lower-cases the text and returns the set of tokens longer than
// two characters.
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(text)) {
		field = strings.Trim(field, ".,;:!?()[]\"'")
		if len(field) > 2 {
			tokens[field] = struct{}{}
		}
	}
	return tokens
}
