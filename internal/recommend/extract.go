// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package recommend

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// extractJSONObject returns the first balanced {...} span in s. Provider
// output is untrusted free text that may wrap the object in prose or code
// fences, so brace counting must honor string literals and escapes rather
// than counting every brace.
func extractJSONObject(s string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("%w: no balanced JSON object found", ErrMalformedProviderResponse)
}

// parseStructuredAnswers extracts and decodes the provider's structured
// answer mapping. Non-string values are coerced where unambiguous; an empty
// mapping counts as malformed.
func parseStructuredAnswers(text string) (map[string]string, error) {
	obj, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProviderResponse, err)
	}

	answers := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			if val != "" {
				answers[k] = val
			}
		case float64:
			answers[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			answers[k] = strconv.FormatBool(val)
		}
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: object carried no usable answers", ErrMalformedProviderResponse)
	}
	return answers, nil
}
