// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package recommend

import "errors"

var (
	// ErrNoInput indicates the request carried none of the usable input
	// shapes. Reported to the caller, not retried.
	ErrNoInput = errors.New("recommend: no usable input supplied")

	// ErrAllCandidatesEliminated indicates the deal-breaker answers
	// removed every device from the persona's match list. The caller
	// must relax constraints; a silent empty result is never returned.
	ErrAllCandidatesEliminated = errors.New("recommend: deal-breakers eliminated every candidate device")

	// ErrUnknownPersona indicates a selected persona id that is not in
	// the catalog.
	ErrUnknownPersona = errors.New("recommend: unknown persona")

	// ErrMalformedProviderResponse indicates the provider's text carried
	// no parseable JSON object. Converted to the deterministic fallback
	// at the orchestrator boundary, never surfaced to callers.
	ErrMalformedProviderResponse = errors.New("recommend: malformed provider response")
)
