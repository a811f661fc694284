// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

// Package inference owns the boundary to the external text-generation
// provider. All calls go through the single-lane Queue; no caller may reach
// the provider directly.
package inference

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrProviderTimeout indicates a caller's wait (queue turn plus the
	// call itself) exceeded the request timeout. Not retried
	// automatically.
	ErrProviderTimeout = errors.New("inference: provider call timed out")

	// ErrProviderUnavailable indicates the provider is disabled, the
	// circuit breaker is open, or the call failed outright.
	ErrProviderUnavailable = errors.New("inference: provider unavailable")

	// ErrQueueFull indicates the pending-request lane is at capacity.
	ErrQueueFull = errors.New("inference: queue full")
)

// Provider is the opaque boundary to the external inference service: text
// prompt in, text response out, fails or succeeds. Responses are untrusted
// and possibly non-JSON; parsing them defensively is the caller's job.
type Provider interface {
	Generate(ctx context.Context, prompt, systemInstruction string) (string, error)
}

// OpenAIProvider implements Provider over any OpenAI-compatible chat
// completion endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider builds a provider for the given endpoint. baseURL may be
// empty for the default OpenAI endpoint.
func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Generate issues one chat completion call.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemInstruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// DisabledProvider always fails. Deployments without an API key run with
// it; the orchestrator's deterministic fallback then serves every
// inference-path request.
type DisabledProvider struct{}

// Generate always returns ErrProviderUnavailable.
func (DisabledProvider) Generate(context.Context, string, string) (string, error) {
	return "", ErrProviderUnavailable
}
