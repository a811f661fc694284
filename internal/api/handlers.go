// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

// Package api is the HTTP surface of the recommendation service: the
// recommend operation, catalog browsing, usage stats and cache maintenance.
package api

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/clinicore/pumpmatch/internal/analytics"
	"github.com/clinicore/pumpmatch/internal/recommend"
	"github.com/clinicore/pumpmatch/internal/recommend/catalog"
	"github.com/clinicore/pumpmatch/internal/validation"
)

// maxBodyBytes bounds inbound request bodies.
const maxBodyBytes = 1 << 20

// Recommender is the handler's view of the recommendation service.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.UnifiedRecommendationRequest) (*recommend.UnifiedRecommendationResult, error)
}

// CacheStore is the handler's view of the durable store for maintenance
// operations.
type CacheStore interface {
	Clear(ctx context.Context) error
	Count() int
}

// Handler serves the API routes.
type Handler struct {
	recommender Recommender
	catalog     *catalog.Catalog
	usage       *analytics.UsageLog
	cache       CacheStore
	logger      zerolog.Logger
}

// NewHandler wires the API dependencies. usage may be nil when analytics is
// disabled; stats then report only the store size.
func NewHandler(recommender Recommender, cat *catalog.Catalog, usage *analytics.UsageLog, cache CacheStore, logger zerolog.Logger) *Handler {
	return &Handler{
		recommender: recommender,
		catalog:     cat,
		usage:       usage,
		cache:       cache,
		logger:      logger,
	}
}

// recommendPayload is the inbound body of POST /api/v1/recommend.
type recommendPayload struct {
	SelectedPersona    string            `json:"selectedPersona" validate:"omitempty,max=64"`
	DealBreakers       []string          `json:"dealBreakers" validate:"omitempty,max=16,dive,max=64"`
	ClinicalFactors    map[string]string `json:"clinicalFactors" validate:"omitempty,max=32"`
	UserDescription    string            `json:"userDescription" validate:"omitempty,max=4000"`
	TraditionalAnswers map[string]string `json:"traditionalAnswers" validate:"omitempty,max=64"`
	Profile            recommend.Profile `json:"profile" validate:"omitempty,max=12"`
}

func (p *recommendPayload) toRequest() recommend.UnifiedRecommendationRequest {
	return recommend.UnifiedRecommendationRequest{
		SelectedPersona:    p.SelectedPersona,
		DealBreakers:       p.DealBreakers,
		ClinicalFactors:    p.ClinicalFactors,
		UserDescription:    p.UserDescription,
		TraditionalAnswers: p.TraditionalAnswers,
		Profile:            p.Profile,
	}
}

func (h *Handler) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var payload recommendPayload
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: apiError{
			Code:    "MALFORMED_BODY",
			Message: "request body is not valid JSON",
		}})
		return
	}

	if err := validation.ValidateStruct(&payload); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.recommender.Recommend(r.Context(), payload.toRequest())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// deviceView is the catalog listing shape; internal scoring dimensions are
// included so the frontend can render comparisons.
type deviceView struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Dimensions map[string]string `json:"dimensions"`
	Pros       []string          `json:"pros"`
	Cons       []string          `json:"cons"`
}

func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := make([]deviceView, 0, len(h.catalog.Devices))
	for _, d := range h.catalog.Devices {
		devices = append(devices, deviceView{
			ID:         d.ID,
			Name:       d.Name,
			Dimensions: d.Dimensions,
			Pros:       d.Pros,
			Cons:       d.Cons,
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"devices": devices})
}

// personaView omits the curated match table; scores are an implementation
// detail the selection UI does not need.
type personaView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

func (h *Handler) handlePersonas(w http.ResponseWriter, r *http.Request) {
	personas := make([]personaView, 0, len(h.catalog.Personas))
	for _, p := range h.catalog.Personas {
		personas = append(personas, personaView{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Keywords:    p.Keywords,
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"personas": personas})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"cachedRecords": h.cache.Count(),
	}
	if h.usage != nil {
		resp["usage"] = h.usage.Stats()
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("cache clear failed")
		writeError(w, r, err)
		return
	}
	h.logger.Info().Msg("recommendation cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	// The store is opened before the router starts serving; reaching this
	// handler at all means the pipeline is wired.
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":        "ok",
		"cachedRecords": h.cache.Count(),
	})
}
