// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dflexy/dfindexer/internal/domain"
	"github.com/dflexy/dfindexer/internal/enricher"
)

// maxBatchSize bounds a single enrichment request.
const maxBatchSize = 1000

type EnrichHandler struct {
	enricher *enricher.Enricher
}

func NewEnrichHandler(e *enricher.Enricher) *EnrichHandler {
	return &EnrichHandler{enricher: e}
}

type TorrentReferencePayload struct {
	Title      string     `json:"title"`
	DetailsURL string     `json:"details"`
	MagnetLink string     `json:"magnet_link"`
	Source     string     `json:"source,omitempty"`
	SizeHint   int64      `json:"size_hint,omitempty"`
	DateHint   *time.Time `json:"date_hint,omitempty"`
}

type EnrichRequest struct {
	Torrents     []TorrentReferencePayload `json:"torrents"`
	SkipMetadata bool                      `json:"skip_metadata,omitempty"`
	SkipTrackers bool                      `json:"skip_trackers,omitempty"`
}

func (p *TorrentReferencePayload) toDomain() domain.TorrentReference {
	return domain.TorrentReference{
		RawTitle:   strings.TrimSpace(p.Title),
		DetailsURL: p.DetailsURL,
		MagnetLink: strings.TrimSpace(p.MagnetLink),
		Source:     strings.TrimSpace(p.Source),
		SizeHint:   p.SizeHint,
		DateHint:   p.DateHint,
	}
}

func (h *EnrichHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	var req EnrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if len(req.Torrents) == 0 {
		RespondJSON(w, http.StatusOK, domain.Response{Results: []domain.EnrichedTorrent{}})
		return
	}

	if len(req.Torrents) > maxBatchSize {
		RespondError(w, http.StatusBadRequest, "Batch too large")
		return
	}

	refs := make([]domain.TorrentReference, 0, len(req.Torrents))
	for i := range req.Torrents {
		refs = append(refs, req.Torrents[i].toDomain())
	}

	started := time.Now()
	response := h.enricher.Enrich(r.Context(), refs, enricher.Options{
		SkipMetadata: req.SkipMetadata,
		SkipTrackers: req.SkipTrackers,
	})

	log.Debug().
		Int("received", len(req.Torrents)).
		Int("returned", response.Count).
		Dur("elapsed", time.Since(started)).
		Msg("enrichment batch served")

	RespondJSON(w, http.StatusOK, response)
}
