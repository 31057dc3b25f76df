// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/dflexy/dfindexer/internal/breaker"
)

// BreakersHandler exposes the per-upstream circuit breaker states for
// operational visibility.
type BreakersHandler struct {
	registry *breaker.Registry
}

func NewBreakersHandler(registry *breaker.Registry) *BreakersHandler {
	return &BreakersHandler{registry: registry}
}

func (h *BreakersHandler) List(w http.ResponseWriter, r *http.Request) {
	states := h.registry.States()

	out := make(map[string]string, len(states))
	for key, state := range states {
		out[key] = state.String()
	}

	RespondJSON(w, http.StatusOK, out)
}
