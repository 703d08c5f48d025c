// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/fflabs/upsell/internal/catalog"
	"github.com/fflabs/upsell/internal/rebuild"
	"github.com/fflabs/upsell/internal/related"
	"github.com/fflabs/upsell/internal/relation"
)

// Handler holds the HTTP endpoint implementations.
type Handler struct {
	related   *related.Service
	rebuilder *rebuild.Rebuilder
	catalog   catalog.Reader
	store     relation.Store
	validate  *validator.Validate
	logger    zerolog.Logger

	// baseCtx bounds background rebuild runs started over HTTP; it is
	// the application lifecycle context, not the request context.
	baseCtx context.Context

	defaultLimit int

	// allowedOrigins gates websocket upgrades, which the router's CORS
	// middleware does not cover.
	allowedOrigins []string
}

// NewHandler creates the endpoint handler set.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHandler(
	baseCtx context.Context,
	relatedSvc *related.Service,
	rebuilder *rebuild.Rebuilder,
	reader catalog.Reader,
	store relation.Store,
	defaultLimit int,
	corsOrigins []string,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		related:        relatedSvc,
		rebuilder:      rebuilder,
		catalog:        reader,
		store:          store,
		validate:       validator.New(),
		logger:         logger.With().Str("component", "api").Logger(),
		baseCtx:        baseCtx,
		defaultLimit:   defaultLimit,
		allowedOrigins: corsOrigins,
	}
}

// relatedQuery carries the validated query parameters of the read path.
type relatedQuery struct {
	Limit int `validate:"min=1,max=100"`
}

// relatedResponse is the read-path payload.
type relatedResponse struct {
	ItemID     int64   `json:"item_id"`
	RelatedIDs []int64 `json:"related_ids"`
	Count      int     `json:"count"`
}

// Related handles GET /api/v1/related/{id}.
func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || itemID <= 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "item id must be a positive integer")
		return
	}

	q := relatedQuery{Limit: h.defaultLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		q.Limit, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be an integer")
			return
		}
	}
	if err := h.validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be between 1 and 100")
		return
	}

	ids := h.related.RelatedIDs(r.Context(), itemID, q.Limit)
	writeJSON(w, http.StatusOK, relatedResponse{
		ItemID:     itemID,
		RelatedIDs: ids,
		Count:      len(ids),
	})
}

// rebuildRequest is the optional body of POST /api/v1/rebuild.
type rebuildRequest struct {
	Truncate bool `json:"truncate"`
}

// RebuildAll handles POST /api/v1/rebuild. The run executes in the
// background under the application lifecycle context; the response is
// a 202 with the initial progress snapshot.
func (h *Handler) RebuildAll(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed request body")
		return
	}

	// Reserving the run before responding keeps two concurrent POSTs
	// from both getting a 202 while only one run starts.
	if err := h.rebuilder.StartRebuildAll(h.baseCtx, rebuild.Options{Truncate: req.Truncate}); err != nil {
		if errors.Is(err, rebuild.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, CodeAlreadyRunning, "a full rebuild is already running")
			return
		}
		h.logger.Error().Err(err).Msg("rebuild start failed")
		writeError(w, http.StatusInternalServerError, CodeInternal, "rebuild start failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":  "rebuild started",
		"truncate": req.Truncate,
	})
}

// RebuildItem handles POST /api/v1/rebuild/items/{id} synchronously.
// An optional limit query parameter caps the relations kept for the
// item; omitted means the configured per-item limit.
func (h *Handler) RebuildItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || itemID <= 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "item id must be a positive integer")
		return
	}

	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be between 1 and 100")
			return
		}
	}

	written, err := h.rebuilder.RebuildSingle(r.Context(), itemID, limit)
	if err != nil {
		h.logger.Error().Err(err).Int64("item_id", itemID).Msg("single item rebuild failed")
		writeError(w, http.StatusInternalServerError, CodeInternal, "rebuild failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"item_id":           itemID,
		"relations_written": written,
	})
}

// Progress handles GET /api/v1/rebuild/progress.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rebuilder.Progress())
}

// Cancel handles POST /api/v1/rebuild/cancel. Cancellation is
// cooperative: the in-flight batch completes before the run stops.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.rebuilder.Cancel() {
		writeError(w, http.StatusConflict, CodeNotRunning, "no rebuild is running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message": "cancellation requested, effective at the next batch boundary",
	})
}

// healthComponent reports one dependency's reachability.
type healthComponent struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Health handles GET /api/v1/health. It probes the catalog and the
// relation store; an unreachable dependency degrades the status but
// still returns 200 so orchestrators distinguish liveness from full
// health via the body.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	components := make(map[string]healthComponent, 2)
	status := "ok"

	if _, err := h.catalog.CountEligibleItems(ctx); err != nil {
		components["catalog"] = healthComponent{Healthy: false, Error: err.Error()}
		status = "degraded"
	} else {
		components["catalog"] = healthComponent{Healthy: true}
	}

	if _, err := h.store.Total(ctx); err != nil {
		components["relation_store"] = healthComponent{Healthy: false, Error: err.Error()}
		status = "degraded"
	} else {
		components["relation_store"] = healthComponent{Healthy: true}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"components": components,
		"rebuild":    h.rebuilder.Progress().Status,
	})
}
