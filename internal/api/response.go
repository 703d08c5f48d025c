// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

// Package api provides the HTTP surface: the hot related-items read
// path and the rebuild admin endpoints, routed with Chi.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/fflabs/upsell/internal/logging"
)

// APIResponse is the response wrapper for all JSON endpoints.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError carries a machine-readable code and a human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta holds response metadata.
type APIMeta struct {
	Timestamp time.Time `json:"timestamp"`
}

// Error codes returned by this API.
const (
	CodeInvalidRequest = "invalid_request"
	CodeAlreadyRunning = "rebuild_already_running"
	CodeNotRunning     = "rebuild_not_running"
	CodeInternal       = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := APIResponse{
		Success: status < http.StatusBadRequest,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC()},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC()},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Err(err).Msg("failed to encode error response")
	}
}
