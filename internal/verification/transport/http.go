// Package transport provides HTTP handlers for cross-chain contract detection.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/explorer"
	"github.com/pendergraft/chainscout/internal/validation"
	"github.com/pendergraft/chainscout/internal/verification/domain"
)

// Handler handles HTTP requests for contract detection.
type Handler struct {
	svc domain.Service
}

// NewHandler creates a new detection HTTP handler.
func NewHandler(svc domain.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterReadRoutes registers read-only contract routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/{address}/detect", h.handleDetect)
	r.Get("/{address}/source", h.handleSource)
	r.Get("/{address}/verification", h.handleVerification)
	r.Get("/{address}/primary", h.handlePrimary)
}

// RegisterWriteRoutes registers mutating contract routes (auth required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Delete("/{address}/detect", h.handleClearDetection)
}

func (h *Handler) handleDetect(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if r.URL.Query().Get("refresh") == "true" {
		if err := h.svc.ClearDetectionCache(r.Context(), address); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	det, err := h.svc.DetectChain(r.Context(), address)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, det)
}

func (h *Handler) handleClearDetection(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := h.svc.ClearDetectionCache(r.Context(), address); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClearResponse{Address: validation.NormalizeAddress(address), Cleared: true})
}

func (h *Handler) handleSource(w http.ResponseWriter, r *http.Request) {
	q, err := parseNetworkParam(r, "network")
	if err != nil {
		writeError(w, http.StatusBadRequest, "UNKNOWN_NETWORK", err.Error())
		return
	}

	res, err := h.svc.GetContractSource(r.Context(), chi.URLParam(r, "address"), q.Network)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleVerification(w http.ResponseWriter, r *http.Request) {
	q, err := parseNetworkParam(r, "hint")
	if err != nil {
		writeError(w, http.StatusBadRequest, "UNKNOWN_NETWORK", err.Error())
		return
	}

	status, err := h.svc.GetVerificationStatus(r.Context(), chi.URLParam(r, "address"), q.Network)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handlePrimary(w http.ResponseWriter, r *http.Request) {
	primary, err := h.svc.DetectPrimaryChain(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, primary)
}

func parseNetworkParam(r *http.Request, name string) (SourceQuery, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return SourceQuery{}, nil
	}
	n, err := chains.Parse(raw)
	if err != nil {
		return SourceQuery{}, err
	}
	return SourceQuery{Network: n}, nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	var (
		cfgErr *explorer.ConfigurationError
		allErr *explorer.AllProvidersUnavailableError
	)
	switch {
	case errors.Is(err, validation.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
	case errors.Is(err, domain.ErrNotFoundAnywhere), errors.Is(err, domain.ErrNoCachedDetection), explorer.IsNotFound(err):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", err.Error())
	case errors.As(err, &allErr):
		writeError(w, http.StatusServiceUnavailable, "EXPLORERS_UNAVAILABLE", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "Explorer lookup timed out")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to query explorers")
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
