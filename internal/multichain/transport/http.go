// Package transport provides the HTTP handler for multi-chain operations.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/multichain"
	"github.com/pendergraft/chainscout/internal/validation"
)

// Runner executes named operations across networks
type Runner interface {
	Run(ctx context.Context, name, address string, networks []string, opts ...multichain.Option) (*multichain.Report, error)
	DefaultNetworks() []string
}

// Request is the body of POST /multichain
type Request struct {
	Operation string   `json:"operation"`
	Address   string   `json:"address"`
	Networks  []string `json:"networks"`
	FailFast  bool     `json:"fail_fast"`
}

// Handler handles HTTP requests for multi-chain operations.
type Handler struct {
	runner Runner
}

// NewHandler creates a new multi-chain HTTP handler.
func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner}
}

// RegisterRoutes registers the multi-chain routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.handleExecute)
	r.Get("/operations", h.handleOperations)
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}
	if req.Operation == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "operation is required")
		return
	}

	networks := req.Networks
	if len(networks) == 0 {
		networks = h.runner.DefaultNetworks()
	}

	report, err := h.runner.Run(r.Context(), req.Operation, req.Address, networks, multichain.WithFailFast(req.FailFast))
	if err != nil {
		switch {
		case errors.Is(err, multichain.ErrUnknownOperation):
			writeError(w, http.StatusBadRequest, "UNKNOWN_OPERATION", err.Error())
		case errors.Is(err, chains.ErrUnknownNetwork):
			writeError(w, http.StatusBadRequest, "UNKNOWN_NETWORK", err.Error())
		case errors.Is(err, validation.ErrInvalidAddress):
			writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		case errors.Is(err, multichain.ErrNoNetworks):
			writeError(w, http.StatusBadRequest, "NO_NETWORKS", "No networks requested or configured")
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to run operation")
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleOperations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"operations": multichain.OperationNames()})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
