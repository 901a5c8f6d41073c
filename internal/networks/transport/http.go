// Package transport provides HTTP handlers for network status, health and maintenance.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/explorer"
	"github.com/pendergraft/chainscout/internal/health"
	"github.com/pendergraft/chainscout/internal/manager"
	"github.com/pendergraft/chainscout/internal/registry"
)

// Manager is the subset of the explorer manager used by the handlers
type Manager interface {
	ChainStatus(ctx context.Context, network chains.Network) manager.ChainStatus
	AllChainsStatus(ctx context.Context) map[chains.Network]manager.ChainStatus
	GetBestExplorer(ctx context.Context, network chains.Network) (explorer.Client, error)
	TestChainConnectivity(ctx context.Context, network chains.Network) manager.ConnectivityResult
	TestAllChains(ctx context.Context) map[chains.Network]manager.ConnectivityResult
	InvalidateNetwork(ctx context.Context, network chains.Network) error
	RepairNetwork(ctx context.Context, network chains.Network) (manager.RepairResult, error)
}

// Registry is the subset of the explorer registry used by the handlers
type Registry interface {
	ValidateConfiguration(ctx context.Context, network chains.Network) registry.Validation
	GetSystemHealthReport(ctx context.Context) registry.HealthReport
	NetworkState(ctx context.Context, network chains.Network) health.State
}

// ExplorerResponse describes the explorer currently selected for a network
type ExplorerResponse struct {
	Network      chains.Network `json:"network"`
	ExplorerName string         `json:"explorer_name"`
	Kind         explorer.Kind  `json:"kind"`
	BaseURL      string         `json:"base_url"`
	Priority     int            `json:"priority"`
	RateLimit    int            `json:"rate_limit"`
	CircuitState health.State   `json:"circuit_state"`
}

// Handler handles HTTP requests for networks.
type Handler struct {
	mgr Manager
	reg Registry
}

// NewHandler creates a new networks HTTP handler.
func NewHandler(mgr Manager, reg Registry) *Handler {
	return &Handler{mgr: mgr, reg: reg}
}

// RegisterReadRoutes registers read-only network routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/test", h.handleTestAll)
	r.Get("/{network}", h.handleStatus)
	r.Get("/{network}/validate", h.handleValidate)
	r.Get("/{network}/explorer", h.handleExplorer)
	r.Post("/{network}/test", h.handleTest)
}

// RegisterWriteRoutes registers maintenance routes (auth required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/{network}/invalidate", h.handleInvalidate)
	r.Post("/{network}/repair", h.handleRepair)
}

// HandleHealthReport serves the system health report.
func (h *Handler) HandleHealthReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reg.GetSystemHealthReport(r.Context()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	statuses := h.mgr.AllChainsStatus(r.Context())

	networks := make([]chains.Network, 0, len(statuses))
	for n := range statuses {
		networks = append(networks, n)
	}
	chains.SortByRank(networks)

	data := make([]manager.ChainStatus, 0, len(networks))
	for _, n := range networks {
		data = append(data, statuses[n])
	}
	writeJSON(w, http.StatusOK, map[string]any{"networks": data})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	network, ok := networkParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.mgr.ChainStatus(r.Context(), network))
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	network, ok := networkParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.reg.ValidateConfiguration(r.Context(), network))
}

func (h *Handler) handleExplorer(w http.ResponseWriter, r *http.Request) {
	network, ok := networkParam(w, r)
	if !ok {
		return
	}

	c, err := h.mgr.GetBestExplorer(r.Context(), network)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExplorerResponse{
		Network:      network,
		ExplorerName: c.Name(),
		Kind:         c.Kind(),
		BaseURL:      c.BaseURL(),
		Priority:     c.Priority(),
		RateLimit:    c.RateLimit(),
		CircuitState: h.reg.NetworkState(r.Context(), network),
	})
}

func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request) {
	network, ok := networkParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.mgr.TestChainConnectivity(r.Context(), network))
}

func (h *Handler) handleTestAll(w http.ResponseWriter, r *http.Request) {
	results := h.mgr.TestAllChains(r.Context())
	passed := 0
	for _, res := range results {
		if res.Success {
			passed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   len(results),
		"passed":  passed,
	})
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	network, ok := networkParam(w, r)
	if !ok {
		return
	}
	if err := h.mgr.InvalidateNetwork(r.Context(), network); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"network": network, "invalidated": true})
}

func (h *Handler) handleRepair(w http.ResponseWriter, r *http.Request) {
	network, ok := networkParam(w, r)
	if !ok {
		return
	}
	result, err := h.mgr.RepairNetwork(r.Context(), network)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// networkParam resolves the {network} path parameter, writing a 404 when it is unknown
func networkParam(w http.ResponseWriter, r *http.Request) (chains.Network, bool) {
	network, err := chains.Parse(chi.URLParam(r, "network"))
	if err != nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_NETWORK", err.Error())
		return "", false
	}
	return network, true
}

func writeManagerError(w http.ResponseWriter, err error) {
	var (
		cfgErr *explorer.ConfigurationError
		allErr *explorer.AllProvidersUnavailableError
	)
	switch {
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", err.Error())
	case errors.As(err, &allErr):
		writeError(w, http.StatusServiceUnavailable, "EXPLORERS_UNAVAILABLE", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
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
