package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/api/v1/networks", "/api/v1/networks"},
		{"/api/v1/networks/ethereum/test", "/api/v1/networks/ethereum/test"},
		{"/api/v1/contracts/0xdAC17F958D2ee523a2206206994597C13D831ec7/detect", "/api/v1/contracts/{address}/detect"},
		{"/api/v1/multichain/6f1c2a4e-0b4c-4a8f-9d0e-2f6a1b3c4d5e", "/api/v1/multichain/{id}"},
		{"/api/v1/networks/137/", "/api/v1/networks/{id}"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestMiddleware_DisabledPassesThrough(t *testing.T) {
	Init(false, "chainscout-test")

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/networks", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)

	// Recording helpers are no-ops while disabled
	ExplorerRequest("ethereum", "etherscan", "success", 0)
	CircuitTransition("ethereum", "etherscan", "CLOSED", "OPEN")

	rr = httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStateValue(t *testing.T) {
	assert.Equal(t, float64(0), stateValue("CLOSED"))
	assert.Equal(t, float64(1), stateValue("HALF_OPEN"))
	assert.Equal(t, float64(2), stateValue("OPEN"))
}
