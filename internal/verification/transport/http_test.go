package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/explorer"
	"github.com/pendergraft/chainscout/internal/validation"
	"github.com/pendergraft/chainscout/internal/verification/domain"
)

const testAddress = "0xdac17f958d2ee523a2206206994597c13d831ec7"

// mockService implements domain.Service for testing
type mockService struct {
	detection     *domain.Detection
	err           error
	cleared       []string
	lastPreferred chains.Network
	lastHint      chains.Network
}

func (m *mockService) check(address string) error {
	if m.err != nil {
		return m.err
	}
	return validation.ValidateAddress(address)
}

func (m *mockService) DetectChain(ctx context.Context, address string) (*domain.Detection, error) {
	if err := m.check(address); err != nil {
		return nil, err
	}
	return m.detection, nil
}

func (m *mockService) GetContractSource(ctx context.Context, address string, preferred chains.Network) (*domain.SourceResult, error) {
	m.lastPreferred = preferred
	if err := m.check(address); err != nil {
		return nil, err
	}
	return &domain.SourceResult{NetworkUsed: chains.Polygon, ExplorerUsed: "polygonscan", AttemptsMade: 1}, nil
}

func (m *mockService) GetVerificationStatus(ctx context.Context, address string, hint chains.Network) (*domain.VerificationStatus, error) {
	m.lastHint = hint
	if err := m.check(address); err != nil {
		return nil, err
	}
	return &domain.VerificationStatus{Address: address, IsVerified: true, RecommendedNetwork: chains.Polygon}, nil
}

func (m *mockService) DetectPrimaryChain(ctx context.Context, address string) (*domain.PrimaryChain, error) {
	if err := m.check(address); err != nil {
		return nil, err
	}
	return &domain.PrimaryChain{Address: address, Network: chains.Polygon, Verified: true}, nil
}

func (m *mockService) GetCachedDetection(ctx context.Context, address string) (*domain.Detection, error) {
	return nil, domain.ErrNoCachedDetection
}

func (m *mockService) ClearDetectionCache(ctx context.Context, address string) error {
	if err := m.check(address); err != nil {
		return err
	}
	m.cleared = append(m.cleared, address)
	return nil
}

func setupRouter(svc domain.Service) *chi.Mux {
	r := chi.NewRouter()
	h := NewHandler(svc)
	h.RegisterReadRoutes(r)
	h.RegisterWriteRoutes(r)
	return r
}

func do(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestHandler_Detect(t *testing.T) {
	svc := &mockService{detection: &domain.Detection{
		Address: testAddress,
		FoundOn: []chains.Network{chains.Polygon},
		DetectionResults: map[chains.Network]domain.NetworkDetection{
			chains.Polygon:  {Exists: true, Verified: true, ExplorerName: "polygonscan"},
			chains.Ethereum: {Exists: false, ExplorerName: "etherscan"},
		},
	}}
	router := setupRouter(svc)

	t.Run("detect", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/"+testAddress+"/detect")
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []any{"polygon"}, resp["found_on"])
		results := resp["detection_results"].(map[string]any)
		assert.Equal(t, false, results["ethereum"].(map[string]any)["exists"])
		assert.Empty(t, svc.cleared)
	})

	t.Run("refresh clears the cache first", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/"+testAddress+"/detect?refresh=true")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{testAddress}, svc.cleared)
	})

	t.Run("invalid address", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/0x1234/detect")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_ADDRESS", errorCode(t, rec))
	})
}

func TestHandler_ClearDetection(t *testing.T) {
	svc := &mockService{}
	router := setupRouter(svc)

	rec := do(t, router, http.MethodDelete, "/0xDAC17F958D2EE523A2206206994597C13D831EC7/detect")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ClearResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Cleared)
	assert.Equal(t, testAddress, resp.Address)
}

func TestHandler_SourceAndVerification(t *testing.T) {
	svc := &mockService{}
	router := setupRouter(svc)

	rec := do(t, router, http.MethodGet, "/"+testAddress+"/source?network=matic")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, chains.Polygon, svc.lastPreferred)

	rec = do(t, router, http.MethodGet, "/"+testAddress+"/source?network=solana")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNKNOWN_NETWORK", errorCode(t, rec))

	rec = do(t, router, http.MethodGet, "/"+testAddress+"/verification?hint=bsc")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, chains.BSC, svc.lastHint)

	rec = do(t, router, http.MethodGet, "/"+testAddress+"/primary")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", &explorer.BusinessNotFoundError{Network: chains.Ethereum, Explorer: "etherscan", Reason: "not verified"}, http.StatusNotFound, "NOT_FOUND"},
		{"nowhere", domain.ErrNotFoundAnywhere, http.StatusNotFound, "NOT_FOUND"},
		{"configuration", &explorer.ConfigurationError{Network: chains.BSC, Reason: "missing credential"}, http.StatusServiceUnavailable, "NOT_CONFIGURED"},
		{"all unavailable", &explorer.AllProvidersUnavailableError{Network: chains.Ethereum}, http.StatusServiceUnavailable, "EXPLORERS_UNAVAILABLE"},
		{"timeout", fmt.Errorf("probing: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "TIMEOUT"},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(&mockService{err: tt.err})
			rec := do(t, router, http.MethodGet, "/"+testAddress+"/primary")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}
