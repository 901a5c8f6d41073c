package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/chainscout/internal/config"
	"github.com/pendergraft/chainscout/internal/storage"
)

const (
	testAddress = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	testKey     = "cs_ops_test"
)

// upstream answers every getsourcecode call with a verified contract and every ping with a block number
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("action") {
		case "getsourcecode":
			json.NewEncoder(w).Encode(map[string]any{
				"status":  "1",
				"message": "OK",
				"result": []map[string]any{{
					"SourceCode":      "contract Token {}",
					"ABI":             `[]`,
					"ContractName":    "Token",
					"CompilerVersion": "v0.8.20+commit.a1b2c3d4",
				}},
			})
		default:
			io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":"0x10"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		Storage:  config.StorageConfig{Type: "memory"},
		Auth:     config.AuthConfig{APIKey: testKey},
		CORS:     config.CORSConfig{AllowedOrigins: []string{"https://ops.example.com"}},
		Security: config.SecurityConfig{MaxBodySizeMB: 1},
		Explorers: config.ExplorersConfig{Networks: map[string]config.NetworkConfig{
			"ethereum": {Explorers: []config.ExplorerConfig{{
				Name: "etherscan", Kind: "etherscan", APIURL: apiURL + "/api", APIKey: "key",
				RateLimit: 50, Timeout: 5, Priority: 1,
			}}},
		}},
		Circuit:    config.CircuitConfig{HealthyThreshold: 0.7},
		Retry:      config.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Detection:  config.DetectionConfig{Workers: 2, Timeout: 5 * time.Second, CacheTTL: time.Hour},
		MultiChain: config.MultiChainConfig{Workers: 2},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(testConfig(upstream(t).URL), storage.NewMemoryStore(), logger)
}

func request(t *testing.T, s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestServer_HealthAndReady(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/healthz"} {
		rec := request(t, s, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "ok", decode(t, rec)["status"])
	}

	rec := request(t, s, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"ethereum"}, decode(t, rec)["networks"])
}

func TestServer_NotReadyWithoutExplorers(t *testing.T) {
	cfg := testConfig("")
	cfg.Explorers.Networks["ethereum"].Explorers[0].APIKey = ""
	s := New(cfg, storage.NewMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := request(t, s, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOT_READY", decode(t, rec)["error"].(map[string]any)["code"])
}

func TestServer_WriteRoutesRequireKey(t *testing.T) {
	s := newTestServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/networks/ethereum/invalidate"},
		{http.MethodPost, "/api/v1/networks/ethereum/repair"},
		{http.MethodDelete, "/api/v1/contracts/" + testAddress + "/detect"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := request(t, s, rt.method, rt.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "UNAUTHORIZED", decode(t, rec)["error"].(map[string]any)["code"])

			rec = request(t, s, rt.method, rt.path, "", map[string]string{"X-API-Key": testKey})
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_ReadRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := request(t, s, http.MethodGet, "/api/v1/networks", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["networks"], 1)

	rec = request(t, s, http.MethodGet, "/api/v1/health/report", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["configured_networks"])

	rec = request(t, s, http.MethodGet, "/api/v1/contracts/"+testAddress+"/detect", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"ethereum"}, decode(t, rec)["found_on"])

	rec = request(t, s, http.MethodGet, "/api/v1/contracts/0x1234/detect", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_MultiChain(t *testing.T) {
	s := newTestServer(t)

	body := `{"operation":"verification","address":"` + testAddress + `","networks":["eth"]}`
	rec := request(t, s, http.MethodPost, "/api/v1/multichain", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode(t, rec)
	assert.Equal(t, "verification", report["operation"])
	assert.Equal(t, "complete", report["summary"].(map[string]any)["status"])
	assert.Contains(t, report["successful"], "ethereum")
}

func TestServer_CORS(t *testing.T) {
	s := newTestServer(t)

	rec := request(t, s, http.MethodOptions, "/api/v1/networks", "", map[string]string{
		"Origin":                        "https://ops.example.com",
		"Access-Control-Request-Method": http.MethodGet,
	})
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = request(t, s, http.MethodGet, "/health", "", map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMaxBodySize(t *testing.T) {
	var readErr error
	handler := MaxBodySize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Error(t, readErr)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small"))
	MaxBodySize(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	})).ServeHTTP(httptest.NewRecorder(), req)
	assert.NoError(t, readErr)
}

func TestServer_AuthCheck(t *testing.T) {
	s := newTestServer(t)

	rec := request(t, s, http.MethodGet, "/api/v1/auth/check", "", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = request(t, s, http.MethodGet, "/api/v1/auth/check", "", map[string]string{"Authorization": "Bearer " + testKey})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["auth_required"])
}
