package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/chainscout/pkg/client"
)

// isolate points HOME and the working directory at temp dirs and clears global flags
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CHAINSCOUT_SERVER", "")
	t.Setenv("CHAINSCOUT_API_KEY", "")
	dir := t.TempDir()
	t.Chdir(dir)

	origServer, origKey, origCfg := server, apiKey, cfgFile
	server, apiKey, cfgFile = "", "", ""
	t.Cleanup(func() { server, apiKey, cfgFile = origServer, origKey, origCfg })
	return dir
}

func TestGetServer(t *testing.T) {
	isolate(t)

	assert.Equal(t, "http://localhost:8080", getServer())

	require.NoError(t, os.WriteFile("chainscout.toml", []byte(`server = "http://project:8080"`), 0644))
	assert.Equal(t, "http://project:8080", getServer())

	t.Setenv("CHAINSCOUT_SERVER", "http://env-server:8080")
	assert.Equal(t, "http://env-server:8080", getServer())

	server = "http://flag-server:8080"
	assert.Equal(t, "http://flag-server:8080", getServer())
}

func TestGetAPIKey(t *testing.T) {
	isolate(t)

	assert.Empty(t, getAPIKey())

	require.NoError(t, saveCredential("http://localhost:8080", ServerCredential{APIKey: "stored-key"}))
	assert.Equal(t, "stored-key", getAPIKey())

	t.Setenv("CHAINSCOUT_API_KEY", "env-key")
	assert.Equal(t, "env-key", getAPIKey())

	apiKey = "flag-key"
	assert.Equal(t, "flag-key", getAPIKey())
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key      string
		expected string
	}{
		{"cs_ops_abcdefghijklmnop", "cs_ops_a...mnop"},
		{"short", "****"},
		{"12345678", "****"},
		{"123456789", "12345678...6789"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.expected, maskAPIKey(tt.key))
		})
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "0x1234...5678", truncateAddress("0x1234567890abcdef1234567890abcdef12345678"))
	assert.Equal(t, "0x1234", truncateAddress("0x1234"))
	assert.Equal(t, []string{"eth", "polygon"}, splitList(" eth, ,polygon,"))
	assert.Nil(t, splitList(""))
	assert.Equal(t, "0.85", formatScore(0.849))
	assert.Equal(t, "75%", formatPercent(0.75))
}

func TestCredentialStorage(t *testing.T) {
	isolate(t)

	require.NoError(t, saveCredential("http://server1:8080", ServerCredential{APIKey: "key1", Name: "staging"}))
	require.NoError(t, saveCredential("http://server2:8080", ServerCredential{APIKey: "key2"}))

	assert.Equal(t, "key1", getCredential("http://server1:8080"))
	assert.Empty(t, getCredential("http://nonexistent:8080"))

	info, err := os.Stat(credentialsFilePath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	var out bytes.Buffer
	require.NoError(t, runAuthStatus(&out))
	assert.Contains(t, out.String(), "http://server1:8080 (staging, key: ****)")

	out.Reset()
	require.NoError(t, runAuthLogout(&out, "http://server1:8080", false))
	assert.Empty(t, getCredential("http://server1:8080"))
	assert.Equal(t, "key2", getCredential("http://server2:8080"))

	require.NoError(t, runAuthLogout(&out, "", true))
	_, err = loadCredentials()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAuthLogin(t *testing.T) {
	isolate(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/check" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("X-API-Key") != "cs_ops_valid" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := runAuthLogin(context.Background(), &out, srv.URL, "cs_ops_invalid", "")
	assert.EqualError(t, err, "invalid API key")
	assert.Empty(t, getCredential(srv.URL))

	require.NoError(t, runAuthLogin(context.Background(), &out, srv.URL, " cs_ops_valid\n", "ci"))
	assert.Equal(t, "cs_ops_valid", getCredential(srv.URL))
	assert.Contains(t, out.String(), "Authenticated to "+srv.URL)
}

func TestConfigInit(t *testing.T) {
	isolate(t)

	var out bytes.Buffer
	cfg := ProjectConfig{Server: "http://ops:8080", Networks: []string{"ethereum", "polygon"}, MonitorInterval: "15s"}
	require.NoError(t, runConfigInit(&out, "chainscout.toml", cfg, false))

	loaded, path, err := loadProjectConfig()
	require.NoError(t, err)
	assert.Equal(t, "chainscout.toml", path)
	assert.Equal(t, cfg, *loaded)

	err = runConfigInit(&out, "chainscout.toml", cfg, false)
	assert.ErrorContains(t, err, "already exists")
	assert.NoError(t, runConfigInit(&out, "chainscout.toml", cfg, true))
}

func TestConfigShow(t *testing.T) {
	isolate(t)
	t.Setenv("CHAINSCOUT_API_KEY", "cs_ops_abcdefghijklmnop")

	var out bytes.Buffer
	require.NoError(t, runConfigShow(&out))

	assert.Contains(t, out.String(), "CHAINSCOUT_SERVER=(not set)")
	assert.Contains(t, out.String(), "CHAINSCOUT_API_KEY=cs_ops_a...mnop")
	assert.Contains(t, out.String(), "Server:  http://localhost:8080")
	assert.NotContains(t, out.String(), "abcdefghijklmnop")
}

func TestWriteSources(t *testing.T) {
	dir := t.TempDir()

	n, err := writeSources(dir, map[string]string{
		"contracts/Token.sol":     "contract Token {}",
		"@openzeppelin/ERC20.sol": "contract ERC20 {}",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(dir, "contracts", "Token.sol"))
	require.NoError(t, err)
	assert.Equal(t, "contract Token {}", string(data))

	_, err = writeSources(dir, map[string]string{"../escape.sol": "x"})
	assert.ErrorContains(t, err, "refusing")
}

func networksServer(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"networks": []map[string]any{
				{"network": "ethereum", "chain_id": 1, "configured": true, "current_explorer": "etherscan",
					"health_score": 0.93, "health_status": "excellent", "circuit_state": "CLOSED"},
				{"network": "bsc", "chain_id": 56, "configured": false, "health_status": "critical", "circuit_state": "OPEN"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunNetworksList(t *testing.T) {
	srv := networksServer(t, nil)
	c := client.New(srv.URL, "")

	var out bytes.Buffer
	require.NoError(t, runNetworksList(context.Background(), &out, c, false))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NETWORK"))
	assert.Contains(t, lines[1], "etherscan")
	assert.Contains(t, lines[1], "0.93")
	assert.Contains(t, lines[2], "bsc")
	assert.Contains(t, lines[2], "OPEN")

	out.Reset()
	require.NoError(t, runNetworksList(context.Background(), &out, c, true))
	var decoded []client.NetworkStatus
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Len(t, decoded, 2)
}

func TestRunMultiChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"operation": "verification",
			"successful": map[string]any{
				"polygon":  map[string]any{"explorer_name": "polygonscan", "attempts": 1, "response_time_ms": 120},
				"ethereum": map[string]any{"explorer_name": "etherscan", "attempts": 2, "not_found": true, "switched_explorer": true},
			},
			"failed": map[string]any{
				"bsc": map[string]any{"error": "explorer not configured for bsc", "code": "not_configured"},
			},
			"summary": map[string]any{"total_networks": 3, "successful_networks": 2, "status": "partial", "total_time_ms": 300},
		})
	}))
	defer srv.Close()

	var out bytes.Buffer
	req := client.MultiChainRequest{Operation: "verification", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7"}
	require.NoError(t, runMultiChain(context.Background(), &out, client.New(srv.URL, ""), req, false))

	text := out.String()
	assert.Contains(t, text, "verification: partial, 2/3 networks succeeded")
	assert.Regexp(t, `bsc\s+not_configured`, text)
	assert.Regexp(t, `ethereum\s+not found\s+etherscan\s+2`, text)
	assert.Contains(t, text, "switched explorer")
	assert.Less(t, strings.Index(text, "bsc"), strings.Index(text, "polygon"), "rows sorted by network")
}

func TestRunMonitor(t *testing.T) {
	var requests atomic.Int32
	srv := networksServer(t, &requests)

	var out bytes.Buffer
	require.NoError(t, runMonitor(context.Background(), &out, client.New(srv.URL, ""), time.Millisecond, 2))

	assert.EqualValues(t, 2, requests.Load())
	assert.Equal(t, 2, strings.Count(out.String(), "NETWORK"))

	assert.Error(t, runMonitor(context.Background(), &out, client.New(srv.URL, ""), 0, 1))
}

func TestRunMonitor_StopsOnCancel(t *testing.T) {
	srv := networksServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	assert.NoError(t, runMonitor(ctx, &out, client.New(srv.URL, ""), time.Hour, 0))
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd("test")

	for _, name := range []string{"networks", "health", "detect", "source", "verification", "primary", "multichain", "monitor", "config", "auth"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	networks, _, err := root.Find([]string{"networks"})
	require.NoError(t, err)
	var subs []string
	for _, c := range networks.Commands() {
		subs = append(subs, c.Name())
	}
	assert.ElementsMatch(t, []string{"list", "status", "validate", "test", "invalidate", "repair"}, subs)
}
