package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/config"
	"github.com/pendergraft/chainscout/internal/validation"
)

// maxResponseBytes caps explorer response bodies; large multi-file sources fit well below it
const maxResponseBytes = 32 << 20

// apiClient speaks the Etherscan-compatible query API (?module=...&action=...).
// The etherscan and blockscout kinds differ only in key requirements and the ping action.
type apiClient struct {
	name        string
	kind        Kind
	network     chains.Network
	apiURL      string
	apiKey      string
	keyRequired bool
	rateLimit   int
	priority    int
	pingModule  string
	pingAction  string
	httpClient  *http.Client
	nowFunc     func() time.Time
}

func newAPIClient(kind Kind, network chains.Network, cfg config.ExplorerConfig, opts []Option) *apiClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = config.DefaultTimeout * time.Second
	}
	c := &apiClient{
		name:       cfg.Name,
		kind:       kind,
		network:    network,
		apiURL:     strings.TrimSpace(cfg.APIURL),
		apiKey:     cfg.APIKey,
		rateLimit:  cfg.RateLimit,
		priority:   cfg.Priority,
		httpClient: &http.Client{Timeout: timeout},
		nowFunc:    time.Now,
	}
	if c.name == "" {
		c.name = string(kind)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient.Timeout == 0 {
		hc := *c.httpClient
		hc.Timeout = timeout
		c.httpClient = &hc
	}
	return c
}

func (c *apiClient) Name() string            { return c.name }
func (c *apiClient) Kind() Kind              { return c.kind }
func (c *apiClient) Network() chains.Network { return c.network }
func (c *apiClient) BaseURL() string         { return c.apiURL }
func (c *apiClient) RateLimit() int          { return c.rateLimit }
func (c *apiClient) Priority() int           { return c.priority }

// IsConfigured reports whether the provider has a URL and, when required, a key
func (c *apiClient) IsConfigured() bool {
	if c.apiURL == "" {
		return false
	}
	return !c.keyRequired || c.apiKey != ""
}

// ContractURL returns the explorer page for an address
func (c *apiClient) ContractURL(address string) string {
	base := strings.TrimSuffix(strings.TrimRight(c.apiURL, "/"), "/api")
	return base + "/address/" + address
}

// endpoint returns the query endpoint, appending /api unless already present
func (c *apiClient) endpoint() string {
	u := strings.TrimRight(c.apiURL, "/")
	if strings.HasSuffix(u, "/api") {
		return u
	}
	return u + "/api"
}

// FetchContractSource fetches and parses verified source code
func (c *apiClient) FetchContractSource(ctx context.Context, address string) (*ContractSource, error) {
	if err := c.checkRequest(address); err != nil {
		return nil, err
	}

	env, err := c.get(ctx, url.Values{
		"module":  {"contract"},
		"action":  {"getsourcecode"},
		"address": {address},
	})
	if err != nil {
		return nil, err
	}

	var items []sourceItem
	if err := json.Unmarshal(env.Result, &items); err != nil {
		return nil, c.invalidResponse("getsourcecode", err)
	}
	if len(items) == 0 {
		return nil, &BusinessNotFoundError{Network: c.network, Explorer: c.name, Address: address, Reason: "no source code found"}
	}

	src := parseSource(items[0])
	src.Network = c.network
	src.Explorer = c.name
	src.Address = address
	src.FetchedAt = c.nowFunc()
	return src, nil
}

// IsContractVerified reports whether the provider has verified source for address
func (c *apiClient) IsContractVerified(ctx context.Context, address string) (bool, error) {
	src, err := c.FetchContractSource(ctx, address)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return src.IsVerified, nil
}

// FetchABI fetches the contract ABI as raw JSON
func (c *apiClient) FetchABI(ctx context.Context, address string) (json.RawMessage, error) {
	if err := c.checkRequest(address); err != nil {
		return nil, err
	}

	env, err := c.get(ctx, url.Values{
		"module":  {"contract"},
		"action":  {"getabi"},
		"address": {address},
	})
	if err != nil {
		return nil, err
	}

	var abi string
	if err := json.Unmarshal(env.Result, &abi); err != nil {
		return nil, c.invalidResponse("getabi", err)
	}
	if !json.Valid([]byte(abi)) {
		return nil, &BusinessNotFoundError{Network: c.network, Explorer: c.name, Address: address, Reason: abi}
	}
	return json.RawMessage(abi), nil
}

// FetchContractCreation fetches the creator and creation transaction
func (c *apiClient) FetchContractCreation(ctx context.Context, address string) (*ContractCreation, error) {
	if err := c.checkRequest(address); err != nil {
		return nil, err
	}

	env, err := c.get(ctx, url.Values{
		"module":            {"contract"},
		"action":            {"getcontractcreation"},
		"contractaddresses": {address},
	})
	if err != nil {
		return nil, err
	}

	var items []struct {
		ContractAddress string `json:"contractAddress"`
		ContractCreator string `json:"contractCreator"`
		TxHash          string `json:"txHash"`
	}
	if err := json.Unmarshal(env.Result, &items); err != nil {
		return nil, c.invalidResponse("getcontractcreation", err)
	}
	if len(items) == 0 {
		return nil, &BusinessNotFoundError{Network: c.network, Explorer: c.name, Address: address, Reason: "no creation data found"}
	}

	return &ContractCreation{
		Network:        c.network,
		Explorer:       c.name,
		Address:        address,
		CreatorAddress: items[0].ContractCreator,
		CreationTxHash: items[0].TxHash,
		FetchedAt:      c.nowFunc(),
	}, nil
}

// Ping checks connectivity with a cheap latest-block query
func (c *apiClient) Ping(ctx context.Context) error {
	if !c.IsConfigured() {
		return c.notConfigured()
	}

	env, err := c.get(ctx, url.Values{
		"module": {c.pingModule},
		"action": {c.pingAction},
	})
	if err != nil {
		return err
	}

	var block string
	if err := json.Unmarshal(env.Result, &block); err != nil || !strings.HasPrefix(block, "0x") {
		return c.invalidResponse(c.pingAction, fmt.Errorf("unexpected block number %s", string(env.Result)))
	}
	return nil
}

func (c *apiClient) checkRequest(address string) error {
	if !c.IsConfigured() {
		return c.notConfigured()
	}
	return validation.ValidateAddress(address)
}

func (c *apiClient) notConfigured() error {
	reason := "missing API URL"
	if c.apiURL != "" {
		reason = "missing credential"
	}
	return &ConfigurationError{Network: c.network, Explorer: c.name, Reason: reason}
}

// envelope is the common response shape. JSON-RPC proxy responses carry only result.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *apiClient) get(ctx context.Context, params url.Values) (*envelope, error) {
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	action := params.Get("action")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint()+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &ConfigurationError{Network: c.network, Explorer: c.name, Reason: "invalid API URL format"}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.unavailable(0, oops.
			Code(CodeUpstreamFailure).
			With("network", string(c.network), "explorer", c.name, "action", action).
			Wrapf(err, "requesting %s", action))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.unavailable(resp.StatusCode, oops.
			Code(CodeUpstreamFailure).
			With("network", string(c.network), "explorer", c.name, "action", action).
			Wrapf(err, "reading %s response", action))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := CodeUpstreamFailure
		if resp.StatusCode == http.StatusTooManyRequests {
			code = CodeUpstreamLimited
		}
		uerr := c.unavailable(resp.StatusCode, oops.
			Code(code).
			With("network", string(c.network), "explorer", c.name, "action", action, "status", resp.StatusCode).
			Errorf("%s returned HTTP %d: %s", action, resp.StatusCode, truncate(string(body), 200)))
		uerr.Permanent = resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests
		return nil, uerr
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, c.invalidResponse(action, err)
	}

	if env.Error != nil {
		return nil, c.unavailable(resp.StatusCode, oops.
			Code(CodeUpstreamFailure).
			With("network", string(c.network), "explorer", c.name, "action", action, "rpc_code", env.Error.Code).
			Errorf("%s: %s", action, env.Error.Message))
	}

	if env.Status == "0" {
		return nil, c.classifyRejection(action, params.Get("address"), &env)
	}
	return &env, nil
}

// classifyRejection maps a status "0" response to a business negative or an upstream failure.
// Rate limit wording is checked first; Etherscan puts it in result rather than message.
func (c *apiClient) classifyRejection(action, address string, env *envelope) error {
	var resultText string
	_ = json.Unmarshal(env.Result, &resultText)
	text := strings.ToLower(env.Message + " " + resultText)

	if isRateLimitMessage(text) {
		return c.unavailable(0, oops.
			Code(CodeUpstreamLimited).
			With("network", string(c.network), "explorer", c.name, "action", action).
			Errorf("%s: upstream rate limit: %s", action, strings.TrimSpace(env.Message+" "+resultText)))
	}
	if isNotFoundMessage(text) {
		reason := resultText
		if reason == "" {
			reason = env.Message
		}
		return &BusinessNotFoundError{Network: c.network, Explorer: c.name, Address: address, Reason: reason}
	}
	return c.unavailable(0, oops.
		Code(CodeUpstreamFailure).
		With("network", string(c.network), "explorer", c.name, "action", action).
		Errorf("%s rejected: %s", action, strings.TrimSpace(env.Message+" "+resultText)))
}

func (c *apiClient) unavailable(status int, err error) *ProviderUnavailableError {
	return &ProviderUnavailableError{Network: c.network, Explorer: c.name, StatusCode: status, Err: err}
}

func (c *apiClient) invalidResponse(action string, err error) error {
	return c.unavailable(0, oops.
		Code(CodeInvalidResponse).
		With("network", string(c.network), "explorer", c.name, "action", action).
		Wrapf(err, "decoding %s response", action))
}

var notFoundMarkers = []string{
	"not found",
	"not verified",
	"invalid address",
	"no data found",
	"no records found",
	"no contract",
}

func isNotFoundMessage(text string) bool {
	for _, m := range notFoundMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func isRateLimitMessage(text string) bool {
	return strings.Contains(text, "rate limit") ||
		strings.Contains(text, "max calls") ||
		strings.Contains(text, "too many requests")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsRetryable reports whether an error from a client call may succeed on another attempt.
// Permanent upstream rejections (4xx other than 429, e.g. a revoked key) are not retryable.
func IsRetryable(err error) bool {
	if err == nil || IsNotFound(err) || IsConfiguration(err) || errors.Is(err, validation.ErrInvalidAddress) {
		return false
	}
	var pu *ProviderUnavailableError
	if errors.As(err, &pu) && pu.Permanent {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
