// Package client provides a Go client for the chainscout ops API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a chainscout ops API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new chainscout client
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			// multi-chain runs and detection fan out across every network
			Timeout: 2 * time.Minute,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is an API 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Networks returns the status of every supported network in rank order
func (c *Client) Networks(ctx context.Context) ([]NetworkStatus, error) {
	var resp struct {
		Networks []NetworkStatus `json:"networks"`
	}
	if err := c.get(ctx, "/api/v1/networks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Networks, nil
}

// NetworkStatus returns the status of one network
func (c *Client) NetworkStatus(ctx context.Context, network string) (*NetworkStatus, error) {
	var resp NetworkStatus
	if err := c.get(ctx, networkPath(network, ""), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateNetwork checks a network's explorer configuration
func (c *Client) ValidateNetwork(ctx context.Context, network string) (*Validation, error) {
	var resp Validation
	if err := c.get(ctx, networkPath(network, "/validate"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BestExplorer returns the explorer currently selected for a network
func (c *Client) BestExplorer(ctx context.Context, network string) (*Explorer, error) {
	var resp Explorer
	if err := c.get(ctx, networkPath(network, "/explorer"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNetwork probes one network's best explorer
func (c *Client) TestNetwork(ctx context.Context, network string) (*Connectivity, error) {
	var resp Connectivity
	if err := c.post(ctx, networkPath(network, "/test"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestAllNetworks probes every configured network
func (c *Client) TestAllNetworks(ctx context.Context) (*TestAllResponse, error) {
	var resp TestAllResponse
	if err := c.post(ctx, "/api/v1/networks/test", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// InvalidateNetwork clears a network's health records and cached explorers
func (c *Client) InvalidateNetwork(ctx context.Context, network string) error {
	return c.post(ctx, networkPath(network, "/invalidate"), nil, nil)
}

// RepairNetwork invalidates and re-tests a network
func (c *Client) RepairNetwork(ctx context.Context, network string) (*RepairResult, error) {
	var resp RepairResult
	if err := c.post(ctx, networkPath(network, "/repair"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthReport returns the system health report
func (c *Client) HealthReport(ctx context.Context) (*HealthReport, error) {
	var resp HealthReport
	if err := c.get(ctx, "/api/v1/health/report", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Detect finds the networks a contract is deployed and verified on
func (c *Client) Detect(ctx context.Context, address string, refresh bool) (*Detection, error) {
	q := url.Values{}
	if refresh {
		q.Set("refresh", "true")
	}
	var resp Detection
	if err := c.get(ctx, contractPath(address, "/detect"), q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearDetection drops the cached detection for a contract
func (c *Client) ClearDetection(ctx context.Context, address string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+contractPath(address, "/detect"), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Source fetches verified source, preferring network when set
func (c *Client) Source(ctx context.Context, address, network string) (*SourceResult, error) {
	q := url.Values{}
	if network != "" {
		q.Set("network", network)
	}
	var resp SourceResult
	if err := c.get(ctx, contractPath(address, "/source"), q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verification summarizes where a contract is verified
func (c *Client) Verification(ctx context.Context, address, hint string) (*VerificationStatus, error) {
	q := url.Values{}
	if hint != "" {
		q.Set("hint", hint)
	}
	var resp VerificationStatus
	if err := c.get(ctx, contractPath(address, "/verification"), q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PrimaryChain returns the most likely home network of a contract
func (c *Client) PrimaryChain(ctx context.Context, address string) (*PrimaryChain, error) {
	var resp PrimaryChain
	if err := c.get(ctx, contractPath(address, "/primary"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MultiChain runs a named operation across networks
func (c *Client) MultiChain(ctx context.Context, req MultiChainRequest) (*MultiChainReport, error) {
	var resp MultiChainReport
	if err := c.post(ctx, "/api/v1/multichain", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping checks that the server is up
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/health", nil, nil)
}

func networkPath(network, suffix string) string {
	return "/api/v1/networks/" + url.PathEscape(network) + suffix
}

func contractPath(address, suffix string) string {
	return "/api/v1/contracts/" + url.PathEscape(address) + suffix
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	errResp.Error.Status = resp.StatusCode
	return &errResp.Error
}
