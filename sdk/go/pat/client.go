package pat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
//
// Authentication comes in two flavors. A pre-issued JWT:
//
//	Token: "eyJ..."
//
// or self-service minting through the admin bootstrap key, in which case the
// client obtains and refreshes tokens automatically:
//
//	AdminKey: "...", UserID: "user-42", Role: pat.RolePaidUser
type Config struct {
	// BaseURL is the root URL of the Pat server (e.g. "http://localhost:8080").
	BaseURL string

	// Token is a pre-issued user JWT. Takes priority over AdminKey.
	Token string

	// AdminKey mints tokens via /auth/token when Token is empty.
	AdminKey string
	// UserID identifies the user tokens are minted for. Required with AdminKey.
	UserID string
	// Role is the minted token's subscription tier. Required with AdminKey.
	Role Role
	// Timezone is an optional IANA zone carried in minted tokens, used for
	// meal-slot inference.
	Timezone string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Pat conversation API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  tokenSource
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("pat: BaseURL is required")
	}
	if cfg.Token == "" {
		if cfg.AdminKey == "" {
			return nil, fmt.Errorf("pat: either Token or AdminKey is required")
		}
		if cfg.UserID == "" || cfg.Role == "" {
			return nil, fmt.Errorf("pat: UserID and Role are required with AdminKey")
		}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var tokens tokenSource
	if cfg.Token != "" {
		tokens = staticToken(cfg.Token)
	} else {
		tokens = newTokenManager(baseURL, cfg.AdminKey, cfg.UserID, cfg.Role, cfg.Timezone, httpClient)
	}

	return &Client{
		baseURL: baseURL,
		client:  httpClient,
		tokens:  tokens,
	}, nil
}

// Chat sends one conversational turn and returns Pat's reply along with the
// routing decision and any persisted meal.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	var resp ChatResult
	if err := c.post(ctx, "/v1/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResolveNutrition resolves a food description to macro-nutrients without
// touching any meal log.
func (c *Client) ResolveNutrition(ctx context.Context, food string, useCache bool) (*MacroEstimate, error) {
	body := map[string]any{"food": food, "use_cache": useCache}
	var resp MacroEstimate
	if err := c.post(ctx, "/v1/nutrition/resolve", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RoutePreview classifies a message without executing anything.
func (c *Client) RoutePreview(ctx context.Context, message string) (*RoutePreview, error) {
	params := url.Values{}
	params.Set("message", message)

	var resp RoutePreview
	if err := c.get(ctx, "/v1/route/preview?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAgents returns the effective agent set: defaults merged with persisted
// overrides. Requires admin role.
func (c *Client) ListAgents(ctx context.Context) (*AgentList, error) {
	var resp AgentList
	if err := c.get(ctx, "/v1/agents", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateAgent upserts one agent override. The agentID parameter wins over any
// ID in the config. Requires admin role.
func (c *Client) UpdateAgent(ctx context.Context, agentID string, agent AgentConfig) (*AgentConfig, error) {
	var resp AgentConfig
	if err := c.put(ctx, "/v1/agents/"+url.PathEscape(agentID), agent, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health reports server liveness and storage connectivity. No auth required.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.getNoAuth(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	req, err := c.jsonRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return c.doRequest(ctx, req, dest)
}

func (c *Client) put(ctx context.Context, path string, body any, dest any) error {
	req, err := c.jsonRequest(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	return c.doRequest(ctx, req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("pat: create request: %w", err)
	}
	return c.doRequest(ctx, req, dest)
}

func (c *Client) getNoAuth(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("pat: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pat: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("pat: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("pat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) doRequest(ctx context.Context, req *http.Request, dest any) error {
	token, err := c.tokens.getToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pat: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("pat: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("pat: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return json.Unmarshal(bodyBytes, dest)
	}
	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
