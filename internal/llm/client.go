// Package llm is Pat's boundary to text-completion providers. The provider is
// a black box with a request/response contract; model and temperature come
// from agent configuration, never from code.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hipat/pat/internal/model"
	"github.com/hipat/pat/internal/retry"
)

// ErrCompletion is the base error for failed completion calls.
var ErrCompletion = errors.New("llm: completion failed")

// Message is one turn of conversation context.
type Message struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// Request is a completion request: composed instructions plus conversation
// context and the agent's API binding.
type Request struct {
	Messages []Message
	Binding  model.APIBinding
}

// Usage is the provider's token accounting for a call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a completed text generation.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Client produces completions.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// HTTPClient talks to an OpenAI-compatible chat completions endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	tries      int
	baseDelay  time.Duration
}

// NewHTTPClient creates a client for baseURL (e.g. "https://api.openai.com").
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		tries:      retry.DefaultTries,
		baseDelay:  retry.DefaultBase,
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	Temperature    float64        `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the request, retrying transient transport and 5xx failures.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (Response, error) {
	var out Response
	err := retry.Do(ctx, c.tries, c.baseDelay, func(ctx context.Context) error {
		var attemptErr error
		out, attemptErr = c.completeOnce(ctx, req)
		return attemptErr
	})
	return out, err
}

func (c *HTTPClient) completeOnce(ctx context.Context, req Request) (Response, error) {
	payload := chatRequest{
		Model:       req.Binding.Model,
		Messages:    req.Messages,
		Temperature: req.Binding.Temperature,
		MaxTokens:   req.Binding.MaxOutputTokens,
	}
	if req.Binding.ResponseFormat == "json" {
		payload.ResponseFormat = map[string]any{"type": "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("%w: marshal request: %v", ErrCompletion, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("%w: create request: %v", ErrCompletion, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, retry.Transient(fmt.Errorf("%w: %v", ErrCompletion, err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, retry.Transient(fmt.Errorf("%w: read response: %v", ErrCompletion, err))
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: status %d: %s", ErrCompletion, resp.StatusCode, string(raw))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return Response{}, retry.Transient(err)
		}
		return Response{}, err
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Response{}, fmt.Errorf("%w: unmarshal response: %v", ErrCompletion, err)
	}
	if decoded.Error != nil {
		return Response{}, fmt.Errorf("%w: %s: %s", ErrCompletion, decoded.Error.Type, decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: no choices in response", ErrCompletion)
	}

	return Response{
		Text:  decoded.Choices[0].Message.Content,
		Model: decoded.Model,
		Usage: Usage{
			InputTokens:  decoded.Usage.PromptTokens,
			OutputTokens: decoded.Usage.CompletionTokens,
		},
	}, nil
}
