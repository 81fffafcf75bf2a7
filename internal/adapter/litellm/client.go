// Package litellm implements the content generator against the LiteLLM proxy's
// OpenAI-compatible chat completions API.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/StratForge/internal/config"
	"github.com/Strob0t/StratForge/internal/port/generator"
	"github.com/Strob0t/StratForge/internal/resilience"
)

var _ generator.Generator = (*Client)(nil)

// StatusError is returned for non-2xx proxy responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("litellm API error %d: %s", e.Code, e.Body)
}

// IsTransient reports whether err should count against the circuit breaker.
// Client errors other than 408 and 429 are the caller's fault, not the proxy's.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests || se.Code == http.StatusRequestTimeout
	}
	return true
}

// Client talks to the LiteLLM proxy.
type Client struct {
	baseURL    string
	masterKey  string
	model      string
	maxTokens  int
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a LiteLLM client from config.
func NewClient(cfg config.LiteLLM) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		masterKey:  cfg.MasterKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const (
	stageInstruction = "You write the %s pillar (%s) of a brand strategy. " +
		"The user message is a JSON context bundle with the interview answers, strategy metadata and the outputs of earlier pillars. " +
		"Prior outputs marked stale come from a failed stage and may be outdated. " +
		"Reply with a single JSON object for this pillar and nothing else."
	backfillInstruction = "You complete missing interview answers for a brand strategy. " +
		"The user message lists the strategy, the known answers and the variables to fill. " +
		"Reply with a single JSON object mapping variable id to a concise answer. Omit variables you cannot answer."
)

// Generate produces the content of req.Stage. Object replies are returned as
// is; any other reply text is returned as a JSON string.
func (c *Client) Generate(ctx context.Context, req generator.StageRequest) (json.RawMessage, error) {
	bundle, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s bundle: %w", generator.ErrGeneration, req.Stage, err)
	}

	text, err := c.complete(ctx, fmt.Sprintf(stageInstruction, req.Stage.Name(), req.Stage), string(bundle))
	if err != nil {
		return nil, fmt.Errorf("%w: stage %s: %w", generator.ErrGeneration, req.Stage, err)
	}

	trimmed := strings.TrimSpace(stripFence(text))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: stage %s: empty completion", generator.ErrGeneration, req.Stage)
	}
	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "{") {
		return json.RawMessage(trimmed), nil
	}
	quoted, err := json.Marshal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: stage %s: %w", generator.ErrGeneration, req.Stage, err)
	}
	return quoted, nil
}

// Backfill proposes values for req.Variables. Non-string values are dropped.
func (c *Client) Backfill(ctx context.Context, req generator.BackfillRequest) (map[string]string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal backfill: %w", generator.ErrGeneration, err)
	}

	text, err := c.complete(ctx, backfillInstruction, string(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: backfill: %w", generator.ErrGeneration, err)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(stripFence(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: decode backfill: %w", generator.ErrGeneration, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// Health checks if LiteLLM is healthy.
func (c *Client) Health(ctx context.Context) (bool, error) {
	_, err := c.doRequest(ctx, http.MethodGet, "/health/liveliness", nil)
	return err == nil, err
}

// BreakerState reports the circuit state, or "disabled" without a breaker.
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State()
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:      c.maxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/v1/chat/completions", body)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// stripFence removes a surrounding markdown code fence some models add
// despite the JSON response format.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.masterKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.masterKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return &StatusError{Code: resp.StatusCode, Body: string(data)}
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
