package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/personapulse/personapulse/internal/config"
)

// Client is the outbound text-generation capability: one prompt in, one
// completion out, authenticated by a per-call API key.
type Client interface {
	Complete(ctx context.Context, apiKey, system, prompt string) (string, error)
}

// ProviderError is a generation provider failure. Quota distinguishes
// rate-limit/quota exhaustion, which justifies rotating to the next
// credential, from everything else, which does not.
type ProviderError struct {
	Status  int
	Quota   bool
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.Status, e.Message)
}

// HTTPClient calls an OpenAI-compatible chat completions API.
type HTTPClient struct {
	apiBase     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewHTTPClient creates a provider client from generator config.
func NewHTTPClient(cfg config.GeneratorConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		apiBase:     strings.TrimSuffix(cfg.APIBase, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete sends a chat completion request.
func (c *HTTPClient) Complete(ctx context.Context, apiKey, system, prompt string) (string, error) {
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyError(resp.StatusCode, respBody)
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", &ProviderError{Status: resp.StatusCode, Message: "no choices in response"}
	}
	return strings.TrimSpace(apiResp.Choices[0].Message.Content), nil
}

// quotaMarkers are message fragments providers use for quota exhaustion when
// the status code alone is ambiguous.
var quotaMarkers = []string{"quota", "rate limit", "rate_limit", "insufficient_quota"}

func classifyError(status int, body []byte) *ProviderError {
	msg := string(body)
	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Error != nil {
		msg = apiResp.Error.Message
	}
	quota := status == http.StatusTooManyRequests
	if !quota {
		lower := strings.ToLower(msg)
		for _, marker := range quotaMarkers {
			if strings.Contains(lower, marker) {
				quota = true
				break
			}
		}
	}
	return &ProviderError{Status: status, Quota: quota, Message: msg}
}
