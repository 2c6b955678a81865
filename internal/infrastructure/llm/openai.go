package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/salesplan/backend/internal/domain/shared"
)

// OpenAIProvider calls an OpenAI compatible chat completions endpoint
// (OpenAI, Fireworks, vLLM and similar).
type OpenAIProvider struct {
	client      *http.Client
	baseURL     string
	model       string
	apiKey      string
	temperature float64
	maxTokens   int
}

// NewOpenAIProvider creates a chat completions provider
func NewOpenAIProvider(client *http.Client, cfg Config) *OpenAIProvider {
	return &OpenAIProvider{
		client:      client,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Name implements Provider
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// Complete implements Provider
func (p *OpenAIProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	var out chatResponse
	if err := doJSON(p.client, req, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", shared.ErrUpstreamUnavailable.WithDetail("chat completion returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// doJSON sends req and decodes a 2xx JSON body into out
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", shared.ErrQueryTimeout, ctxErr)
		}
		return fmt.Errorf("%w: %v", shared.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return shared.ErrUpstreamUnavailable.WithDetail(
			fmt.Sprintf("model endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", shared.ErrUpstreamUnavailable, err)
	}
	return nil
}
