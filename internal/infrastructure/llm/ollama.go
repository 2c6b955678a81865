package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OllamaProvider calls a local Ollama server's generate endpoint
type OllamaProvider struct {
	client      *http.Client
	baseURL     string
	model       string
	temperature float64
}

// NewOllamaProvider creates an Ollama provider
func NewOllamaProvider(client *http.Client, cfg Config) *OllamaProvider {
	return &OllamaProvider{
		client:      client,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Name implements Provider
func (p *OllamaProvider) Name() string { return ProviderOllama }

// Complete implements Provider
func (p *OllamaProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   p.model,
		Prompt:  prompt.Text(),
		Stream:  false,
		Options: map[string]any{"temperature": p.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out generateResponse
	if err := doJSON(p.client, req, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Response), nil
}
