package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// Ensure OpenAIProvider implements ProviderClient
var _ driven.ProviderClient = (*OpenAIProvider)(nil)

// OpenAIProvider calls OpenAI-compatible embedding and chat APIs.
type OpenAIProvider struct {
	embedModel string
	chatModel  string
	baseURL    string
	dimensions int
	client     *http.Client
}

// NewOpenAIProvider creates a provider. Empty arguments take defaults.
func NewOpenAIProvider(embedModel, chatModel, baseURL string, dimensions int) *OpenAIProvider {
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		embedModel: embedModel,
		chatModel:  chatModel,
		baseURL:    baseURL,
		dimensions: dimensions,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (p *OpenAIProvider) Name() string           { return "openai" }
func (p *OpenAIProvider) EmbeddingModel() string { return p.embedModel }

// embeddingRequest is the request body for the embeddings API
type embeddingRequest struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	EncodingFormat string `json:"encoding_format,omitempty"`
	Dimensions     int    `json:"dimensions,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// embeddingResponse is the response from the embeddings API
type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *openAIError `json:"error,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *openAIError `json:"error,omitempty"`
}

func (p *OpenAIProvider) EmbedWithKey(ctx context.Context, key, text string) ([]float32, error) {
	var resp embeddingResponse
	err := p.doRequest(ctx, key, "/embeddings", embeddingRequest{
		Input:          text,
		Model:          p.embedModel,
		EncodingFormat: "float",
		Dimensions:     p.dimensions,
	}, &resp, func() *openAIError { return resp.Error })
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}

func (p *OpenAIProvider) GenerateWithKey(ctx context.Context, key, prompt string) (string, error) {
	var resp chatResponse
	err := p.doRequest(ctx, key, "/chat/completions", chatRequest{
		Model:    p.chatModel,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}, &resp, func() *openAIError { return resp.Error })
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// doRequest posts body and decodes into out. 429 responses and
// insufficient_quota errors wrap domain.ErrQuotaExhausted.
func (p *OpenAIProvider) doRequest(ctx context.Context, key, path string, body, out any, apiErr func() *openAIError) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: openai status %d", domain.ErrQuotaExhausted, resp.StatusCode)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	if e := apiErr(); e != nil {
		if e.Code == "insufficient_quota" || e.Code == "rate_limit_exceeded" {
			return fmt.Errorf("%w: %s", domain.ErrQuotaExhausted, e.Message)
		}
		return fmt.Errorf("OpenAI API error: %s (type: %s, code: %s)", e.Message, e.Type, e.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OpenAI API returned status %d", resp.StatusCode)
	}
	return nil
}
