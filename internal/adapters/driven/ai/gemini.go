package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

var _ driven.ProviderClient = (*GeminiProvider)(nil)

// GeminiProvider calls the Generative Language REST API.
type GeminiProvider struct {
	embedModel string
	genModel   string
	baseURL    string
	dimensions int
	client     *http.Client
}

// NewGeminiProvider creates a provider. Empty arguments take defaults.
func NewGeminiProvider(embedModel, genModel, baseURL string, dimensions int) *GeminiProvider {
	if embedModel == "" {
		embedModel = "gemini-embedding-001"
	}
	if genModel == "" {
		genModel = "gemini-1.5-flash"
	}
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiProvider{
		embedModel: embedModel,
		genModel:   genModel,
		baseURL:    strings.TrimRight(baseURL, "/"),
		dimensions: dimensions,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *GeminiProvider) Name() string           { return "gemini" }
func (p *GeminiProvider) EmbeddingModel() string { return p.embedModel }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type geminiEmbedRequest struct {
	Model                string        `json:"model"`
	Content              geminiContent `json:"content"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
	Error *geminiError `json:"error,omitempty"`
}

type geminiGenerateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *geminiError `json:"error,omitempty"`
}

func (p *GeminiProvider) EmbedWithKey(ctx context.Context, key, text string) ([]float32, error) {
	var resp geminiEmbedResponse
	req := geminiEmbedRequest{
		Model:                "models/" + p.embedModel,
		Content:              geminiContent{Parts: []geminiPart{{Text: text}}},
		OutputDimensionality: p.dimensions,
	}
	if err := p.post(ctx, key, p.embedModel+":embedContent", req, &resp, func() *geminiError { return resp.Error }); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Embedding.Values, nil
}

func (p *GeminiProvider) GenerateWithKey(ctx context.Context, key, prompt string) (string, error) {
	var resp geminiGenerateResponse
	req := geminiGenerateRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}}
	if err := p.post(ctx, key, p.genModel+":generateContent", req, &resp, func() *geminiError { return resp.Error }); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// post calls models/{method}. HTTP 429 and RESOURCE_EXHAUSTED wrap
// domain.ErrQuotaExhausted.
func (p *GeminiProvider) post(ctx context.Context, key, method string, body, out any, apiErr func() *geminiError) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/models/"+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

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
		return fmt.Errorf("%w: gemini status %d", domain.ErrQuotaExhausted, resp.StatusCode)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	if e := apiErr(); e != nil {
		if e.Status == "RESOURCE_EXHAUSTED" || e.Code == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", domain.ErrQuotaExhausted, e.Message)
		}
		return fmt.Errorf("Gemini API error %d %s: %s", e.Code, e.Status, e.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Gemini API returned status %d", resp.StatusCode)
	}
	return nil
}
