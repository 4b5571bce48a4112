package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/atelierhq/recall/internal/config"
)

// Client calls an Ollama-compatible /api/embed endpoint.
type Client struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
}

// NewClient creates an embedding client from config. The configured timeout
// bounds every call; a timeout surfaces as ErrUnavailable.
func NewClient(cfg config.EmbeddingConfig) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embedding endpoint: %w", ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading embed response: %w", ErrUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned %d: %w", resp.StatusCode, ErrUnavailable)
	}

	var result embedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", ErrUnavailable)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned no vectors: %w", ErrUnavailable)
	}

	vec := result.Embeddings[0]
	if len(vec) != c.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d: %w", len(vec), c.dimension, ErrUnavailable)
	}
	return vec, nil
}

// Dimensions returns the configured vector size.
func (c *Client) Dimensions() int {
	return c.dimension
}
