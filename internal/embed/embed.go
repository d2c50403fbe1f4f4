// Package embed provides the embedding HTTP client used by C8's
// similarity index to turn an Incident's summary_text into a fixed-
// dimension vector, modeled on the teacher's tools/embedding wrapper.
package embed

import (
	"context"
	"fmt"

	"github.com/riverwatch/riverwatch/internal/httpx"
)

// Client calls an external embedding service.
type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	model   string
	dim     int
}

// New builds a Client against an OpenAI-compatible embeddings endpoint.
func New(http *httpx.Client, baseURL, apiKey, model string, dim int) *Client {
	return &Client{http: http, baseURL: baseURL, apiKey: apiKey, model: model, dim: dim}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedOne produces a single embedding vector for text. Returns
// model.ErrEmbeddingFailure-wrappable errors on terminal failure; the
// caller is expected to attribute the incident_id.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed: empty response")
	}
	return vectors[0], nil
}

// EmbedMany batches multiple texts into one embedding-service call.
func (c *Client) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embedRequest{Model: c.model, Input: texts}
	var resp embedResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := c.http.PostJSON(ctx, "embedding", c.baseURL+"/embeddings", headers, req, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Dim returns the fixed embedding dimensionality this client produces.
func (c *Client) Dim() int { return c.dim }
