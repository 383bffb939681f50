package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
)

// OllamaEmbedder calls the Ollama embeddings endpoint.
type OllamaEmbedder struct {
	apiURL string
	model  string
	client *http.Client
}

type OllamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type OllamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllamaEmbedder(baseURL, model string, client *http.Client) *OllamaEmbedder {
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaEmbedder{
		apiURL: baseURL + "/api/embeddings",
		model:  model,
		client: client,
	}
}

func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var ollamaResp OllamaEmbeddingResponse
	if err := postJSON(ctx, e.client, e.apiURL, OllamaEmbeddingRequest{Model: e.model, Prompt: text}, &ollamaResp); err != nil {
		return nil, err
	}
	if len(ollamaResp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}

	norm := normalize64(ollamaResp.Embedding)
	embedding := make([]float32, len(norm))
	for i, v := range norm {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// OllamaGenerator calls the Ollama generate endpoint with streaming disabled.
type OllamaGenerator struct {
	apiURL string
	model  string
	client *http.Client
}

type GenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type GenerateResponse struct {
	Response string `json:"response"`
}

func NewOllamaGenerator(baseURL, model string, client *http.Client) *OllamaGenerator {
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaGenerator{
		apiURL: baseURL + "/api/generate",
		model:  model,
		client: client,
	}
}

func (g *OllamaGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	req := GenerateRequest{
		Model:   g.model,
		System:  system,
		Prompt:  user,
		Options: map[string]any{"temperature": Temperature},
	}
	var genResp GenerateResponse
	if err := postJSON(ctx, g.client, g.apiURL, req, &genResp); err != nil {
		return "", err
	}
	return genResp.Response, nil
}

// postJSON sends body as JSON and decodes the reply into out. A reply made of
// several JSON objects is treated as a stream and its "response" fields are
// concatenated.
func postJSON(ctx context.Context, client *http.Client, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err == nil {
		return nil
	}

	gen, ok := out.(*GenerateResponse)
	if !ok {
		return fmt.Errorf("failed to unmarshal response: %s", string(respBody))
	}
	decoder := json.NewDecoder(bytes.NewReader(respBody))
	for decoder.More() {
		var part GenerateResponse
		if err := decoder.Decode(&part); err != nil {
			return fmt.Errorf("failed to decode stream: %w", err)
		}
		gen.Response += part.Response
	}
	return nil
}

func normalize64(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}

	for i, x := range vec {
		vec[i] = x / norm
	}
	return vec
}
