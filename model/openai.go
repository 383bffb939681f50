package model

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

type embeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type OpenAIEmbedder struct {
	client embeddingClient
	model  string
}

func NewOpenAIEmbedder(token, baseURL, model string) (*OpenAIEmbedder, error) {
	opts := []openai.Option{openai.WithToken(token), openai.WithEmbeddingModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai embedding client: %w", err)
	}
	return &OpenAIEmbedder{client: llm, model: model}, nil
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.client.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("openai embedding: got %d vectors for one input", len(vectors))
	}
	return vectors[0], nil
}

type OpenAIGenerator struct {
	llm   llms.Model
	model string
}

func NewOpenAIGenerator(token, baseURL, model string) (*OpenAIGenerator, error) {
	opts := []openai.Option{openai.WithToken(token), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai chat client: %w", err)
	}
	return &OpenAIGenerator{llm: llm, model: model}, nil
}

func (g *OpenAIGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := g.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, llms.WithTemperature(Temperature))
	if err != nil {
		return "", fmt.Errorf("openai chat %s: %w", g.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat %s: empty response", g.model)
	}
	return resp.Choices[0].Content, nil
}
