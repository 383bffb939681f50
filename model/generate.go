package model

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"knowledge/config"
)

// Temperature keeps grounded answers close to the supplied context.
const Temperature = 0.1

// Generator is the chat completion collaborator.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

func NewGenerator(cfg *config.Config) (Generator, error) {
	switch cfg.ChatProvider {
	case "ollama":
		return NewOllamaGenerator(cfg.OllamaURL, cfg.ChatModel, &http.Client{Timeout: 5 * time.Minute}), nil
	case "openai":
		return NewOpenAIGenerator(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.ChatModel)
	}
	return nil, fmt.Errorf("unknown chat provider %q", cfg.ChatProvider)
}
