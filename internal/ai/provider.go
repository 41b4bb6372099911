package ai

import (
	"fmt"

	"github.com/cybertechlabs/go-voice-backend/internal/config"
)

// NewProvider builds the Embedder and TextGenerator selected by
// configuration. The generator is nil when no chat model is configured;
// callers treat a nil generator as "rule-based only".
func NewProvider(cfg config.EmbeddingConfig) (Embedder, TextGenerator, error) {
	switch cfg.Provider {
	case "ollama":
		client := NewOllamaClient(cfg.BaseURL, cfg.Timeout)
		emb := NewOllamaEmbedder(client, cfg.Model)
		if cfg.ChatModel == "" {
			return emb, nil, nil
		}
		return emb, NewOllamaGenerator(client, cfg.ChatModel), nil
	case "openai":
		client := NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
		emb := NewOpenAIEmbedder(client, cfg.Model)
		if cfg.ChatModel == "" {
			return emb, nil, nil
		}
		return emb, NewOpenAIGenerator(client, cfg.ChatModel), nil
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
