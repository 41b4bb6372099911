// Package ai provides the model-provider capability interfaces and their
// HTTP client implementations (Ollama and OpenAI-compatible endpoints).
// The retrieval engine and summarizer depend only on the interfaces; the
// concrete provider is selected once, at startup, by the factory.
package ai

import "context"

// Embedder produces a vector embedding for a piece of text.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// TextGenerator produces a completion for a system/user prompt pair.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
