package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIClient calls any OpenAI-compatible API (embeddings and chat
// completions). Works with vLLM, LiteLLM, LocalAI, OpenRouter, self-hosted
// models, and OpenAI itself. baseURL should include the /v1 prefix.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIClient builds an OpenAI-compatible client. apiKey can be empty
// for local deployments without authentication.
func NewOpenAIClient(baseURL, apiKey string, timeout time.Duration) *OpenAIClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OpenAIClient) doJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai-compat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("openai-compat api error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("openai-compat api error: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("openai-compat decode: %w", err)
	}
	return nil
}

// OpenAIEmbedder wraps OpenAIClient with a fixed embedding model.
type OpenAIEmbedder struct {
	client *OpenAIClient
	model  string
}

// NewOpenAIEmbedder builds an OpenAI-compatible Embedder.
func NewOpenAIEmbedder(client *OpenAIClient, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

// EmbedText implements Embedder using the /embeddings endpoint.
func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(e.model) == "" {
		return nil, fmt.Errorf("openai-compat embedding model required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embedding text required")
	}
	var resp oaiEmbedResponse
	if err := e.client.doJSON(ctx, "/embeddings", oaiEmbedRequest{Model: e.model, Input: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai-compat embed response missing embedding")
	}
	return resp.Data[0].Embedding, nil
}

// OpenAIGenerator wraps OpenAIClient with a fixed chat model.
type OpenAIGenerator struct {
	client *OpenAIClient
	model  string
}

// NewOpenAIGenerator builds an OpenAI-compatible TextGenerator.
func NewOpenAIGenerator(client *OpenAIClient, model string) *OpenAIGenerator {
	return &OpenAIGenerator{client: client, model: model}
}

// GenerateText implements TextGenerator using the /chat/completions endpoint.
func (g *OpenAIGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(g.model) == "" {
		return "", fmt.Errorf("openai-compat generation model required")
	}
	messages := make([]oaiMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, oaiMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, oaiMessage{Role: "user", Content: userPrompt})

	var resp oaiChatResponse
	if err := g.client.doJSON(ctx, "/chat/completions", oaiChatRequest{Model: g.model, Messages: messages}, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai-compat api")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from openai-compat api")
	}
	return text, nil
}

// OpenAI-compatible request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type oaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
