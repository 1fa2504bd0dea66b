package services

import (
	"autorag-api/internal/config"
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

var ErrEmptyCompletion = errors.New("model returned an empty completion")

type Message struct {
	Role    string
	Content string
}

type GenerateRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type GeminiAIClient struct {
	client         *genai.Client
	embeddingModel string
}

type GeminiAIClientOption func(*GeminiAIClient)

func WithEmbeddingModel(model string) GeminiAIClientOption {
	return func(c *GeminiAIClient) {
		if model != "" {
			c.embeddingModel = model
		}
	}
}

func NewGeminiAIClient(ctx context.Context, cfg config.AIConfig, opts ...GeminiAIClientOption) (*GeminiAIClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}

	g := &GeminiAIClient{
		client:         client,
		embeddingModel: cfg.EmbeddingModel,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *GeminiAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, errors.New("embedding response was empty")
	}
	return result.Embeddings[0].Values, nil
}

// Generate sends system messages as the system instruction and the rest as
// user turns.
func (g *GeminiAIClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var system []string
	var contents []*genai.Content
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		contents = append(contents, &genai.Content{Role: string(genai.RoleUser), Parts: []*genai.Part{{Text: m.Content}}})
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}

	result, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
