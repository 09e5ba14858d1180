package service

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder generates vector embeddings via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	opts   EmbeddingOptions
	cb     *breaker
}

// NewOpenAIEmbedder creates an embedder. An empty baseURL uses the public API.
func NewOpenAIEmbedder(apiKey, baseURL string, opts EmbeddingOptions) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		opts:   opts,
		cb:     newBreaker(),
	}
}

// Generate produces a vector embedding for the given text.
func (e *OpenAIEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	var result []float32

	err := e.cb.do(func() error {
		ctx, cancel := context.WithTimeout(ctx, embeddingTimeout)
		defer cancel()

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input:      []string{truncateRunes(text, e.opts.MaxChars)},
			Model:      openai.EmbeddingModel(e.opts.Model),
			Dimensions: e.opts.Dimensions,
		})
		if err != nil {
			return fmt.Errorf("calling openai embeddings API: %w", err)
		}

		if len(resp.Data) == 0 {
			return fmt.Errorf("openai returned empty embeddings")
		}

		result, err = checkDimensions(resp.Data[0].Embedding, e.opts.Dimensions)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
