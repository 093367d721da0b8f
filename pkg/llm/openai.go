package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openAIClient satisfies langchaingo's embeddings.EmbedderClient on top of
// the go-openai SDK.
type openAIClient struct {
	client *openai.Client
	model  string
}

func newOpenAIClient(apiKey, model string) (*openAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is not set")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &openAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

func (c *openAIClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("OpenAI returned out of range index %d", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			v[i] = float32(d.Embedding[i])
		}
		out[d.Index] = v
	}
	return out, nil
}
