package llm_test

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	reply   string
	err     error
	prompts []string
	calls   []llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	f.calls = append(f.calls, opts)

	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				f.prompts = append(f.prompts, text.Text)
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// fakeEmbedderClient stands in for langchaingo's embeddings.Embedder.
type fakeEmbedderClient struct {
	dims  []int
	calls int
	err   error
}

func (f *fakeEmbedderClient) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	dim := f.dims[f.calls%len(f.dims)]
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dim)
	}
	return out, nil
}

func (f *fakeEmbedderClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("no vectors")
	}
	return vecs[0], nil
}
