package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/guardian/internal/models"
	"github.com/xhad/guardian/internal/types"
	"github.com/xhad/guardian/pkg/llm"
	"github.com/xhad/guardian/pkg/store"
)

// countingEmbedder wraps an embedder and counts Embed calls.
type countingEmbedder struct {
	types.Embedder
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.Embedder.Embed(ctx, texts)
}

func testChunks() []models.Chunk {
	texts := []string{
		"Phishing is a scam where attackers impersonate banks in emails to steal passwords.",
		"BNPL stands for Buy Now Pay Later, a short term instalment loan at checkout.",
		"Account takeover happens when criminals log in to a victim's account with stolen credentials.",
		"Identity theft is the use of someone else's personal data to open new accounts.",
	}
	chunks := make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{Index: i, Source: "kb.txt", Text: t}
	}
	return chunks
}

func TestBuildEmptyCorpus(t *testing.T) {
	emb := &countingEmbedder{Embedder: llm.NewHashEmbedder(64)}

	idx, err := store.Build(context.Background(), nil, emb)
	assert.Nil(t, idx)
	assert.ErrorIs(t, err, store.ErrEmptyCorpus)
	assert.Equal(t, 0, emb.calls)
}

func TestBuildEmbeddingFailure(t *testing.T) {
	emb := &countingEmbedder{Embedder: llm.NewHashEmbedder(64), err: errors.New("boom")}

	idx, err := store.Build(context.Background(), testChunks(), emb)
	assert.Nil(t, idx)
	assert.ErrorContains(t, err, "boom")
	assert.ErrorIs(t, err, types.ErrEmbedding)
}

func TestQueryEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	emb := &countingEmbedder{Embedder: llm.NewHashEmbedder(64)}
	idx, err := store.Build(ctx, testChunks(), emb)
	require.NoError(t, err)

	emb.err = errors.New("connection refused")
	_, err = idx.Query(ctx, emb, "phishing", 1)
	assert.ErrorIs(t, err, types.ErrEmbedding)
}

func TestQueryExactTextWinsTie(t *testing.T) {
	ctx := context.Background()
	emb := llm.NewHashEmbedder(64)
	chunks := []models.Chunk{
		{Index: 0, Text: "Report fraud to the bank."},
		{Index: 1, Text: "report FRAUD to the bank!"},
	}
	idx, err := store.Build(ctx, chunks, emb)
	require.NoError(t, err)

	for i, c := range chunks {
		hits, err := idx.Query(ctx, emb, c.Text, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, i, hits[0].Chunk.Index)
		assert.Equal(t, hits[0].Distance, hits[1].Distance)
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	emb := &countingEmbedder{Embedder: llm.NewHashEmbedder(256)}
	chunks := testChunks()

	idx, err := store.Build(ctx, chunks, emb)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls, "build embeds in one batch")
	assert.Equal(t, len(chunks), idx.Len())
	assert.Equal(t, 256, idx.Dimension())
	assert.Equal(t, chunks, idx.Chunks())

	for _, c := range chunks {
		hits, err := idx.Query(ctx, emb, c.Text, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, c, hits[0].Chunk)
		assert.InDelta(t, 0, hits[0].Distance, 1e-6)
	}
}

func TestQueryOrderingAndClamp(t *testing.T) {
	ctx := context.Background()
	emb := llm.NewHashEmbedder(256)
	idx, err := store.Build(ctx, testChunks(), emb)
	require.NoError(t, err)

	hits, err := idx.Query(ctx, emb, "What is BNPL?", 10)
	require.NoError(t, err)
	require.Len(t, hits, 4, "k is clamped to corpus size")
	assert.Contains(t, hits[0].Chunk.Text, "Buy Now Pay Later")
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}

	hits, err = idx.Query(ctx, emb, "What is BNPL?", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	emb := llm.NewHashEmbedder(32)
	chunks := []models.Chunk{
		{Index: 0, Text: "same text"},
		{Index: 1, Text: "same text"},
		{Index: 2, Text: "same text"},
	}
	idx, err := store.Build(ctx, chunks, emb)
	require.NoError(t, err)

	hits, err := idx.Query(ctx, emb, "same text", 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for i, h := range hits {
		assert.Equal(t, i, h.Chunk.Index)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	ctx := context.Background()
	emb := llm.NewHashEmbedder(128)

	a, err := store.Build(ctx, testChunks(), emb)
	require.NoError(t, err)
	b, err := store.Build(ctx, testChunks(), emb)
	require.NoError(t, err)

	for _, q := range []string{"stolen credentials", "instalment loan", "emails from banks"} {
		hitsA, err := a.Query(ctx, emb, q, 3)
		require.NoError(t, err)
		hitsB, err := b.Query(ctx, emb, q, 3)
		require.NoError(t, err)
		assert.Equal(t, hitsA, hitsB)
	}
}

func TestNilIndex(t *testing.T) {
	var idx *store.Index
	emb := &countingEmbedder{Embedder: llm.NewHashEmbedder(16)}

	hits, err := idx.Query(context.Background(), emb, "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 0, idx.Len())
	assert.Nil(t, idx.Chunks())
	assert.Equal(t, 0, emb.calls)
}

func TestQueryWithDifferentEmbedder(t *testing.T) {
	ctx := context.Background()
	idx, err := store.Build(ctx, testChunks(), llm.NewHashEmbedder(64))
	require.NoError(t, err)

	_, err = idx.Query(ctx, llm.NewHashEmbedder(128), "phishing", 1)
	assert.ErrorIs(t, err, types.ErrEmbedding)
}
