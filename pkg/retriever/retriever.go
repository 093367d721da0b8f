package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xhad/guardian/internal/types"
	"github.com/xhad/guardian/pkg/store"
)

const chunkSeparator = "\n\n"

type RetrieverConfig struct {
	TopK int
}

// Retriever turns a query into a block of context text from an index.
type Retriever struct {
	config   RetrieverConfig
	embedder types.Embedder
	logger   *slog.Logger
}

func NewWithConfig(embedder types.Embedder, config RetrieverConfig) *Retriever {
	if config.TopK <= 0 {
		config.TopK = 3
	}
	return &Retriever{
		config:   config,
		embedder: embedder,
		logger:   slog.Default(),
	}
}

// Context is the result of one retrieval.
type Context struct {
	Text      string
	Neighbors []store.Neighbor
}

// Empty reports whether nothing was retrieved.
func (c Context) Empty() bool {
	return strings.TrimSpace(c.Text) == ""
}

// Retrieve joins the texts of the nearest chunks, closest first. A missing
// or empty index yields an empty Context and no error.
func (r *Retriever) Retrieve(ctx context.Context, idx store.Searchable, query string) (Context, error) {
	if idx == nil || idx.Len() == 0 {
		return Context{}, nil
	}

	hits, err := idx.Query(ctx, r.embedder, query, r.config.TopK)
	if err != nil {
		return Context{}, fmt.Errorf("failed to query index: %w", err)
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Chunk.Text
	}

	r.logger.Debug("retrieved context", "hits", len(hits), "top_k", r.config.TopK)
	return Context{
		Text:      strings.Join(texts, chunkSeparator),
		Neighbors: hits,
	}, nil
}
