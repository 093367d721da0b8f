package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/xhad/guardian/internal/models"
	"github.com/xhad/guardian/internal/types"
)

// ErrEmptyCorpus is returned by Build when there is nothing to index.
// Callers treat it as "no index", not as a failure.
var ErrEmptyCorpus = errors.New("empty corpus")

// Neighbor is one query hit.
type Neighbor struct {
	Chunk    models.Chunk
	Distance float64
}

// Searchable is what the retriever needs from an index, so an approximate
// structure can replace the flat one.
type Searchable interface {
	Query(ctx context.Context, emb types.Embedder, text string, k int) ([]Neighbor, error)
	Len() int
}

// Index is an exact nearest-neighbor index over L2 distance. It owns the
// chunks it was built from so vectors[i] always belongs to chunks[i].
// An Index is immutable after Build.
type Index struct {
	dim      int
	embedder string
	chunks   []models.Chunk
	vectors  [][]float32
}

// Build embeds all chunks in one batch and indexes them.
func Build(ctx context.Context, chunks []models.Chunk, emb types.Embedder) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyCorpus
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := emb.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed %d chunks: %w", types.ErrEmbedding, len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: embedder %s returned %d vectors for %d chunks", types.ErrEmbedding, emb.Name(), len(vectors), len(chunks))
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return nil, fmt.Errorf("%w: embedder %s returned inconsistent dimension %d at chunk %d", types.ErrEmbedding, emb.Name(), len(v), i)
		}
	}

	owned := make([]models.Chunk, len(chunks))
	copy(owned, chunks)

	return &Index{
		dim:      dim,
		embedder: emb.Name(),
		chunks:   owned,
		vectors:  vectors,
	}, nil
}

// Query returns up to k chunks ordered by ascending distance to text. On
// equal distance a chunk whose text is exactly text comes first, then
// insertion order. A nil index yields no neighbors.
func (ix *Index) Query(ctx context.Context, emb types.Embedder, text string, k int) ([]Neighbor, error) {
	if ix == nil || len(ix.chunks) == 0 || k <= 0 {
		return []Neighbor{}, nil
	}
	if k > len(ix.chunks) {
		k = len(ix.chunks)
	}
	if emb.Name() != ix.embedder {
		return nil, fmt.Errorf("%w: index built with %s, queried with %s", types.ErrEmbedding, ix.embedder, emb.Name())
	}

	vectors, err := emb.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %w", types.ErrEmbedding, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder %s returned %d vectors for one query", types.ErrEmbedding, emb.Name(), len(vectors))
	}
	q := vectors[0]
	if len(q) != ix.dim {
		return nil, fmt.Errorf("%w: query dimension %d does not match index dimension %d", types.ErrEmbedding, len(q), ix.dim)
	}

	hits := make([]Neighbor, len(ix.chunks))
	for i, v := range ix.vectors {
		hits[i] = Neighbor{Chunk: ix.chunks[i], Distance: squaredL2(q, v)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].Chunk.Text == text && hits[b].Chunk.Text != text
	})

	hits = hits[:k]
	for i := range hits {
		hits[i].Distance = math.Sqrt(hits[i].Distance)
	}
	return hits, nil
}

// Len is the number of indexed chunks.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.chunks)
}

func (ix *Index) Dimension() int {
	if ix == nil {
		return 0
	}
	return ix.dim
}

// Chunks returns a copy of the indexed chunks in insertion order.
func (ix *Index) Chunks() []models.Chunk {
	if ix == nil {
		return nil
	}
	out := make([]models.Chunk, len(ix.chunks))
	copy(out, ix.chunks)
	return out
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
