package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/guardian/internal/types"
)

var ErrEmbedding = types.ErrEmbedding

// EmbedderConfig represents the configuration for an embedder.
type EmbedderConfig struct {
	Provider  string // hash, ollama, googleai or openai
	Model     string
	BaseURL   string // Ollama server URL
	APIKey    string
	Dimension int // hash only
	BatchSize int
}

// NewEmbedderWithConfig builds the embedder selected by config.Provider.
func NewEmbedderWithConfig(ctx context.Context, config EmbedderConfig) (types.Embedder, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}

	var client embeddings.EmbedderClient
	switch config.Provider {
	case "", "hash":
		return NewHashEmbedder(config.Dimension), nil
	case "ollama":
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
		}
		client = emb
	case "googleai":
		emb, err := googleai.New(ctx,
			googleai.WithAPIKey(config.APIKey),
			googleai.WithDefaultEmbeddingModel(config.Model))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize googleai embedder: %w", err)
		}
		client = emb
	case "openai":
		emb, err := newOpenAIClient(config.APIKey, config.Model)
		if err != nil {
			return nil, err
		}
		client = emb
	default:
		return nil, fmt.Errorf("unknown embedder provider: %s", config.Provider)
	}

	e, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return NewRemoteEmbedder(config.Provider+"-"+config.Model, e), nil
}

// RemoteEmbedder adapts a langchaingo embedder and enforces a stable vector
// length across calls.
type RemoteEmbedder struct {
	name   string
	client embeddings.Embedder

	mu  sync.Mutex
	dim int
}

func NewRemoteEmbedder(name string, client embeddings.Embedder) *RemoteEmbedder {
	return &RemoteEmbedder{name: name, client: client}
}

func (e *RemoteEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := e.client.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEmbedding, e.name, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", ErrEmbedding, e.name, len(vectors), len(texts))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: %s returned an empty vector at %d", ErrEmbedding, e.name, i)
		}
		if e.dim == 0 {
			e.dim = len(v)
		}
		if len(v) != e.dim {
			return nil, fmt.Errorf("%w: %s returned dimension %d, expected %d", ErrEmbedding, e.name, len(v), e.dim)
		}
	}
	return vectors, nil
}

// Dimension is zero until the first successful call.
func (e *RemoteEmbedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

func (e *RemoteEmbedder) Name() string {
	return e.name
}

// HashEmbedder is a local, deterministic bag-of-words embedder using the
// hashing trick. Identical texts always map to identical vectors and texts
// sharing rare terms land close together. Case, punctuation and stopwords
// are dropped, so texts with the same remaining terms share a vector.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEmbedder{dim: dimension}
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	counts := make(map[string]int)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if isStopword(tok) {
			continue
		}
		counts[tok]++
	}

	vec := make([]float32, e.dim)
	for tok, n := range counts {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()

		weight := float32(1 + math.Log(float64(n)))
		if sum>>63 == 1 {
			weight = -weight
		}
		vec[sum%uint64(e.dim)] += weight
	}

	l2normalize(vec)
	return vec
}

func (e *HashEmbedder) Dimension() int {
	return e.dim
}

func (e *HashEmbedder) Name() string {
	return fmt.Sprintf("hash-%d", e.dim)
}

func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {}, "for": {},
	"from": {}, "has": {}, "he": {}, "in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"that": {}, "the": {}, "to": {}, "was": {}, "were": {}, "will": {}, "with": {},
	"what": {}, "who": {}, "how": {}, "me": {}, "about": {}, "tell": {}, "do": {}, "does": {},
}

func isStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}
