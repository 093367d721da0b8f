package processor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"github.com/xhad/guardian/internal/models"
)

// ErrInvalidConfiguration is returned for chunk geometries that cannot make
// progress through the text.
var ErrInvalidConfiguration = errors.New("invalid chunker configuration")

const (
	SplitterWindow    = "window"
	SplitterRecursive = "recursive"
)

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Splitter     string
	// Separators is only used by the recursive splitter.
	Separators []string
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 500
	}
	if config.Splitter == "" {
		config.Splitter = SplitterWindow
	}
	if len(config.Separators) == 0 {
		config.Separators = []string{"\n\n", "\n", ". ", " ", ""}
	}

	if err := validate(config.ChunkSize, config.ChunkOverlap); err != nil {
		return nil, err
	}
	if config.Splitter != SplitterWindow && config.Splitter != SplitterRecursive {
		return nil, fmt.Errorf("%w: unknown splitter %q", ErrInvalidConfiguration, config.Splitter)
	}

	return &Processor{config: config}, nil
}

func validate(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfiguration, chunkSize)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidConfiguration, overlap)
	}
	if overlap >= chunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidConfiguration, overlap, chunkSize)
	}
	return nil
}

// Chunk splits text into ordered chunks tagged with source.
func (p *Processor) Chunk(text, source string) ([]models.Chunk, error) {
	if text == "" {
		return nil, nil
	}

	if p.config.Splitter == SplitterRecursive {
		return p.chunkRecursive(text, source)
	}

	runes := []rune(text)
	step := p.config.ChunkSize - p.config.ChunkOverlap
	chunks := make([]models.Chunk, 0, len(runes)/step+1)

	for start := 0; start < len(runes); start += step {
		end := start + p.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, models.Chunk{
			Index:  len(chunks),
			Source: source,
			Offset: start,
			Text:   string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

// Process chunks every document, using its URL as the chunk source.
func (p *Processor) Process(docs []models.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, doc := range docs {
		docChunks, err := p.Chunk(doc.Content, doc.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk %s: %w", doc.URL, err)
		}
		for _, c := range docChunks {
			c.Index = len(chunks)
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

func (p *Processor) chunkRecursive(text, source string) ([]models.Chunk, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(p.config.ChunkSize),
		textsplitter.WithChunkOverlap(p.config.ChunkOverlap),
		textsplitter.WithSeparators(p.config.Separators),
	)

	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	chunks := make([]models.Chunk, 0, len(parts))
	cursor := 0
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		// The splitter may trim separators, so the offset is best effort.
		offset := -1
		if i := strings.Index(text[cursor:], part); i >= 0 {
			offset = len([]rune(text[:cursor+i]))
			cursor += i
		}
		chunks = append(chunks, models.Chunk{
			Index:  len(chunks),
			Source: source,
			Offset: offset,
			Text:   part,
		})
	}
	return chunks, nil
}

// SplitWindows is the plain sliding-window split: windows of chunkSize
// runes whose starts advance by chunkSize-overlap.
func SplitWindows(text string, chunkSize, overlap int) ([]string, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	p, err := NewWithConfig(ProcessorConfig{ChunkSize: chunkSize, ChunkOverlap: overlap})
	if err != nil {
		return nil, err
	}
	chunks, err := p.Chunk(text, "")
	if err != nil {
		return nil, err
	}
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out, nil
}
