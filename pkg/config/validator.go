package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// LLM
	switch c.LLM.Provider {
	case "googleai":
	case "ollama":
		if c.LLM.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "Ollama base URL is required",
			})
		} else if !isHTTPURL(c.LLM.BaseURL) {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.LLM.Provider),
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.TimeoutSecs < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout_secs",
			Message: "timeout_secs must be positive",
		})
	}

	// Embedder
	switch c.Embedder.Provider {
	case "hash":
		if c.Embedder.Dimension < 1 {
			errors = append(errors, ValidationError{
				Field:   "embedder.dimension",
				Message: "dimension must be positive",
			})
		}
	case "ollama", "googleai", "openai":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.Embedder.Provider),
		})
	}

	if c.Embedder.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Processor
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.Processor.Splitter != "window" && c.Processor.Splitter != "recursive" {
		errors = append(errors, ValidationError{
			Field:   "processor.splitter",
			Message: "splitter must be window or recursive",
		})
	}

	// Retrieval
	if c.Retrieval.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Retrieval.MinContextChars < 0 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.min_context_chars",
			Message: "min_context_chars cannot be negative",
		})
	}

	// Search
	if !isHTTPURL(c.Search.Endpoint) {
		errors = append(errors, ValidationError{
			Field:   "search.endpoint",
			Message: "invalid search endpoint",
		})
	}

	if c.Search.NumResults < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.num_results",
			Message: "num_results must be positive",
		})
	}

	if c.Search.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "search.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Scraper
	if c.Scraper.MaxDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth cannot be negative",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Log
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Message: "format must be text or json",
		})
	}

	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
