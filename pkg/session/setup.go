package session

import (
	"context"
	"fmt"
	"time"

	"github.com/xhad/guardian/internal/models"
	"github.com/xhad/guardian/pkg/config"
	"github.com/xhad/guardian/pkg/llm"
	"github.com/xhad/guardian/pkg/processor"
	"github.com/xhad/guardian/pkg/retriever"
	"github.com/xhad/guardian/pkg/router"
	"github.com/xhad/guardian/pkg/scraper"
	"github.com/xhad/guardian/pkg/search"
)

// FromConfig wires every component described by cfg into a Session. The
// returned error wraps config.ErrConfiguration when a required credential
// is missing. Init is not called.
func FromConfig(ctx context.Context, cfg *config.Config) (*Session, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, errs[0])
	}

	creds, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewEmbedderWithConfig(ctx, llm.EmbedderConfig{
		Provider:  cfg.Embedder.Provider,
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		APIKey:    creds.EmbedderAPIKey,
		Dimension: cfg.Embedder.Dimension,
		BatchSize: cfg.Embedder.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chatEngine, err := llm.NewWithConfig(ctx, llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      creds.LLMAPIKey,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	proc, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
		Splitter:     cfg.Processor.Splitter,
	})
	if err != nil {
		return nil, err
	}

	searchClient := search.NewWithConfig(search.ClientConfig{
		Endpoint:   cfg.Search.Endpoint,
		APIKey:     creds.SearchAPIKey,
		NumResults: cfg.Search.NumResults,
		Timeout:    time.Duration(cfg.Search.TimeoutSecs) * time.Second,
		RateLimit:  cfg.Search.RateLimit,
	})

	minContext := cfg.Retrieval.MinContextChars
	keywords := router.DefaultKeywords()
	if len(cfg.Router.SearchKeywords) > 0 {
		keywords.SearchIntent = cfg.Router.SearchKeywords
	}
	if len(cfg.Router.DomainKeywords) > 0 {
		keywords.Domain = cfg.Router.DomainKeywords
	}

	r := router.NewWithConfig(
		retriever.NewWithConfig(embedder, retriever.RetrieverConfig{TopK: cfg.Retrieval.TopK}),
		searchClient,
		chatEngine,
		router.RouterConfig{
			Keywords:        keywords,
			MinContextChars: &minContext,
			NumResults:      cfg.Search.NumResults,
		},
	)

	s := New(embedder, proc, r, Options{
		KnowledgeBasePath:    cfg.KnowledgeBase.Path,
		RequireKnowledgeBase: cfg.KnowledgeBase.Required,
		ResponseMode:         models.ParseResponseMode(cfg.UI.ResponseMode),
	})
	if !searchClient.Configured() {
		s.logger.Warn("web search is not configured", "env", cfg.Search.APIKeyEnv)
	}
	return s, nil
}

// UploadScraperConfig is the scraper setup used for URL uploads.
func UploadScraperConfig(cfg *config.Config) scraper.ScraperConfig {
	return scraper.ScraperConfig{
		MaxDepth:          cfg.Scraper.MaxDepth,
		RateLimit:         cfg.Scraper.RateLimit,
		Timeout:           time.Duration(cfg.Scraper.TimeoutSecs) * time.Second,
		IgnorePatterns:    cfg.Scraper.IgnorePatterns,
		AllowedExtensions: cfg.Scraper.AllowedExtensions,
	}
}
