package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/guardian/internal/models"
)

const (
	NotEnoughInfoMessage = "I'm sorry, I don't have enough information to answer that question."
	generationErrorFmt   = "I encountered an error while trying to generate a response: %v"

	conciseInstruction  = "Give a short, concise, and summarized answer based on the context. Extract only the key information. Do not use any outside information."
	detailedInstruction = "Give a detailed, in-depth, and expanded response based on the context. Synthesize every relevant part of it into a comprehensive answer. Do not use any outside information."

	promptTemplate = `You are a helpful assistant. %s
If the context does not contain the answer, say that you don't have enough information.

Context:
%s

Question: %s
Answer:`
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string // googleai or ollama
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string // Ollama server URL
	APIKey      string
	Timeout     time.Duration
}

// ChatEngine synthesizes answers grounded in retrieved context.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
	logger *slog.Logger
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(ctx context.Context, config ChatConfig) (*ChatEngine, error) {
	if config.Provider == "" {
		config.Provider = "googleai"
	}
	if config.Model == "" {
		if config.Provider == "ollama" {
			config.Model = "mistral"
		} else {
			config.Model = "gemini-1.5-flash"
		}
	}
	if config.BaseURL == "" && config.Provider == "ollama" {
		config.BaseURL = "http://localhost:11434"
	}

	var (
		model llms.Model
		err   error
	)
	switch config.Provider {
	case "googleai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("googleai API key is required")
		}
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(config.APIKey),
			googleai.WithDefaultModel(config.Model))
	case "ollama":
		model, err = ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(model, config)
}

// NewWithModel wraps an already constructed model. A nil model is allowed;
// every synthesis then short-circuits.
func NewWithModel(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	return &ChatEngine{
		config: config,
		llm:    model,
		logger: slog.Default(),
	}, nil
}

// BuildPrompt renders the grounding prompt for one question.
func BuildPrompt(query, contextText string, mode models.ResponseMode) string {
	instruction := conciseInstruction
	if mode == models.ModeDetailed {
		instruction = detailedInstruction
	}
	return fmt.Sprintf(promptTemplate, instruction, contextText, query)
}

// Synthesize answers query using only contextText. It never returns an
// error: failures come back as a readable message.
func (ce *ChatEngine) Synthesize(ctx context.Context, query, contextText string, mode models.ResponseMode) string {
	if ce == nil || ce.llm == nil || strings.TrimSpace(contextText) == "" {
		return NotEnoughInfoMessage
	}

	ctx, cancel := context.WithTimeout(ctx, ce.config.Timeout)
	defer cancel()

	prompt := BuildPrompt(query, contextText, mode)
	opts := []llms.CallOption{
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
	}

	start := time.Now()
	answer, err := llms.GenerateFromSinglePrompt(ctx, ce.llm, prompt, opts...)
	if err != nil {
		ce.logger.Error("generation failed", "model", ce.config.Model, "err", err)
		return fmt.Sprintf(generationErrorFmt, err)
	}
	ce.logger.Debug("generation done", "model", ce.config.Model, "mode", mode, "elapsed", time.Since(start))

	return strings.TrimSpace(answer)
}
