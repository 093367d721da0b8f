package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks problems no session can recover from: a missing
// credential or a missing knowledge base.
var ErrConfiguration = errors.New("configuration error")

type Config struct {
	LLM struct {
		Provider    string  `yaml:"provider"`
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
		TimeoutSecs int     `yaml:"timeout_secs"`
		APIKeyEnv   string  `yaml:"api_key_env"`
	} `yaml:"llm"`

	Embedder struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		BaseURL   string `yaml:"base_url"`
		Dimension int    `yaml:"dimension"`
		BatchSize int    `yaml:"batch_size"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"embedder"`

	Processor struct {
		ChunkSize    int    `yaml:"chunk_size"`
		ChunkOverlap int    `yaml:"chunk_overlap"`
		Splitter     string `yaml:"splitter"`
	} `yaml:"processor"`

	Retrieval struct {
		TopK            int `yaml:"top_k"`
		MinContextChars int `yaml:"min_context_chars"`
	} `yaml:"retrieval"`

	Search struct {
		Endpoint    string  `yaml:"endpoint"`
		APIKeyEnv   string  `yaml:"api_key_env"`
		NumResults  int     `yaml:"num_results"`
		TimeoutSecs int     `yaml:"timeout_secs"`
		RateLimit   float64 `yaml:"rate_limit"`
	} `yaml:"search"`

	Router struct {
		SearchKeywords []string `yaml:"search_keywords"`
		DomainKeywords []string `yaml:"domain_keywords"`
	} `yaml:"router"`

	KnowledgeBase struct {
		Path     string `yaml:"path"`
		Required bool   `yaml:"required"`
	} `yaml:"knowledge_base"`

	Scraper struct {
		MaxDepth          int      `yaml:"max_depth"`
		RateLimit         float64  `yaml:"rate_limit"`
		TimeoutSecs       int      `yaml:"timeout_secs"`
		IgnorePatterns    []string `yaml:"ignore_patterns"`
		AllowedExtensions []string `yaml:"allowed_extensions"`
	} `yaml:"scraper"`

	Server struct {
		Addr string `yaml:"addr"`
		// UploadDir is the only directory socket clients may upload files
		// from. Empty disables file uploads over the socket.
		UploadDir      string   `yaml:"upload_dir"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	UI struct {
		ResponseMode string `yaml:"response_mode"`
		Theme        string `yaml:"theme"`
	} `yaml:"ui"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/guardian/config.yaml"),
			"/etc/guardian/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

// newConfig presets the fields whose zero value is a valid setting, so the
// file can still set them to zero.
func newConfig() *Config {
	config := &Config{}
	config.LLM.Temperature = 0.7
	config.Retrieval.MinContextChars = 50
	return config
}

func getDefaultConfig() (*Config, error) {
	config := newConfig()
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "googleai"
	}
	if config.LLM.Model == "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.Model = "mistral"
		} else {
			config.LLM.Model = "gemini-1.5-flash"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.TimeoutSecs == 0 {
		config.LLM.TimeoutSecs = 15
	}
	if config.LLM.APIKeyEnv == "" {
		config.LLM.APIKeyEnv = "GEMINI_API_KEY"
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "hash"
	}
	switch config.Embedder.Provider {
	case "hash":
		if config.Embedder.Dimension == 0 {
			config.Embedder.Dimension = 384
		}
	case "ollama":
		if config.Embedder.Model == "" {
			config.Embedder.Model = "nomic-embed-text:latest"
		}
		if config.Embedder.BaseURL == "" {
			config.Embedder.BaseURL = "http://localhost:11434"
		}
	case "googleai":
		if config.Embedder.Model == "" {
			config.Embedder.Model = "text-embedding-004"
		}
		if config.Embedder.APIKeyEnv == "" {
			config.Embedder.APIKeyEnv = config.LLM.APIKeyEnv
		}
	case "openai":
		if config.Embedder.Model == "" {
			config.Embedder.Model = "text-embedding-3-small"
		}
		if config.Embedder.APIKeyEnv == "" {
			config.Embedder.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if config.Embedder.BatchSize == 0 {
		config.Embedder.BatchSize = 64
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 500
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 50
	}
	if config.Processor.Splitter == "" {
		config.Processor.Splitter = "window"
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 3
	}

	if config.Search.Endpoint == "" {
		config.Search.Endpoint = "https://google.serper.dev/search"
	}
	if config.Search.APIKeyEnv == "" {
		config.Search.APIKeyEnv = "SERPER_API_KEY"
	}
	if config.Search.NumResults == 0 {
		config.Search.NumResults = 3
	}
	if config.Search.TimeoutSecs == 0 {
		config.Search.TimeoutSecs = 10
	}
	if config.Search.RateLimit == 0 {
		config.Search.RateLimit = 2.0
	}

	if config.KnowledgeBase.Path == "" {
		config.KnowledgeBase.Path = "transactions_knowledge_base.txt"
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 1
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.TimeoutSecs == 0 {
		config.Scraper.TimeoutSecs = 15
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if config.UI.ResponseMode == "" {
		config.UI.ResponseMode = "Concise"
	}
	if config.UI.Theme == "" {
		config.UI.Theme = "default"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if kb := os.Getenv("GUARDIAN_KNOWLEDGE_BASE"); kb != "" {
		config.KnowledgeBase.Path = kb
	}
	if endpoint := os.Getenv("SERPER_ENDPOINT"); endpoint != "" {
		config.Search.Endpoint = endpoint
	}
}

// Credentials holds the secrets resolved from the environment.
type Credentials struct {
	LLMAPIKey      string
	EmbedderAPIKey string
	SearchAPIKey   string
}

// Credentials reads API keys from the environment variables named in the
// config. A missing generation or embedding key for a hosted provider wraps
// ErrConfiguration. A missing search key is allowed: search then reports
// itself as not configured.
func (c *Config) Credentials() (Credentials, error) {
	creds := Credentials{
		LLMAPIKey:    os.Getenv(c.LLM.APIKeyEnv),
		SearchAPIKey: os.Getenv(c.Search.APIKeyEnv),
	}
	if c.Embedder.APIKeyEnv != "" {
		creds.EmbedderAPIKey = os.Getenv(c.Embedder.APIKeyEnv)
	}

	if c.LLM.Provider == "googleai" && creds.LLMAPIKey == "" {
		return creds, fmt.Errorf("%w: %s is not set", ErrConfiguration, c.LLM.APIKeyEnv)
	}
	switch c.Embedder.Provider {
	case "googleai", "openai":
		if creds.EmbedderAPIKey == "" {
			return creds, fmt.Errorf("%w: %s is not set", ErrConfiguration, c.Embedder.APIKeyEnv)
		}
	}

	return creds, nil
}
