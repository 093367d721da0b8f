package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/xhad/guardian/pkg/config"
	"github.com/xhad/guardian/pkg/session"
)

type Flags struct {
	ConfigPath    string
	KnowledgeBase string
	Mode          string
	Provider      string
	Model         string
	BaseURL       string
	Upload        string
}

func main() {
	flags := parseFlags()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	cfg, err := config.LoadConfig(flags.ConfigPath)
	if err != nil {
		log.Fatal(err)
	}
	applyFlags(cfg, flags)
	slog.SetDefault(cfg.NewLogger(os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, flags); err != nil {
		if errors.Is(err, config.ErrConfiguration) {
			color.Red("Configuration error: %v", err)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func parseFlags() Flags {
	var f Flags
	flag.StringVar(&f.ConfigPath, "config", "", "Path to config file")
	flag.StringVar(&f.KnowledgeBase, "kb", "", "Knowledge base file to index")
	flag.StringVar(&f.Mode, "mode", "", "Response mode: concise or detailed")
	flag.StringVar(&f.Provider, "provider", "", "Generation provider: googleai or ollama")
	flag.StringVar(&f.Model, "model", "", "Generation model to use")
	flag.StringVar(&f.BaseURL, "ollama-url", os.Getenv("OLLAMA_BASE_URL"), "Ollama server URL")
	flag.StringVar(&f.Upload, "upload", "", "File or URL to index as the uploaded corpus at startup")
	flag.Parse()
	return f
}

// applyFlags lets command line flags win over the config file.
func applyFlags(cfg *config.Config, f Flags) {
	if f.KnowledgeBase != "" {
		cfg.KnowledgeBase.Path = f.KnowledgeBase
	}
	if f.Mode != "" {
		cfg.UI.ResponseMode = f.Mode
	}
	if f.Provider != "" {
		cfg.LLM.Provider = f.Provider
	}
	if f.Model != "" {
		cfg.LLM.Model = f.Model
	}
	if f.BaseURL != "" {
		cfg.LLM.BaseURL = f.BaseURL
	}
}

func run(ctx context.Context, cfg *config.Config, f Flags) error {
	s, err := session.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}

	spinner := getSpinner(" Indexing knowledge base...")
	err = s.Init(ctx)
	spinner.Finish()
	if err != nil {
		return err
	}

	r := newREPL(s, session.UploadScraperConfig(cfg), os.Stdin, os.Stdout)
	if src := s.ActiveSource(); src != "" {
		r.say(successColor, "\n✓ Indexed %d chunks from %s", s.ActiveIndex().Len(), src)
	} else {
		r.say(noteColor, "\nNo knowledge base loaded, answers will come from web search")
	}
	if f.Upload != "" {
		r.upload(ctx, f.Upload)
	}
	return r.loop(ctx)
}
