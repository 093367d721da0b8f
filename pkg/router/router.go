package router

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/xhad/guardian/internal/models"
	"github.com/xhad/guardian/pkg/retriever"
	"github.com/xhad/guardian/pkg/search"
	"github.com/xhad/guardian/pkg/store"
)

const (
	NoAnswerMessage     = "Sorry, I couldn't find an answer in either the knowledge base or a web search."
	NoWebResultsMessage = "Sorry, I couldn't find any relevant web search results for your query."
)

// Route is the context source tried first.
type Route int

const (
	LocalFirst Route = iota
	WebFirst
)

func (r Route) String() string {
	if r == WebFirst {
		return "web_first"
	}
	return "local_first"
}

// Source is where the context of a synthesized answer came from.
type Source int

const (
	SourceNone Source = iota
	SourceLocal
	SourceWeb
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "knowledge_base"
	case SourceWeb:
		return "web"
	}
	return "none"
}

// Keywords drive Decide. Matching is case-insensitive substring matching.
type Keywords struct {
	SearchIntent []string
	Domain       []string
}

func DefaultKeywords() Keywords {
	return Keywords{
		SearchIntent: []string{"search", "find", "who is", "what is", "tell me about"},
		Domain: []string{
			"fraud", "security", "transaction", "phishing",
			"identity theft", "account takeover", "bnpl",
		},
	}
}

// Decide picks WebFirst for general-knowledge queries: a search-intent
// phrase and no domain term. Everything else is LocalFirst.
func Decide(query string, kw Keywords) Route {
	q := strings.ToLower(query)
	if containsAny(q, kw.SearchIntent) && !containsAny(q, kw.Domain) {
		return WebFirst
	}
	return LocalFirst
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(s, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// Searcher is the web search dependency.
type Searcher interface {
	Search(ctx context.Context, query string, numResults int) search.Result
}

// Synthesizer is the answer generation dependency.
type Synthesizer interface {
	Synthesize(ctx context.Context, query, contextText string, mode models.ResponseMode) string
}

const DefaultMinContextChars = 50

type RouterConfig struct {
	Keywords Keywords
	// MinContextChars is the trimmed length local context must exceed to be
	// used without falling back to the web. Nil means
	// DefaultMinContextChars; zero accepts any non-empty context.
	MinContextChars *int
	NumResults      int
}

// Router runs the per-turn fallback chain.
type Router struct {
	config    RouterConfig
	retriever *retriever.Retriever
	searcher  Searcher
	synth     Synthesizer
	logger    *slog.Logger
}

func NewWithConfig(r *retriever.Retriever, searcher Searcher, synth Synthesizer, config RouterConfig) *Router {
	if len(config.Keywords.SearchIntent) == 0 && len(config.Keywords.Domain) == 0 {
		config.Keywords = DefaultKeywords()
	}
	if config.MinContextChars == nil {
		n := DefaultMinContextChars
		config.MinContextChars = &n
	}
	if config.NumResults <= 0 {
		config.NumResults = 3
	}

	return &Router{
		config:    config,
		retriever: r,
		searcher:  searcher,
		synth:     synth,
		logger:    slog.Default(),
	}
}

// Answer is the outcome of one turn.
type Answer struct {
	Text         string
	Route        Route
	Source       Source
	LocalContext string
	Web          search.Result
	// FellBack is set when a LocalFirst turn had to go to the web.
	FellBack bool
}

// Answer runs the fallback chain for query against the active index, which
// may be nil. It always produces answer text.
func (r *Router) Answer(ctx context.Context, query string, mode models.ResponseMode, active store.Searchable) Answer {
	route := Decide(query, r.config.Keywords)
	r.logger.Info("routing query", "route", route)

	if route == WebFirst {
		web := r.search(ctx, query)
		if !web.OK() {
			return Answer{Text: NoWebResultsMessage, Route: route, Web: web}
		}
		return Answer{
			Text:   r.synth.Synthesize(ctx, query, web.Text, mode),
			Route:  route,
			Source: SourceWeb,
			Web:    web,
		}
	}

	local := r.retrieve(ctx, query, active)
	if r.sufficient(local) {
		return Answer{
			Text:         r.synth.Synthesize(ctx, query, local, mode),
			Route:        route,
			Source:       SourceLocal,
			LocalContext: local,
		}
	}

	r.logger.Info("local context insufficient, falling back to web search", "chars", utf8.RuneCountInString(strings.TrimSpace(local)))
	web := r.search(ctx, query)
	if !web.OK() {
		return Answer{Text: NoAnswerMessage, Route: route, LocalContext: local, Web: web, FellBack: true}
	}
	return Answer{
		Text:         r.synth.Synthesize(ctx, query, web.Text, mode),
		Route:        route,
		Source:       SourceWeb,
		LocalContext: local,
		Web:          web,
		FellBack:     true,
	}
}

func (r *Router) sufficient(local string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(local)) > *r.config.MinContextChars
}

func (r *Router) retrieve(ctx context.Context, query string, active store.Searchable) string {
	if r.retriever == nil {
		return ""
	}
	got, err := r.retriever.Retrieve(ctx, active, query)
	if err != nil {
		r.logger.Warn("retrieval failed, treating as empty", "err", err)
		return ""
	}
	return got.Text
}

func (r *Router) search(ctx context.Context, query string) search.Result {
	if r.searcher == nil {
		return search.Result{Status: search.StatusNotConfigured}
	}
	res := r.searcher.Search(ctx, query, r.config.NumResults)
	r.logger.Info("web search finished", "status", res.Status, "results", len(res.Results))
	return res
}

// Notes describes how the answer was produced, for display next to it.
func (a Answer) Notes() []string {
	var notes []string
	switch a.Route {
	case WebFirst:
		notes = append(notes, "Query looks like it needs current information, searching the web.")
	default:
		notes = append(notes, "Searching the knowledge base.")
	}
	if a.FellBack {
		notes = append(notes, "Not enough information in the knowledge base, searching the web.")
	}
	if a.Web.Status != search.StatusOK && (a.Route == WebFirst || a.FellBack) {
		notes = append(notes, a.Web.Message())
	}
	return notes
}
