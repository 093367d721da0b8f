package router_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/guardian/internal/models"
	"github.com/xhad/guardian/pkg/llm"
	"github.com/xhad/guardian/pkg/retriever"
	"github.com/xhad/guardian/pkg/router"
	"github.com/xhad/guardian/pkg/search"
	"github.com/xhad/guardian/pkg/store"
)

type fakeSearcher struct {
	result  search.Result
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) search.Result {
	f.queries = append(f.queries, query)
	return f.result
}

type synthCall struct {
	query   string
	context string
	mode    models.ResponseMode
}

type fakeSynth struct {
	calls []synthCall
}

func (f *fakeSynth) Synthesize(_ context.Context, query, contextText string, mode models.ResponseMode) string {
	f.calls = append(f.calls, synthCall{query, contextText, mode})
	return "answer from: " + contextText
}

func okResult(text string) search.Result {
	return search.Result{Status: search.StatusOK, Text: text, Results: []models.SearchResult{{Title: "t"}}}
}

func TestDecide(t *testing.T) {
	kw := router.DefaultKeywords()
	tests := []struct {
		query string
		want  router.Route
	}{
		{"what is phishing", router.LocalFirst},
		{"who is the president", router.WebFirst},
		{"What is BNPL?", router.LocalFirst},
		{"Tell me about the Eiffel Tower", router.WebFirst},
		{"search for transaction limits", router.LocalFirst},
		{"how do I report identity theft", router.LocalFirst},
		{"FIND a good restaurant", router.WebFirst},
		{"hello there", router.LocalFirst},
		{"", router.LocalFirst},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, router.Decide(tt.query, kw))
		})
	}
}

func TestDecideCustomKeywords(t *testing.T) {
	kw := router.Keywords{SearchIntent: []string{"look up"}, Domain: []string{"chargeback"}}
	assert.Equal(t, router.WebFirst, router.Decide("look up the weather", kw))
	assert.Equal(t, router.LocalFirst, router.Decide("look up chargeback rules", kw))
	assert.Equal(t, router.LocalFirst, router.Decide("what is the weather", kw))
}

func buildIndex(t *testing.T, emb *llm.HashEmbedder, texts ...string) *store.Index {
	t.Helper()
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{Index: i, Text: text}
	}
	idx, err := store.Build(context.Background(), chunks, emb)
	require.NoError(t, err)
	return idx
}

func TestLocalFirstUsesKnowledgeBase(t *testing.T) {
	emb := llm.NewHashEmbedder(256)
	idx := buildIndex(t, emb,
		"BNPL stands for Buy Now Pay Later, letting shoppers split a purchase into instalments.",
		"Phishing is a scam where attackers imitate trusted senders to steal credentials.",
	)
	web := &fakeSearcher{result: okResult("web text")}
	synth := &fakeSynth{}
	r := router.NewWithConfig(retriever.NewWithConfig(emb, retriever.RetrieverConfig{TopK: 1}), web, synth, router.RouterConfig{})

	ans := r.Answer(context.Background(), "What is BNPL?", models.ModeDetailed, idx)

	assert.Equal(t, router.LocalFirst, ans.Route)
	assert.Equal(t, router.SourceLocal, ans.Source)
	assert.False(t, ans.FellBack)
	assert.Empty(t, web.queries)
	require.Len(t, synth.calls, 1)
	assert.Contains(t, synth.calls[0].context, "Buy Now Pay Later")
	assert.Equal(t, models.ModeDetailed, synth.calls[0].mode)
	assert.Equal(t, "answer from: "+synth.calls[0].context, ans.Text)
}

func TestLocalFirstShortContextFallsBackToWeb(t *testing.T) {
	emb := llm.NewHashEmbedder(64)
	idx := buildIndex(t, emb, "Too short.")
	web := &fakeSearcher{result: okResult("Result 1:\nTitle: t\nSnippet: s\nLink: l\n")}
	synth := &fakeSynth{}
	r := router.NewWithConfig(retriever.NewWithConfig(emb, retriever.RetrieverConfig{}), web, synth, router.RouterConfig{})

	ans := r.Answer(context.Background(), "explain chargebacks", models.ModeConcise, idx)

	assert.Equal(t, router.LocalFirst, ans.Route)
	assert.Equal(t, router.SourceWeb, ans.Source)
	assert.True(t, ans.FellBack)
	assert.Equal(t, []string{"explain chargebacks"}, web.queries)
	require.Len(t, synth.calls, 1)
	assert.Equal(t, web.result.Text, synth.calls[0].context)
}

func TestLocalFirstThresholdIsStrict(t *testing.T) {
	emb := llm.NewHashEmbedder(64)
	exact := strings.Repeat("x", 50)
	idx := buildIndex(t, emb, "  "+exact+"  ")
	web := &fakeSearcher{result: search.Result{Status: search.StatusEmpty}}
	synth := &fakeSynth{}
	r := router.NewWithConfig(retriever.NewWithConfig(emb, retriever.RetrieverConfig{}), web, synth, router.RouterConfig{})

	ans := r.Answer(context.Background(), "xxxx", models.ModeConcise, idx)
	assert.Equal(t, router.NoAnswerMessage, ans.Text)
	assert.Empty(t, synth.calls)
}

func TestLocalFirstNothingAnywhere(t *testing.T) {
	for _, res := range []search.Result{
		{Status: search.StatusEmpty},
		{Status: search.StatusFailed, Err: errors.New("timeout")},
		{Status: search.StatusNotConfigured},
	} {
		t.Run(res.Status.String(), func(t *testing.T) {
			emb := llm.NewHashEmbedder(64)
			web := &fakeSearcher{result: res}
			synth := &fakeSynth{}
			r := router.NewWithConfig(retriever.NewWithConfig(emb, retriever.RetrieverConfig{}), web, synth, router.RouterConfig{})

			ans := r.Answer(context.Background(), "explain chargebacks", models.ModeConcise, nil)

			assert.Equal(t, router.NoAnswerMessage, ans.Text)
			assert.Equal(t, router.SourceNone, ans.Source)
			assert.Equal(t, res.Status, ans.Web.Status)
			assert.Empty(t, synth.calls)
		})
	}
}

func TestWebFirst(t *testing.T) {
	t.Run("results are synthesized", func(t *testing.T) {
		web := &fakeSearcher{result: okResult("web text")}
		synth := &fakeSynth{}
		r := router.NewWithConfig(nil, web, synth, router.RouterConfig{})

		ans := r.Answer(context.Background(), "who is the president", models.ModeConcise, nil)

		assert.Equal(t, router.WebFirst, ans.Route)
		assert.Equal(t, router.SourceWeb, ans.Source)
		require.Len(t, synth.calls, 1)
		assert.Equal(t, "web text", synth.calls[0].context)
	})

	t.Run("zero organic results", func(t *testing.T) {
		web := &fakeSearcher{result: search.Result{Status: search.StatusEmpty}}
		synth := &fakeSynth{}
		r := router.NewWithConfig(nil, web, synth, router.RouterConfig{})

		ans := r.Answer(context.Background(), "who is the president", models.ModeConcise, nil)

		assert.Equal(t, router.NoWebResultsMessage, ans.Text)
		assert.Equal(t, router.SourceNone, ans.Source)
		assert.Empty(t, synth.calls)
	})

	t.Run("failure strings are never synthesized", func(t *testing.T) {
		web := &fakeSearcher{result: search.Result{Status: search.StatusFailed, Err: errors.New("503")}}
		synth := &fakeSynth{}
		r := router.NewWithConfig(nil, web, synth, router.RouterConfig{})

		ans := r.Answer(context.Background(), "find cheap flights", models.ModeConcise, nil)
		assert.Equal(t, router.NoWebResultsMessage, ans.Text)
		assert.Empty(t, synth.calls)
	})

	t.Run("no searcher", func(t *testing.T) {
		synth := &fakeSynth{}
		r := router.NewWithConfig(nil, nil, synth, router.RouterConfig{})

		ans := r.Answer(context.Background(), "find cheap flights", models.ModeConcise, nil)
		assert.Equal(t, router.NoWebResultsMessage, ans.Text)
		assert.Equal(t, search.StatusNotConfigured, ans.Web.Status)
	})
}

func TestRouteAndSourceStrings(t *testing.T) {
	assert.Equal(t, "web_first", router.WebFirst.String())
	assert.Equal(t, "local_first", router.LocalFirst.String())
	assert.Equal(t, "knowledge_base", router.SourceLocal.String())
	assert.Equal(t, "none", router.SourceNone.String())
}

func TestAnswerNotes(t *testing.T) {
	local := router.Answer{Route: router.LocalFirst, Source: router.SourceLocal}
	assert.Equal(t, []string{"Searching the knowledge base."}, local.Notes())

	fellBack := router.Answer{
		Route:    router.LocalFirst,
		FellBack: true,
		Web:      search.Result{Status: search.StatusEmpty},
	}
	assert.Equal(t, []string{
		"Searching the knowledge base.",
		"Not enough information in the knowledge base, searching the web.",
		"No relevant information found on the web.",
	}, fellBack.Notes())

	web := router.Answer{Route: router.WebFirst, Web: search.Result{Status: search.StatusNotConfigured}}
	notes := web.Notes()
	require.Len(t, notes, 2)
	assert.Equal(t, "Search functionality is not configured.", notes[1])
}

func TestZeroMinContextChars(t *testing.T) {
	emb := llm.NewHashEmbedder(64)
	idx := buildIndex(t, emb, "Too short.")
	web := &fakeSearcher{result: okResult("web text")}
	synth := &fakeSynth{}
	zero := 0
	r := router.NewWithConfig(retriever.NewWithConfig(emb, retriever.RetrieverConfig{}), web, synth, router.RouterConfig{MinContextChars: &zero})

	ans := r.Answer(context.Background(), "explain chargebacks", models.ModeConcise, idx)
	assert.Equal(t, router.SourceLocal, ans.Source)
	assert.Empty(t, web.queries)

	// empty context still falls back
	ans = r.Answer(context.Background(), "explain chargebacks", models.ModeConcise, nil)
	assert.True(t, ans.FellBack)
	assert.Equal(t, router.SourceWeb, ans.Source)
}
