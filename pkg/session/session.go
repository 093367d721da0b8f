package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/guardian/internal/models"
	"github.com/xhad/guardian/internal/types"
	"github.com/xhad/guardian/pkg/config"
	"github.com/xhad/guardian/pkg/processor"
	"github.com/xhad/guardian/pkg/router"
	"github.com/xhad/guardian/pkg/store"
)

const UploadedSource = "uploaded"

type Options struct {
	KnowledgeBasePath string
	// RequireKnowledgeBase turns a missing knowledge base into an Init
	// error instead of a web-only session.
	RequireKnowledgeBase bool
	ResponseMode         models.ResponseMode
}

// Session is the state of one chat: the indexes, the transcript and the
// components that answer turns. Turns are serialized.
type Session struct {
	ID uuid.UUID

	opts      Options
	embedder  types.Embedder
	processor *processor.Processor
	router    *router.Router
	logger    *slog.Logger

	initOnce sync.Once
	initErr  error

	turn sync.Mutex

	defaultIndex atomic.Pointer[store.Index]
	uploaded     atomic.Pointer[store.Index]

	mu             sync.Mutex
	mode           models.ResponseMode
	uploadedSource string
	transcript     []models.Message
}

func New(embedder types.Embedder, proc *processor.Processor, r *router.Router, opts Options) *Session {
	if opts.ResponseMode == "" {
		opts.ResponseMode = models.ModeConcise
	}
	return &Session{
		ID:        uuid.New(),
		opts:      opts,
		embedder:  embedder,
		processor: proc,
		router:    r,
		logger:    slog.Default(),
		mode:      opts.ResponseMode,
	}
}

// Init indexes the default knowledge base. It runs once; later calls return
// the first result. A missing knowledge base, or one that cannot be
// embedded, is only an error when RequireKnowledgeBase is set.
func (s *Session) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		if s.opts.KnowledgeBasePath == "" {
			s.logger.Warn("no knowledge base configured, answering from web search only")
			return
		}

		_, err := s.SetupCorpus(ctx, s.opts.KnowledgeBasePath)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrEmptyCorpus):
			s.logger.Warn("knowledge base is empty", "path", s.opts.KnowledgeBasePath)
		case errors.Is(err, config.ErrConfiguration) && !s.opts.RequireKnowledgeBase:
			s.logger.Error("knowledge base unavailable, answering from web search only", "err", err)
		case errors.Is(err, types.ErrEmbedding) && !s.opts.RequireKnowledgeBase:
			s.logger.Error("failed to index knowledge base, answering from web search only", "err", err)
		default:
			s.initErr = err
		}
	})
	return s.initErr
}

// SetupCorpus reads, chunks and indexes the file at path and installs it as
// the default index.
func (s *Session) SetupCorpus(ctx context.Context, path string) (*store.Index, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: knowledge base %s not found", config.ErrConfiguration, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base: %w", err)
	}

	idx, err := s.buildIndex(ctx, string(data), path)
	if err != nil {
		return nil, err
	}
	s.defaultIndex.Store(idx)
	return idx, nil
}

// SetupUploadedCorpus indexes text and installs it as the uploaded index,
// which shadows the default one. Empty text leaves the current index in
// place and returns store.ErrEmptyCorpus.
func (s *Session) SetupUploadedCorpus(ctx context.Context, text, source string) (*store.Index, error) {
	if source == "" {
		source = UploadedSource
	}
	idx, err := s.buildIndex(ctx, text, source)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.uploadedSource = source
	s.mu.Unlock()
	s.uploaded.Store(idx)
	return idx, nil
}

// Upload extracts text from doc and indexes it as the uploaded corpus.
func (s *Session) Upload(ctx context.Context, doc types.TextExtractable) (*store.Index, error) {
	text, err := doc.ExtractText(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", doc.Source(), err)
	}
	return s.SetupUploadedCorpus(ctx, text, doc.Source())
}

// ResetUpload drops the uploaded index so the default one is active again.
func (s *Session) ResetUpload() {
	s.uploaded.Store(nil)
	s.mu.Lock()
	s.uploadedSource = ""
	s.mu.Unlock()
}

func (s *Session) buildIndex(ctx context.Context, text, source string) (*store.Index, error) {
	start := time.Now()
	chunks, err := s.processor.Chunk(text, source)
	if err != nil {
		return nil, err
	}

	idx, err := store.Build(ctx, chunks, s.embedder)
	if err != nil {
		return nil, err
	}
	s.logger.Info("indexed corpus", "source", source, "chunks", idx.Len(), "dim", idx.Dimension(), "elapsed", time.Since(start))
	return idx, nil
}

// ActiveIndex is the uploaded index when one is present, else the default.
// It may be nil.
func (s *Session) ActiveIndex() *store.Index {
	if idx := s.uploaded.Load(); idx != nil && idx.Len() > 0 {
		return idx
	}
	return s.defaultIndex.Load()
}

// ActiveSource names the corpus queries currently run against.
func (s *Session) ActiveSource() string {
	if s.uploaded.Load() != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.uploadedSource
	}
	if s.defaultIndex.Load() != nil {
		return s.opts.KnowledgeBasePath
	}
	return ""
}

// AnswerQuery answers one turn against the active index with the session's
// response mode and records both sides in the transcript.
func (s *Session) AnswerQuery(ctx context.Context, query string) router.Answer {
	return s.AnswerQueryWithMode(ctx, query, s.Mode())
}

func (s *Session) AnswerQueryWithMode(ctx context.Context, query string, mode models.ResponseMode) router.Answer {
	if err := s.Init(ctx); err != nil {
		s.logger.Error("session init failed", "err", err)
	}

	s.turn.Lock()
	defer s.turn.Unlock()

	s.appendMessage(models.NewMessage(models.RoleUser, query))

	ans := s.router.Answer(ctx, query, mode, s.ActiveIndex())

	reply := models.NewMessage(models.RoleAssistant, ans.Text)
	reply.Route = ans.Route.String()
	s.appendMessage(reply)

	return ans
}

func (s *Session) Mode() models.ResponseMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) SetMode(mode models.ResponseMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

func (s *Session) appendMessage(m models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, m)
}

// Transcript returns a copy of the chat history.
func (s *Session) Transcript() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) ClearTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
}
