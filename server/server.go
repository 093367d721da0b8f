package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/xhad/guardian/internal/models"
	"github.com/xhad/guardian/internal/types"
	"github.com/xhad/guardian/pkg/extract"
	"github.com/xhad/guardian/pkg/scraper"
	"github.com/xhad/guardian/pkg/session"
)

var ErrUploadNotAllowed = errors.New("upload not allowed")

// Request is a client message.
type Request struct {
	Type    string `json:"type" validate:"required,oneof=ask upload upload_text reset clear history mode"`
	Content string `json:"content" validate:"required_if=Type ask,required_if=Type upload,required_if=Type upload_text,required_if=Type mode"`
	Mode    string `json:"mode,omitempty" validate:"omitempty,oneof=Concise Detailed concise detailed"`
}

// Response is a server message. Type is one of answer, status, progress,
// history or error.
type Response struct {
	Type    string           `json:"type"`
	Content string           `json:"content,omitempty"`
	Route   string           `json:"route,omitempty"`
	Source  string           `json:"source,omitempty"`
	Notes   []string         `json:"notes,omitempty"`
	History []models.Message `json:"history,omitempty"`
}

type Config struct {
	Scraper scraper.ScraperConfig
	// UploadDir confines file uploads. Empty means clients may only upload
	// http(s) URLs or inline text.
	UploadDir string
	// AllowedOrigins are accepted in addition to the server's own origin.
	AllowedOrigins []string
}

type WSServer struct {
	session  *session.Session
	config   Config
	upgrader websocket.Upgrader
	validate *validator.Validate
	logger   *slog.Logger
}

func NewWSServer(s *session.Session, config Config) *WSServer {
	ws := &WSServer{
		session:  s,
		config:   config,
		validate: validator.New(),
		logger:   slog.Default(),
	}
	ws.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     ws.checkOrigin,
	}
	return ws
}

// checkOrigin accepts non-browser clients, same-host pages and the
// configured origins.
func (s *WSServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Handler serves the chat socket on /ws and a health check on /health.
func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("error reading message", "err", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(message, &req); err != nil {
			s.send(conn, Response{Type: "error", Content: fmt.Sprintf("invalid message: %v", err)})
			continue
		}
		if err := s.validate.Struct(req); err != nil {
			s.send(conn, Response{Type: "error", Content: fmt.Sprintf("invalid message: %v", err)})
			continue
		}

		// Messages on one connection are handled in order; the session
		// serializes turns across connections.
		s.handleMessage(r.Context(), conn, req)
	}
}

func (s *WSServer) handleMessage(ctx context.Context, conn *websocket.Conn, req Request) {
	switch req.Type {
	case "ask":
		mode := s.session.Mode()
		if req.Mode != "" {
			mode = models.ParseResponseMode(req.Mode)
		}
		ans := s.session.AnswerQueryWithMode(ctx, req.Content, mode)
		s.send(conn, Response{
			Type:    "answer",
			Content: ans.Text,
			Route:   ans.Route.String(),
			Source:  ans.Source.String(),
			Notes:   ans.Notes(),
		})

	case "upload":
		s.upload(ctx, conn, strings.TrimSpace(req.Content))

	case "upload_text":
		idx, err := s.session.SetupUploadedCorpus(ctx, req.Content, "")
		if err != nil {
			s.send(conn, Response{Type: "error", Content: fmt.Sprintf("Upload failed: %v", err)})
			return
		}
		s.send(conn, Response{
			Type:    "status",
			Content: fmt.Sprintf("Indexed %d chunks from %s", idx.Len(), session.UploadedSource),
			Source:  session.UploadedSource,
		})

	case "reset":
		s.session.ResetUpload()
		s.send(conn, Response{Type: "status", Content: "Using the default knowledge base"})

	case "mode":
		mode := models.ParseResponseMode(req.Content)
		s.session.SetMode(mode)
		s.send(conn, Response{Type: "status", Content: fmt.Sprintf("Response mode set to %s", mode)})

	case "clear":
		s.session.ClearTranscript()
		s.send(conn, Response{Type: "status", Content: "Chat history cleared"})

	case "history":
		s.send(conn, Response{Type: "history", History: s.session.Transcript()})
	}
}

func (s *WSServer) upload(ctx context.Context, conn *websocket.Conn, input string) {
	var pages int32
	scrape := s.config.Scraper
	scrape.OnProgress = func(string) {
		n := atomic.AddInt32(&pages, 1)
		s.send(conn, Response{Type: "progress", Content: fmt.Sprintf("Scraped %d pages", n)})
	}

	doc, err := s.resolveUpload(input, scrape)
	if err != nil {
		s.send(conn, Response{Type: "error", Content: fmt.Sprintf("Upload failed: %v", err)})
		return
	}
	s.send(conn, Response{Type: "status", Content: fmt.Sprintf("Processing %s", doc.Source())})

	idx, err := s.session.Upload(ctx, doc)
	if err != nil {
		s.send(conn, Response{Type: "error", Content: fmt.Sprintf("Upload failed: %v", err)})
		return
	}
	s.send(conn, Response{
		Type:    "status",
		Content: fmt.Sprintf("Indexed %d chunks from %s", idx.Len(), doc.Source()),
		Source:  doc.Source(),
	})
}

// resolveUpload maps client input to a document. URLs are always allowed;
// files only when they resolve inside UploadDir.
func (s *WSServer) resolveUpload(input string, scrape scraper.ScraperConfig) (types.TextExtractable, error) {
	if doc, ok := extract.ForInput(input, scrape).(extract.URL); ok {
		return doc, nil
	}
	if s.config.UploadDir == "" {
		return nil, fmt.Errorf("%w: file uploads are disabled, send an http(s) URL or upload_text", ErrUploadNotAllowed)
	}

	root, err := filepath.EvalSymlinks(s.config.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("upload directory unavailable: %w", err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	path := input
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path, err = filepath.EvalSymlinks(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotAllowed, filepath.Base(input))
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("%w: %s is outside the upload directory", ErrUploadNotAllowed, filepath.Base(input))
	}
	return extract.File{Path: path}, nil
}

func (s *WSServer) send(conn *websocket.Conn, msg Response) {
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn("error sending message", "err", err)
	}
}
