package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/guardian/internal/models"
	"github.com/xhad/guardian/pkg/extract"
	"github.com/xhad/guardian/pkg/scraper"
	"github.com/xhad/guardian/pkg/session"
)

var (
	successColor = color.New(color.FgGreen)
	noteColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	bannerColor  = color.New(color.FgCyan)
)

type repl struct {
	session *session.Session
	scrape  scraper.ScraperConfig
	in      *bufio.Scanner
	out     io.Writer
}

func newREPL(s *session.Session, scrape scraper.ScraperConfig, in io.Reader, out io.Writer) *repl {
	return &repl{
		session: s,
		scrape:  scrape,
		in:      bufio.NewScanner(in),
		out:     out,
	}
}

// say writes one colored line to the REPL's output.
func (r *repl) say(c *color.Color, format string, a ...interface{}) {
	c.Fprintln(r.out, fmt.Sprintf(format, a...))
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (r *repl) loop(ctx context.Context) error {
	r.say(bannerColor, "\nAsk about digital transactions and fraud (type /help for commands, 'exit' to quit)")

	userPrompt := successColor.FprintfFunc()
	for {
		userPrompt(r.out, "\nYou: ")
		if !r.in.Scan() {
			return r.in.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(r.in.Text())
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
			return nil
		case strings.HasPrefix(line, "/"):
			r.command(ctx, line)
		default:
			r.ask(ctx, line)
		}
	}
}

func (r *repl) command(ctx context.Context, line string) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/upload":
		if arg == "" {
			r.say(errorColor, "usage: /upload <path|url>")
			return
		}
		r.upload(ctx, arg)
	case "/reset":
		r.session.ResetUpload()
		r.say(successColor, "✓ Using the default knowledge base again")
	case "/mode":
		if arg == "" {
			fmt.Fprintf(r.out, "Response mode: %s\n", r.session.Mode())
			return
		}
		mode := models.ParseResponseMode(arg)
		r.session.SetMode(mode)
		r.say(successColor, "✓ Response mode set to %s", mode)
	case "/clear":
		r.session.ClearTranscript()
		r.say(successColor, "✓ Chat history cleared")
	case "/history":
		r.history()
	case "/help":
		fmt.Fprintln(r.out, "/upload <path|url>  index a document and answer from it")
		fmt.Fprintln(r.out, "/reset              go back to the default knowledge base")
		fmt.Fprintln(r.out, "/mode <concise|detailed>")
		fmt.Fprintln(r.out, "/clear              clear chat history")
		fmt.Fprintln(r.out, "/history            show chat history")
	default:
		r.say(errorColor, "unknown command %s", name)
	}
}

func (r *repl) ask(ctx context.Context, query string) {
	spinner := getSpinner(" Thinking...")
	ans := r.session.AnswerQuery(ctx, query)
	spinner.Finish()

	fmt.Fprintln(r.out)
	for _, note := range ans.Notes() {
		r.say(noteColor, "ℹ %s", note)
	}
	bannerColor.Fprintf(r.out, "\nAssistant: ")
	fmt.Fprintln(r.out, ans.Text)
}

func (r *repl) upload(ctx context.Context, input string) {
	var pages int32
	scrape := r.scrape
	scrape.OnProgress = func(string) {
		atomic.AddInt32(&pages, 1)
	}
	doc := extract.ForInput(input, scrape)

	var bar *progressbar.ProgressBar
	done := make(chan struct{})
	if _, ok := doc.(extract.URL); ok {
		bar = getProgressBar(-1, " Scraping...")
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					bar.Set(int(atomic.LoadInt32(&pages)))
				}
			}
		}()
	} else {
		bar = getSpinner(" Indexing " + doc.Source() + "...")
	}

	idx, err := r.session.Upload(ctx, doc)
	close(done)
	bar.Finish()
	fmt.Fprintln(r.out)
	if err != nil {
		r.say(errorColor, "Upload failed: %v", err)
		return
	}
	r.say(successColor, "✓ Indexed %d chunks from %s, answers now come from this document", idx.Len(), doc.Source())
}

func (r *repl) history() {
	transcript := r.session.Transcript()
	if len(transcript) == 0 {
		fmt.Fprintln(r.out, "No messages yet.")
		return
	}
	for _, m := range transcript {
		stamp := m.CreatedAt.Format(time.Kitchen)
		switch m.Role {
		case models.RoleUser:
			successColor.Fprintf(r.out, "[%s] You: ", stamp)
		default:
			bannerColor.Fprintf(r.out, "[%s] Assistant (%s): ", stamp, m.Route)
		}
		fmt.Fprintln(r.out, m.Content)
	}
}
