package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xhad/guardian/internal/models"
	"github.com/xhad/guardian/internal/types"
	"github.com/xhad/guardian/pkg/scraper"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

// File reads plain text, markdown and .docx documents from disk.
type File struct {
	Path string
}

var _ types.TextExtractable = File{}

func (f File) Source() string {
	return filepath.Base(f.Path)
}

func (f File) ExtractText(_ context.Context) (string, error) {
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".txt", ".md", ".markdown", ".text", "":
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return "", err
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8 text", ErrUnsupportedFormat, f.Path)
		}
		return string(data), nil
	case ".docx":
		return readDocx(f.Path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(f.Path))
	}
}

// readDocx pulls paragraph text out of word/document.xml.
func readDocx(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open document.xml: %w", err)
		}
		defer rc.Close()
		return docxText(rc)
	}
	return "", fmt.Errorf("%w: %s has no word/document.xml", ErrUnsupportedFormat, path)
}

func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteString("\t")
			case "br":
				b.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// URL scrapes a web page, and optionally the pages it links to, as one
// document.
type URL struct {
	Address string
	Config  scraper.ScraperConfig
}

var _ types.TextExtractable = URL{}

func (u URL) Source() string {
	return u.Address
}

func (u URL) ExtractText(ctx context.Context) (string, error) {
	config := u.Config
	config.BaseURL = u.Address

	s, err := scraper.NewWithConfig(config)
	if err != nil {
		return "", fmt.Errorf("failed to initialize scraper: %w", err)
	}
	docs, err := s.Scrape(ctx, u.Address)
	if err != nil {
		return "", fmt.Errorf("failed to scrape URL: %w", err)
	}
	return models.JoinContent(docs), nil
}

// ForInput picks the extractor for a path or an http(s) address.
func ForInput(input string, scrape scraper.ScraperConfig) types.TextExtractable {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return URL{Address: input, Config: scrape}
	}
	return File{Path: input}
}
