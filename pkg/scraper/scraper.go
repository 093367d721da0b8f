package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/guardian/internal/models"
	"golang.org/x/time/rate"
)

type ScraperConfig struct {
	BaseURL string
	// MaxDepth 0 fetches only the start page.
	MaxDepth          int
	MaxPages          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
}

// Scraper fetches readable text from a page and, up to MaxDepth, the
// same-host pages it links to.
type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	limiter  *rate.Limiter
	baseHost string
	logger   *slog.Logger

	mu      sync.Mutex
	visited map[string]bool
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxDepth < 0 {
		config.MaxDepth = 0
	}
	if config.MaxPages == 0 {
		config.MaxPages = 25
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", parsedURL.Scheme)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		visited:  make(map[string]bool),
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
		logger:   slog.Default(),
	}, nil
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Host != s.baseHost {
		return false
	}

	ext := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if strings.HasSuffix(ext, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")

	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, header, footer, noscript").Remove()

	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content)
}

// Scrape starts at urlStr and returns one document per fetched page. An
// error is returned only when the start page itself fails.
func (s *Scraper) Scrape(ctx context.Context, urlStr string) ([]models.Document, error) {
	var documents []models.Document
	if err := s.scrapeRecursive(ctx, urlStr, 0, &documents); err != nil {
		return nil, err
	}
	return documents, nil
}

func (s *Scraper) markVisited(urlStr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited[urlStr] || len(s.visited) >= s.config.MaxPages {
		return false
	}
	s.visited[urlStr] = true
	return true
}

func (s *Scraper) scrapeRecursive(ctx context.Context, urlStr string, depth int, documents *[]models.Document) error {
	if depth > s.config.MaxDepth || !s.shouldProcessURL(urlStr) || !s.markVisited(urlStr) {
		return nil
	}

	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	var links []string
	if depth < s.config.MaxDepth {
		links = s.collectLinks(doc, urlStr)
	}

	*documents = append(*documents, models.Document{
		ID:      urlStr,
		URL:     urlStr,
		Title:   title,
		Content: extractMainContent(doc),
		Metadata: map[string]interface{}{
			"depth":        depth,
			"time":         time.Now(),
			"contentType":  resp.Header.Get("Content-Type"),
			"lastModified": resp.Header.Get("Last-Modified"),
		},
	})

	for _, link := range links {
		if err := s.scrapeRecursive(ctx, link, depth+1, documents); err != nil {
			s.logger.Warn("failed to scrape linked page", "url", link, "err", err)
		}
	}

	return nil
}

func (s *Scraper) collectLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			s.logger.Debug("skipping unparsable link", "href", href, "err", err)
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		links = append(links, abs.String())
	})
	return links
}
