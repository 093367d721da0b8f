package models

import "strings"

// Document is a unit of extracted source text, either read from disk or
// scraped from a page.
type Document struct {
	ID       string
	URL      string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

// JoinContent concatenates the content of docs, each prefixed by its title
// when one is known.
func JoinContent(docs []Document) string {
	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if doc.Title != "" {
			b.WriteString(strings.TrimSpace(doc.Title))
			b.WriteString("\n")
		}
		b.WriteString(doc.Content)
	}
	return b.String()
}

// Chunk is a contiguous piece of a source document.
type Chunk struct {
	Index  int
	Source string
	Offset int
	Text   string
}

// SearchResult is one organic web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}
