package capability

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/rahul/vidya/internal/store"
)

// Extractor turns one uploaded file format into plain text.
type Extractor interface {
	// Supports reports whether the extractor handles the file, by extension.
	Supports(name string) bool
	Extract(ctx context.Context, path string) (string, error)
}

// TextExtractor handles plain-text formats as-is.
type TextExtractor struct{}

func (TextExtractor) Supports(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".csv", ".rst":
		return true
	}
	return false
}

func (TextExtractor) Extract(ctx context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("file is not valid text")
	}
	return string(raw), nil
}

// HTMLExtractor strips saved web pages down to their readable text.
type HTMLExtractor struct{}

func (HTMLExtractor) Supports(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

func (HTMLExtractor) Extract(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	base, _ := url.Parse("file://" + path)
	article, err := readability.FromReader(f, base)
	if err != nil {
		return "", err
	}
	return bluemonday.StrictPolicy().Sanitize(article.TextContent), nil
}

// Ingest extracts text from an uploaded file so downstream tasks can
// analyze or store it. When the turn has an established course the text is
// also saved into that course's material.
type Ingest struct {
	Store      *store.Store
	Extractors []Extractor
	MaxChars   int
}

func NewIngest(st *store.Store) *Ingest {
	return &Ingest{
		Store:      st,
		Extractors: []Extractor{TextExtractor{}, HTMLExtractor{}},
		MaxChars:   50000,
	}
}

func (g *Ingest) Descriptor() Descriptor {
	return Descriptor{
		Name:        NameFileIngest,
		Description: "Extract the text of an uploaded file so it can be analyzed or stored.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "The uploaded file's name",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Where the gateway staged the file locally",
				},
			},
			"required": []string{"name", "path"},
		},
	}
}

func (g *Ingest) Execute(ctx context.Context, inv Invocation) (string, error) {
	name := inv.Param("name")
	path := inv.Param("path")
	if path == "" {
		return "", Permanent(NameFileIngest, fmt.Errorf("no file to ingest"))
	}
	if name == "" {
		name = filepath.Base(path)
	}

	ext := g.extractorFor(name)
	if ext == nil {
		return "", Permanent(NameFileIngest,
			fmt.Errorf("unsupported file type %q", filepath.Ext(name)))
	}

	text, err := ext.Extract(ctx, path)
	if err != nil {
		return "", Permanent(NameFileIngest, fmt.Errorf("extracting %s: %w", name, err))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", Permanent(NameFileIngest, fmt.Errorf("%s contains no extractable text", name))
	}
	if len(text) > g.MaxChars {
		text = text[:g.MaxChars]
	}

	if courseID := inv.Param("course_id"); courseID != "" && g.Store != nil {
		chunks := chunkText(text, 4000)
		for i, chunk := range chunks {
			title := name
			if len(chunks) > 1 {
				title = fmt.Sprintf("%s (part %d)", name, i+1)
			}
			if _, err := g.Store.SaveMaterial(ctx, courseID, title, chunk); err != nil {
				return "", Permanent(NameFileIngest, err)
			}
		}
	}
	return text, nil
}

// chunkText splits text into pieces of at most size bytes, breaking on the
// last newline inside the window so lines stay whole.
func chunkText(text string, size int) []string {
	var chunks []string
	for len(text) > size {
		cut := size
		if i := strings.LastIndexByte(text[:size], '\n'); i > 0 {
			cut = i + 1
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = text[cut:]
	}
	if rest := strings.TrimSpace(text); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

func (g *Ingest) extractorFor(name string) Extractor {
	for _, ext := range g.Extractors {
		if ext.Supports(name) {
			return ext
		}
	}
	return nil
}
