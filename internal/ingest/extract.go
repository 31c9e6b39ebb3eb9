package ingest

import (
	"fmt"
	"strings"
	"sync"
)

// Extractor turns a file's raw bytes into plain text for chunking.
// Registered per extension so new formats can be added without touching
// the pipeline itself.
type Extractor interface {
	Extract(content []byte) (string, error)
}

type plainTextExtractor struct{}

func (plainTextExtractor) Extract(content []byte) (string, error) {
	return string(content), nil
}

// extractorRegistry maps a lowercase file extension (including the
// leading dot) to the Extractor responsible for it.
type extractorRegistry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewExtractorRegistry returns a registry with the built-in extractors:
// plain text, Word documents, spreadsheets, saved web pages, and
// exported emails. Additional formats plug in through
// RegisterExtractor.
func NewExtractorRegistry() *extractorRegistry {
	r := &extractorRegistry{extractors: make(map[string]Extractor)}
	plain := plainTextExtractor{}
	r.RegisterExtractor(".txt", plain)
	r.RegisterExtractor(".md", plain)
	r.RegisterExtractor(".markdown", plain)
	r.RegisterExtractor(".docx", docxExtractor{})
	r.RegisterExtractor(".xlsx", xlsxExtractor{})
	r.RegisterExtractor(".html", htmlExtractor{})
	r.RegisterExtractor(".htm", htmlExtractor{})
	r.RegisterExtractor(".eml", emlExtractor{})
	return r
}

func (r *extractorRegistry) RegisterExtractor(extension string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[strings.ToLower(extension)] = e
}

func (r *extractorRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		exts = append(exts, ext)
	}
	return exts
}

// Extract looks up the extractor registered for extension and runs it.
// Returns an error if none is registered.
func (r *extractorRegistry) Extract(extension string, content []byte) (string, error) {
	r.mu.RLock()
	e, ok := r.extractors[strings.ToLower(extension)]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no extractor registered for extension %q", extension)
	}
	return e.Extract(content)
}
