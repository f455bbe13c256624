// Package chunking splits converted documents into retrieval-sized chunks.
package chunking

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/docconv"
)

// Chunk is a piece of document text. Page is the 1-based source page, or 0
// for single-page Markdown documents.
type Chunk struct {
	Text string
	Page int
}

// Splitter splits Markdown structurally and PDF pages recursively by
// paragraph, line and word.
type Splitter struct {
	markdown textsplitter.TextSplitter
	plain    textsplitter.TextSplitter
}

// NewSplitter creates a Splitter using cfg.ChunkSize and cfg.ChunkOverlap,
// measured in runes.
func NewSplitter(cfg config.RetrievalConfig) *Splitter {
	size, overlap := cfg.ChunkSize, cfg.ChunkOverlap
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	opts := []textsplitter.Option{
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	}
	return &Splitter{
		markdown: textsplitter.NewMarkdownTextSplitter(opts...),
		plain:    textsplitter.NewRecursiveCharacter(opts...),
	}
}

// Split returns the non-blank chunks of doc in reading order.
func (s *Splitter) Split(doc *docconv.Document) ([]Chunk, error) {
	var chunks []Chunk
	for _, p := range doc.Pages {
		splitter, page := s.plain, p.Number
		if doc.Format == docconv.FormatMarkdown {
			splitter, page = s.markdown, 0
		}

		parts, err := splitter.SplitText(p.Text)
		if err != nil {
			return nil, fmt.Errorf("splitting %s page %d: %w", doc.Name, p.Number, err)
		}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			chunks = append(chunks, Chunk{Text: part, Page: page})
		}
	}
	return chunks, nil
}
