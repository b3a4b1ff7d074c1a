package ingestion

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fabfab/pdf-rag/domain"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 150
)

// Splitter separators, most preferred first: paragraphs, lines, words, then
// single characters.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts page text into chunks of at most ChunkSize characters that
// overlap their predecessor by up to ChunkOverlap characters.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int

	splitter textsplitter.RecursiveCharacter
}

func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = defaultChunkOverlap
	}

	return &Splitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(defaultSeparators),
		),
	}
}

func (s *Splitter) SplitText(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

// SplitPages splits every page independently; chunks inherit the page's
// source and number and are indexed in document order.
func (s *Splitter) SplitPages(pages []domain.Page) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, 0, len(pages))
	for _, page := range pages {
		parts, err := s.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("split page %d: %w", page.Number, err)
		}
		for _, part := range parts {
			chunks = append(chunks, domain.Chunk{
				Content: part,
				Source:  page.Source,
				Page:    page.Number,
				Index:   len(chunks),
			})
		}
	}
	return chunks, nil
}
