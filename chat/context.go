// Package chat turns retrieved chunks into a grounded prompt, asks the chat
// model, and runs the interactive question loop.
package chat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fabfab/pdf-rag/domain"
)

// ContextSeparator joins the entries of an assembled context.
const ContextSeparator = "\n\n---\n\n"

// AssembleContext renders each result as a provenance header followed by the
// chunk text, in input order. No results yields "".
func AssembleContext(results []domain.ScoredChunk) string {
	if len(results) == 0 {
		return ""
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		source := r.Chunk.Source
		if source == "" {
			source = domain.DefaultSource
		}
		header := fmt.Sprintf("[source=%s page=%d score=%s]", source, r.Chunk.Page, strconv.FormatFloat(r.Score, 'f', -1, 64))
		parts = append(parts, header+"\n"+r.Chunk.Content)
	}
	return strings.Join(parts, ContextSeparator)
}
