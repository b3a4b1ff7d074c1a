// Package ingestion loads a source document into pages, splits the pages
// into overlapping chunks and writes them with their embeddings into a
// vector collection.
package ingestion

import (
	"path/filepath"
	"strings"
)

// DocumentFormat names the kind of file handed to a PageLoader.
type DocumentFormat string

const (
	FormatUnknown DocumentFormat = ""
	FormatPDF     DocumentFormat = "pdf"
)

// DetectFormat looks only at the extension; content is checked by the loader.
func DetectFormat(path string) DocumentFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF
	default:
		return FormatUnknown
	}
}
