package ingestion

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/fabfab/pdf-rag/domain"
)

// PageLoader turns a source file into one Page per physical page.
type PageLoader interface {
	Load(ctx context.Context, path string) ([]domain.Page, error)
}

type PDFLoader struct{}

func (PDFLoader) Load(ctx context.Context, path string) (pages []domain.Page, err error) {
	if strings.TrimSpace(path) == "" {
		return nil, domain.WrapError(domain.ErrSourceLoad, "load source", fmt.Errorf("source path is empty"))
	}
	if DetectFormat(path) != FormatPDF {
		return nil, domain.WrapError(domain.ErrSourceLoad, "load source", fmt.Errorf("unsupported format: %s", path))
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, domain.WrapError(domain.ErrSourceLoad, "load source", statErr)
	}

	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = domain.WrapError(domain.ErrSourceLoad, "parse pdf", fmt.Errorf("%s: %v", path, r))
		}
	}()

	file, reader, openErr := pdf.Open(path)
	if openErr != nil {
		return nil, domain.WrapError(domain.ErrSourceLoad, "open pdf", openErr)
	}
	defer file.Close()

	total := reader.NumPage()
	pages = make([]domain.Page, 0, total)
	for i := 1; i <= total; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		page := domain.Page{Source: path, Number: i}
		p := reader.Page(i)
		if !p.V.IsNull() {
			text, textErr := p.GetPlainText(nil)
			if textErr != nil {
				return nil, domain.WrapError(domain.ErrSourceLoad, fmt.Sprintf("extract text from page %d", i), textErr)
			}
			page.Text = normalizePlainText(text)
		}
		pages = append(pages, page)
	}

	return pages, nil
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
