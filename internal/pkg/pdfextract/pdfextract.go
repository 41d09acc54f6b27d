package pdfextract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageText is the extracted plain text of one page.
type PageText struct {
	Number int
	Text   string
}

// ExtractPages reads the entire content of r and extracts plain text per
// page, keeping 1-based page numbers. Pages with no extractable text are
// skipped.
func ExtractPages(r io.Reader) ([]PageText, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf content failed: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("pdf content is empty")
	}

	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}

	var pages []PageText
	total := pdfReader.NumPage()
	for i := 1; i <= total; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not fail the document.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, PageText{Number: i, Text: text})
	}
	return pages, nil
}
