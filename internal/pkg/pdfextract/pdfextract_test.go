package pdfextract

import (
	"strings"
	"testing"
)

func TestExtractPagesEmptyInput(t *testing.T) {
	if _, err := ExtractPages(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestExtractPagesNotAPDF(t *testing.T) {
	if _, err := ExtractPages(strings.NewReader("plain text, not a pdf")); err == nil {
		t.Fatal("expected error for non-pdf input")
	}
}
