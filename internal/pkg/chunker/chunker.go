// Package chunker splits page-level text into bounded overlapping chunks
// that keep the page number of their source page.
package chunker

import (
	"fmt"
	"strings"
)

// Page is one page of extracted text.
type Page struct {
	Number int
	Text   string
}

// Chunk is one bounded segment of a single page. A chunk never spans pages.
type Chunk struct {
	Text string
	Page int
}

// Splitter slices text with a sliding character window, preferring to break
// on paragraph, line, sentence, or word boundaries before falling back to a
// hard cut.
type Splitter struct {
	size    int
	overlap int
}

// Boundary separators in preference order.
var separators = []string{"\n\n", "\n", ". ", " "}

func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d", overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split materializes all chunks for the given pages, in page order.
func (s *Splitter) Split(pages []Page) []Chunk {
	var chunks []Chunk
	for _, page := range pages {
		for _, text := range s.splitText(page.Text) {
			chunks = append(chunks, Chunk{Text: text, Page: page.Number})
		}
	}
	return chunks
}

func (s *Splitter) splitText(text string) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); {
		end := start + s.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = s.cutPoint(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}

		if end == len(runes) {
			break
		}
		next := end - s.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// cutPoint returns the index to cut the window [start, end) at. Boundaries
// are only honored in the second half of the window so that preferring them
// never produces degenerate tiny chunks.
func (s *Splitter) cutPoint(runes []rune, start, end int) int {
	window := string(runes[start:end])
	minCut := len([]rune(window)) / 2
	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		cut := len([]rune(window[:idx])) + len([]rune(sep))
		if cut > minCut {
			return start + cut
		}
	}
	return end
}
