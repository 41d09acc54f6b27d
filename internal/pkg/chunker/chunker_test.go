package chunker

import (
	"strings"
	"testing"
)

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 1000, 200, false},
		{"zero overlap", 100, 0, false},
		{"zero size", 0, 0, true},
		{"negative size", -5, 0, true},
		{"negative overlap", 100, -1, true},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 150, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.size, tc.overlap)
			if tc.wantErr && err == nil {
				t.Fatalf("New(%d, %d) expected error, got nil", tc.size, tc.overlap)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("New(%d, %d) unexpected error: %v", tc.size, tc.overlap, err)
			}
		})
	}
}

func TestSplitEmptyPages(t *testing.T) {
	s, err := New(100, 20)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if got := s.Split(nil); len(got) != 0 {
		t.Fatalf("expected no chunks for nil pages, got %d", len(got))
	}
	pages := []Page{{Number: 1, Text: ""}, {Number: 2, Text: "   \n  "}}
	if got := s.Split(pages); len(got) != 0 {
		t.Fatalf("expected no chunks for blank pages, got %d", len(got))
	}
}

func TestSplitShortPageSingleChunk(t *testing.T) {
	s, err := New(100, 20)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	chunks := s.Split([]Page{{Number: 3, Text: "short page text"}})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "short page text" {
		t.Fatalf("unexpected chunk text: %q", chunks[0].Text)
	}
	if chunks[0].Page != 3 {
		t.Fatalf("expected page 3, got %d", chunks[0].Page)
	}
}

func TestSplitSizeBound(t *testing.T) {
	s, err := New(50, 10)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	text := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	chunks := s.Split([]Page{{Number: 1, Text: text}})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c.Text)); n > 50 {
			t.Fatalf("chunk %d exceeds size bound: %d runes", i, n)
		}
		if c.Text != strings.TrimSpace(c.Text) {
			t.Fatalf("chunk %d has surrounding whitespace: %q", i, c.Text)
		}
	}
}

func TestSplitCoversAllText(t *testing.T) {
	s, err := New(40, 10)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	words := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet"}
	text := strings.Join(words, " ")
	text = strings.Repeat(text+" ", 5)

	chunks := s.Split([]Page{{Number: 1, Text: text}})
	joined := " "
	for _, c := range chunks {
		joined += c.Text + " "
	}
	for _, w := range words {
		if !strings.Contains(joined, w) {
			t.Fatalf("word %q missing from chunk output", w)
		}
	}
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	s, err := New(60, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first := strings.Repeat("a", 40)
	second := strings.Repeat("b", 40)
	chunks := s.Split([]Page{{Number: 1, Text: first + "\n\n" + second}})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != first {
		t.Fatalf("expected first chunk to stop at the paragraph break, got %q", chunks[0].Text)
	}
	if chunks[1].Text != second {
		t.Fatalf("unexpected second chunk: %q", chunks[1].Text)
	}
}

func TestSplitIgnoresBoundaryInFirstHalf(t *testing.T) {
	s, err := New(60, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// The only separator sits well inside the first half of the window, so
	// the splitter hard-cuts at the size bound instead.
	text := strings.Repeat("a", 10) + " " + strings.Repeat("b", 100)
	chunks := s.Split([]Page{{Number: 1, Text: text}})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if n := len([]rune(chunks[0].Text)); n != 60 {
		t.Fatalf("expected first chunk hard-cut at 60 runes, got %d", n)
	}
}

func TestSplitOverlapCarriesText(t *testing.T) {
	s, err := New(20, 10)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	text := strings.Repeat("x", 50)
	chunks := s.Split([]Page{{Number: 1, Text: text}})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// Each window starts overlap runes before the previous end, so the tail
	// of chunk N reappears at the head of chunk N+1.
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		tail := string(prev[len(prev)-5:])
		if !strings.HasPrefix(chunks[i].Text, tail) {
			t.Fatalf("chunk %d does not overlap chunk %d", i, i-1)
		}
	}
}

func TestSplitChunksNeverSpanPages(t *testing.T) {
	s, err := New(1000, 200)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	pages := []Page{
		{Number: 1, Text: "first page content"},
		{Number: 2, Text: "second page content"},
	}
	chunks := s.Split(pages)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Page != 1 || chunks[1].Page != 2 {
		t.Fatalf("page numbers not preserved: %d, %d", chunks[0].Page, chunks[1].Page)
	}
	if strings.Contains(chunks[0].Text, "second") {
		t.Fatalf("chunk spans pages: %q", chunks[0].Text)
	}
}

func TestSplitMultibyteRunes(t *testing.T) {
	s, err := New(10, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	text := strings.Repeat("héllo wörld ", 10)
	chunks := s.Split([]Page{{Number: 1, Text: text}})
	for i, c := range chunks {
		if n := len([]rune(c.Text)); n > 10 {
			t.Fatalf("chunk %d exceeds rune bound: %d", i, n)
		}
	}
}
