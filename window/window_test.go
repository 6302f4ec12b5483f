package window

import (
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"word", 2},
		{"one two three", 4},
		{"one two three four five six seven eight nine ten", 13},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestSelectEmptyInput(t *testing.T) {
	s := New(512)
	if got := s.Select(""); len(got) != 0 {
		t.Errorf("Select(\"\") returned %d windows, want 0", len(got))
	}
	if got := s.Select("   \n\t  "); len(got) != 0 {
		t.Errorf("Select(whitespace) returned %d windows, want 0", len(got))
	}
}

func TestSelectSingleSentence(t *testing.T) {
	s := New(512)
	got := s.Select("api-service depends on postgres.")
	if len(got) != 1 {
		t.Fatalf("got %d windows, want 1", len(got))
	}
	if got[0].Content != "api-service depends on postgres." {
		t.Errorf("Content = %q", got[0].Content)
	}
	if got[0].Start != 0 || got[0].End != len(got[0].Content) {
		t.Errorf("span = [%d,%d), want [0,%d)", got[0].Start, got[0].End, len(got[0].Content))
	}
}

func TestSplitSentencesUnicodeWhitespace(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"crlf", "First sentence.\r\nSecond sentence.", 2},
		{"form feed", "First sentence.\fSecond sentence.", 2},
		{"nbsp", "First sentence. Second sentence.", 2},
		{"space", "First sentence. Second sentence.", 2},
		{"no boundary inside token", "pkg.name stays whole", 1},
	}
	for _, tt := range tests {
		if got := splitSentences(tt.text); len(got) != tt.want {
			t.Errorf("%s: splitSentences(%q) = %d sentences, want %d", tt.name, tt.text, len(got), tt.want)
		}
	}
}

func TestSelectPacksSentencesTogether(t *testing.T) {
	s := New(512)
	got := s.Select("One two three. Four five six.")
	if len(got) != 1 {
		t.Fatalf("got %d windows, want 1", len(got))
	}
	if got[0].Content != "One two three. Four five six." {
		t.Errorf("Content = %q", got[0].Content)
	}
}

func TestSelectOverflowStartsNewWindow(t *testing.T) {
	s := New(8)
	got := s.Select("alpha beta gamma delta epsilon. one two three four five.")
	if len(got) != 2 {
		t.Fatalf("got %d windows, want 2: %+v", len(got), got)
	}
	if !strings.HasPrefix(got[0].Content, "alpha") {
		t.Errorf("first window = %q", got[0].Content)
	}
	if !strings.HasPrefix(got[1].Content, "one") {
		t.Errorf("second window = %q", got[1].Content)
	}
}

func TestSelectOversizedSentenceWordFallback(t *testing.T) {
	words := make([]string, 20)
	for i := range words {
		words[i] = "word"
	}
	s := New(5)
	got := s.Select(strings.Join(words, " "))
	if len(got) < 2 {
		t.Fatalf("got %d windows, want several", len(got))
	}
	total := 0
	for _, w := range got {
		if tok := EstimateTokens(w.Content); tok > 5 {
			t.Errorf("window %q estimates %d tokens, budget 5", w.Content, tok)
		}
		total += len(strings.Fields(w.Content))
	}
	if total != 20 {
		t.Errorf("windows cover %d words, want 20", total)
	}
}

func TestSelectOffsetsAdvance(t *testing.T) {
	s := New(8)
	got := s.Select("alpha beta gamma delta epsilon. one two three four five. six seven eight nine ten.")
	if len(got) < 2 {
		t.Fatalf("got %d windows, want at least 2", len(got))
	}
	for i, w := range got {
		if w.End-w.Start != len(w.Content) {
			t.Errorf("window %d span length %d != content length %d", i, w.End-w.Start, len(w.Content))
		}
		if i > 0 && w.Start != got[i-1].End+1 {
			t.Errorf("window %d starts at %d, want %d", i, w.Start, got[i-1].End+1)
		}
	}
}

func TestSelectEveryWindowWithinBudget(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog near the riverbank today. ", 40)
	for _, budget := range []int{16, 32, 512} {
		s := New(budget)
		for _, w := range s.Select(text) {
			if tok := EstimateTokens(w.Content); tok > budget {
				t.Errorf("budget %d: window estimates %d tokens: %q", budget, tok, w.Content)
			}
		}
	}
}

func TestSelectNoTrailingPunctuation(t *testing.T) {
	s := New(512)
	got := s.Select("no terminal punctuation here")
	if len(got) != 1 {
		t.Fatalf("got %d windows, want 1", len(got))
	}
	if got[0].Content != "no terminal punctuation here" {
		t.Errorf("Content = %q", got[0].Content)
	}
}

func TestNewZeroBudgetUsesDefault(t *testing.T) {
	if got := New(0).MaxTokens(); got != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", got, DefaultMaxTokens)
	}
}
