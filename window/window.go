// Package window splits document text into token-bounded windows on
// sentence boundaries, the unit of work for Tier-C extraction.
package window

import (
	"math"
	"strings"
	"unicode"
)

// DefaultMaxTokens is the window budget used when none is configured.
const DefaultMaxTokens = 512

// Window is one bounded slice of document text. Start and End are byte
// offsets into the selector's idealised output stream: each emitted window
// advances the cursor by len(Content)+1.
type Window struct {
	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// Selector packs sentences into windows of at most maxTokens estimated
// tokens. Immutable after construction.
type Selector struct {
	maxTokens int
}

// New returns a Selector with the given token budget.
// A zero budget falls back to DefaultMaxTokens.
func New(maxTokens int) *Selector {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Selector{maxTokens: maxTokens}
}

// MaxTokens returns the configured window budget.
func (s *Selector) MaxTokens() int {
	return s.maxTokens
}

// Select splits text into sentence-aligned windows. Sentences are packed
// greedily while the running estimate stays within the budget; a single
// sentence that alone exceeds the budget is packed word by word instead.
// Empty input yields no windows, and every emitted window satisfies
// EstimateTokens(w.Content) <= maxTokens.
func (s *Selector) Select(text string) []Window {
	windows := make([]Window, 0)
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return windows
	}

	cursor := 0
	var current strings.Builder
	currentTokens := 0

	emit := func() {
		content := strings.TrimSpace(current.String())
		if content == "" {
			current.Reset()
			currentTokens = 0
			return
		}
		w := Window{
			Content:    content,
			TokenCount: EstimateTokens(content),
			Start:      cursor,
			End:        cursor + len(content),
		}
		windows = append(windows, w)
		cursor = w.End + 1
		current.Reset()
		currentTokens = 0
	}

	for _, sent := range sentences {
		sentTokens := EstimateTokens(sent)

		// Word-level fallback for a sentence that can never fit.
		if sentTokens > s.maxTokens {
			emit()
			for _, frag := range s.packWords(sent) {
				current.WriteString(frag)
				emit()
			}
			continue
		}

		if currentTokens+sentTokens > s.maxTokens {
			emit()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentTokens += sentTokens
	}
	emit()

	return windows
}

// packWords splits one oversized sentence into fragments that each fit the
// token budget.
func (s *Selector) packWords(sentence string) []string {
	words := strings.Fields(sentence)
	maxWords := int(float64(s.maxTokens) / 1.3)
	if maxWords < 1 {
		maxWords = 1
	}

	fragments := make([]string, 0, len(words)/maxWords+1)
	for start := 0; start < len(words); start += maxWords {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		fragments = append(fragments, strings.Join(words[start:end], " "))
	}
	return fragments
}

// EstimateTokens approximates the token count of text using a word-based
// heuristic: tokens ~ ceil(words * 1.3).
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

// splitSentences splits on period/question-mark/exclamation followed by
// whitespace or end of string. Sentences are trimmed; empties dropped.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			sentences = append(sentences, s)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()
	return sentences
}
