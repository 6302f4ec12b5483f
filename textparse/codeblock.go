// Package textparse holds the deterministic Tier-A text parsers: fenced code
// blocks, pipe-delimited tables, and YAML/JSON structures. All parsers are
// pure functions over their input.
package textparse

import (
	"regexp"
	"strings"
)

// CodeBlock is one fenced code block lifted out of markdown-ish text.
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

var fenceRe = regexp.MustCompile("(?s)```([^`\n]*)\n(.*?)```")

// CodeBlocks extracts fenced code blocks. Language is the token directly
// after the opening fence (empty when absent); code bodies have surrounding
// whitespace stripped. Unmatched fences are skipped.
func CodeBlocks(content string) []CodeBlock {
	blocks := make([]CodeBlock, 0)
	for _, m := range fenceRe.FindAllStringSubmatch(content, -1) {
		language := ""
		if fields := strings.Fields(m[1]); len(fields) > 0 {
			language = fields[0]
		}
		blocks = append(blocks, CodeBlock{
			Language: language,
			Code:     strings.TrimSpace(m[2]),
		})
	}
	return blocks
}

// RenderCodeBlocks is the inverse of CodeBlocks for well-formed blocks:
// language tokens without whitespace and code bodies free of triple
// backticks round-trip exactly.
func RenderCodeBlocks(blocks []CodeBlock) string {
	var b strings.Builder
	for _, cb := range blocks {
		b.WriteString("```")
		b.WriteString(cb.Language)
		b.WriteString("\n")
		b.WriteString(cb.Code)
		b.WriteString("\n```\n")
	}
	return b.String()
}
