package textparse

import (
	"regexp"
	"strings"
)

// Table is a pipe-delimited table: one header row and zero or more data rows.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

var separatorRe = regexp.MustCompile(`^\|[\s\-|]+\|$`)

// Tables extracts pipe tables. A table starts with a header row |a|b|c|
// followed immediately by a separator row (dashes and pipes), then takes
// every consecutive pipe-delimited line as a data row. Cells are trimmed.
func Tables(content string) []Table {
	tables := make([]Table, 0)
	lines := strings.Split(content, "\n")

	for i := 0; i < len(lines)-1; i++ {
		header := strings.TrimSpace(lines[i])
		if !isPipeRow(header) || separatorRe.MatchString(header) {
			continue
		}
		if !separatorRe.MatchString(strings.TrimSpace(lines[i+1])) {
			continue
		}

		table := Table{Headers: splitRow(header), Rows: make([][]string, 0)}
		j := i + 2
		for ; j < len(lines); j++ {
			row := strings.TrimSpace(lines[j])
			if !isPipeRow(row) {
				break
			}
			table.Rows = append(table.Rows, splitRow(row))
		}
		tables = append(tables, table)
		i = j - 1
	}
	return tables
}

func isPipeRow(line string) bool {
	return len(line) >= 2 && strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|")
}

func splitRow(line string) []string {
	parts := strings.Split(strings.Trim(line, "|"), "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}
