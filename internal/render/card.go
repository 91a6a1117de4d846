package render

import (
	"fmt"
	"regexp"
	"strings"
)

// Card is a structured reply: an optional header plus a sequence of
// markdown and table elements in source order.
type Card struct {
	Title    string
	Elements []Element
}

// Element is one card block. Exactly one of Markdown/Table is set.
type Element struct {
	Markdown string
	Table    *Table
}

// Table is a parsed Markdown table. Rows are keyed by Column.Name.
type Table struct {
	Columns []Column
	Rows    []map[string]string
}

// Column pairs a sanitized identifier with the original header text.
type Column struct {
	Name   string
	Header string
}

const maxTitleChars = 80

var (
	headingPattern  = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	boldLinePattern = regexp.MustCompile(`^\*\*(.+)\*\*$|^__(.+)__$`)
	listItemPattern = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
	tableSepPattern = regexp.MustCompile(`^\s*\|?[\s\-:|]+\|?\s*$`)
	columnIDPattern = regexp.MustCompile(`[^a-z0-9_]+`)
)

// BuildCard converts reply markdown into a card: a detected leading title
// becomes the header, table blocks up to maxTables become structured table
// elements, and everything else stays markdown. Table blocks past the cap
// are flattened into bullet lines.
func BuildCard(text string, maxTables int) *Card {
	title, body := splitTitle(text)

	card := &Card{Title: title}
	var md []string
	tableCount := 0

	flushMD := func() {
		joined := strings.TrimSpace(strings.Join(md, "\n"))
		if joined != "" {
			card.Elements = append(card.Elements, Element{Markdown: joined})
		}
		md = nil
	}

	lines := strings.Split(body, "\n")
	inFence := false
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if isFenceLine(line) {
			inFence = !inFence
			md = append(md, line)
			continue
		}
		if inFence || !isTableStart(lines, i) {
			md = append(md, line)
			continue
		}

		// Collect the whole table block.
		start := i
		i += 2
		for i < len(lines) && isTableRow(lines[i]) {
			i++
		}
		block := lines[start:i]
		i-- // loop increment

		table := parseTable(block)
		if table == nil {
			md = append(md, block...)
			continue
		}
		tableCount++
		if maxTables > 0 && tableCount > maxTables {
			md = append(md, flattenTable(table)...)
			continue
		}
		flushMD()
		card.Elements = append(card.Elements, Element{Table: table})
	}
	flushMD()
	return card
}

// splitTitle detects an optional leading title line and returns it with
// the remaining body. A heading or a bold-wrapped short line always
// qualifies; a plain short line only when it stands alone before a blank
// line (or is the entire message).
func splitTitle(text string) (string, string) {
	trimmed := strings.TrimLeft(text, "\n")
	idx := strings.Index(trimmed, "\n")
	first := trimmed
	rest := ""
	if idx >= 0 {
		first = trimmed[:idx]
		rest = trimmed[idx+1:]
	}

	line := strings.TrimSpace(first)
	if line == "" {
		return "", text
	}
	if isFenceLine(line) || isTableRow(line) || listItemPattern.MatchString(line) {
		return "", text
	}

	if m := headingPattern.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), rest
	}
	if m := boldLinePattern.FindStringSubmatch(line); m != nil {
		title := m[1]
		if title == "" {
			title = m[2]
		}
		if len([]rune(title)) <= maxTitleChars {
			return strings.TrimSpace(title), rest
		}
		return "", text
	}

	// Plain line: must be short and standalone.
	if len([]rune(line)) <= maxTitleChars &&
		(rest == "" || strings.TrimSpace(firstLine(rest)) == "") {
		return line, rest
	}
	return "", text
}

func firstLine(s string) string {
	if idx := strings.Index(s, "\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// isTableStart reports whether lines[i] opens a table block: a row line
// followed by a separator line of dashes/colons.
func isTableStart(lines []string, i int) bool {
	if i+1 >= len(lines) {
		return false
	}
	return isTableRow(lines[i]) && isTableSeparator(lines[i+1])
}

func isTableRow(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "|") && strings.Count(t, "|") >= 2
}

func isTableSeparator(line string) bool {
	t := strings.TrimSpace(line)
	return strings.Contains(t, "-") && tableSepPattern.MatchString(t)
}

// parseTable converts a table block (header, separator, rows) into a
// Table. Returns nil when the block has no usable cells.
func parseTable(block []string) *Table {
	if len(block) < 2 {
		return nil
	}
	headers := splitRow(block[0])
	if len(headers) == 0 {
		return nil
	}

	columns := make([]Column, len(headers))
	used := make(map[string]int, len(headers))
	for i, h := range headers {
		columns[i] = Column{Name: uniqueColumnID(h, used), Header: h}
	}

	table := &Table{Columns: columns}
	for _, line := range block[2:] {
		cells := splitRow(line)
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(cells) {
				row[col.Name] = cells[i]
			} else {
				row[col.Name] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// splitRow splits "| a | b |" into trimmed cells.
func splitRow(line string) []string {
	t := strings.TrimSpace(line)
	t = strings.TrimPrefix(t, "|")
	t = strings.TrimSuffix(t, "|")
	parts := strings.Split(t, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

// uniqueColumnID sanitizes a header into [a-z0-9_] and uniquifies
// collisions with a numeric suffix.
func uniqueColumnID(header string, used map[string]int) string {
	id := strings.ToLower(strings.TrimSpace(header))
	id = strings.ReplaceAll(id, " ", "_")
	id = columnIDPattern.ReplaceAllString(id, "")
	id = strings.Trim(id, "_")
	if id == "" {
		id = "col"
	}
	candidate := id
	for n := 2; ; n++ {
		if _, taken := used[candidate]; !taken {
			used[candidate] = 1
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", id, n)
	}
}

// flattenTable renders a table past the per-message cap as bullet lines:
// one bullet per row joining "header: cell" pairs, empty cells omitted.
func flattenTable(t *Table) []string {
	out := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		var pairs []string
		for _, col := range t.Columns {
			val := row[col.Name]
			if val == "" {
				continue
			}
			pairs = append(pairs, fmt.Sprintf("%s: %s", col.Header, val))
		}
		if len(pairs) == 0 {
			continue
		}
		out = append(out, "• "+strings.Join(pairs, " | "))
	}
	return out
}
