package file

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/mohammadpnp/book-import/internal/domain/isbn"
)

const headerToken = "isbn"

var candidateDelimiters = []rune{',', ';', '\t', '|'}

// ParseIdentifiers reads delimited text and returns the unique normalized
// identifiers in the order they first appear. maxCount <= 0 means no limit.
// Only I/O errors are returned; malformed rows are skipped.
func ParseIdentifiers(r io.Reader, maxCount int) ([]string, error) {
	br := stripUTF8BOM(bufio.NewReader(r))
	rows := newRowCollector(maxCount)
	delimiter := rune(0)

	for !rows.full() {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read identifier file: %w", err)
		}

		if trimmed := strings.TrimRight(line, "\r\n"); strings.TrimSpace(trimmed) != "" {
			if delimiter == 0 {
				delimiter = detectDelimiter(trimmed)
			}
			if fields, ok := splitFields(trimmed, delimiter); ok {
				rows.add(fields)
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}

	return rows.result(), nil
}

// rowCollector holds the column detection and dedup state shared by the
// delimited and spreadsheet readers.
type rowCollector struct {
	column     int
	sawFirst   bool
	maxCount   int
	seen       map[string]struct{}
	identifier []string
}

func newRowCollector(maxCount int) *rowCollector {
	return &rowCollector{
		column:     -1,
		maxCount:   maxCount,
		seen:       make(map[string]struct{}),
		identifier: make([]string, 0),
	}
}

func (c *rowCollector) full() bool {
	return c.maxCount > 0 && len(c.identifier) >= c.maxCount
}

func (c *rowCollector) result() []string {
	return c.identifier
}

// add consumes one non-blank row.
func (c *rowCollector) add(fields []string) {
	if !c.sawFirst {
		c.sawFirst = true
		if idx := headerColumn(fields); idx >= 0 {
			c.column = idx
			return
		}
	}

	raw, ok := c.candidate(fields)
	if !ok {
		return
	}

	normalized := isbn.Normalize(cleanField(raw))
	if !isbn.HasValidLength(normalized) {
		return
	}
	if _, dup := c.seen[normalized]; dup {
		return
	}

	c.seen[normalized] = struct{}{}
	c.identifier = append(c.identifier, normalized)
}

func (c *rowCollector) candidate(fields []string) (string, bool) {
	if c.column >= 0 {
		if c.column < len(fields) {
			return fields[c.column], true
		}
		return "", false
	}

	for _, field := range fields {
		if isbn.HasValidLength(field) {
			return field, true
		}
	}
	return "", false
}

func headerColumn(fields []string) int {
	for i, field := range fields {
		if strings.Contains(strings.ToLower(field), headerToken) {
			return i
		}
	}
	return -1
}

func cleanField(field string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '"' || r == '\'' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, field)
}

// splitFields parses one line honoring quoted fields. A line the csv reader
// rejects is reported as not ok so the caller skips it.
func splitFields(line string, delimiter rune) ([]string, bool) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	fields, err := r.Read()
	if err != nil {
		return nil, false
	}
	return fields, true
}

// detectDelimiter picks the candidate delimiter that occurs most often
// outside quotes, falling back to a comma.
func detectDelimiter(line string) rune {
	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, r := range line {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}
