package file

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ParseSpreadsheet reads the first sheet of an xlsx workbook with the same
// header detection, normalization and dedup rules as ParseIdentifiers.
func ParseSpreadsheet(r io.Reader, maxCount int) ([]string, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSpreadsheet, err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return []string{}, nil
	}

	rows, err := book.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSpreadsheet, err)
	}
	defer rows.Close()

	collector := newRowCollector(maxCount)
	for !collector.full() && rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			continue
		}
		if isBlankRow(cells) {
			continue
		}
		collector.add(cells)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read spreadsheet rows: %w", err)
	}

	return collector.result(), nil
}

func isBlankRow(cells []string) bool {
	for _, cell := range cells {
		if cleanField(cell) != "" {
			return false
		}
	}
	return true
}
