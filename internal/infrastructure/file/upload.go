// Package file turns uploaded or locally stored identifier files into
// ordered lists of normalized ISBNs.
package file

import (
	"bufio"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	sniffLength = 3072
	xlsxMIME    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	ErrUnsupportedFormat     = errors.New("unsupported identifier file format")
	ErrUnreadableSpreadsheet = errors.New("unreadable spreadsheet")
)

// ParseUpload sniffs the content of an uploaded file and routes it to the
// spreadsheet or the delimited-text parser.
func ParseUpload(fileName string, r io.Reader, maxCount int) ([]string, error) {
	br := bufio.NewReaderSize(r, sniffLength)
	head, err := br.Peek(sniffLength)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}

	switch detectFormat(fileName, head) {
	case formatSpreadsheet:
		return ParseSpreadsheet(br, maxCount)
	case formatDelimited:
		return ParseIdentifiers(br, maxCount)
	default:
		return nil, ErrUnsupportedFormat
	}
}

type format int

const (
	formatUnknown format = iota
	formatDelimited
	formatSpreadsheet
)

func detectFormat(fileName string, head []byte) format {
	if len(head) == 0 {
		return formatDelimited
	}

	detected := mimetype.Detect(head)
	isXLSXName := strings.EqualFold(filepath.Ext(fileName), ".xlsx")
	for m := detected; m != nil; m = m.Parent() {
		switch {
		case m.Is(xlsxMIME):
			return formatSpreadsheet
		// Zip containers can be truncated in the sniff window; trust the extension.
		case m.Is("application/zip") && isXLSXName:
			return formatSpreadsheet
		case m.Is("text/plain"):
			return formatDelimited
		}
	}
	return formatUnknown
}
