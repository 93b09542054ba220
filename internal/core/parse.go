package core

// parse.go splits delimited text into rows.
//
// The format is intentionally minimal: lines are separated by "\n" and cells
// by ",". There is no quoting, so a comma inside quotes still splits the
// cell. A trailing "\r" is dropped so files saved on Windows parse the same.
// Blank lines, including the one left by a final newline, are skipped.

import (
	"io"
	"iter"
	"path/filepath"
	"strings"
)

// RawRow is one data line split into untyped cells.
type RawRow struct {
	Line  int      // 1-based line in the source (the header is line 1)
	Cells []string // cells in column order, untrimmed
	index HeaderIndex
}

// Get returns the cell under header name. ok is false when the header does
// not exist or the row is too short to reach it.
func (r RawRow) Get(name string) (cell string, ok bool) {
	pos, found := r.index[name]
	if !found || pos >= len(r.Cells) {
		return "", false
	}
	return r.Cells[pos], true
}

// Table is a parsed header plus a lazy sequence of data rows.
type Table struct {
	Header []string
	index  HeaderIndex
	rows   iter.Seq[RawRow]
}

// Index returns the header index used for cell lookup.
func (t *Table) Index() HeaderIndex { return t.index }

// Rows yields data rows in source order. It may be ranged more than once.
func (t *Table) Rows() iter.Seq[RawRow] { return t.rows }

// ParseTable splits text into a header and data rows.
// Returns a *ParseError when the text has no content.
func ParseTable(text string) (*Table, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Reason: "file is empty"}
	}

	headerLine, body, _ := strings.Cut(text, "\n")
	header := splitLine(headerLine)
	idx := MakeHeaderIndex(header)

	rows := func(yield func(RawRow) bool) {
		line := 1
		for raw := range strings.SplitSeq(body, "\n") {
			line++
			if isBlankLine(raw) {
				continue
			}
			if !yield(RawRow{Line: line, Cells: splitLine(raw), index: idx}) {
				return
			}
		}
	}

	return &Table{Header: header, index: idx, rows: rows}, nil
}

// tableFromRecords builds a Table from already split rows, such as the
// cells of a spreadsheet. records[0] is the header.
func tableFromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, &ParseError{Reason: "sheet is empty"}
	}
	header := records[0]
	idx := MakeHeaderIndex(header)
	rest := records[1:]

	rows := func(yield func(RawRow) bool) {
		for i, cells := range rest {
			if isBlankRecord(cells) {
				continue
			}
			if !yield(RawRow{Line: i + 2, Cells: cells, index: idx}) {
				return
			}
		}
	}
	return &Table{Header: header, index: idx, rows: rows}, nil
}

// ReadTable reads an upload of at most maxBytes and parses it. Files named
// *.xlsx are read as workbooks; anything else is treated as delimited text.
func ReadTable(r io.Reader, filename string, maxBytes int64) (*Table, error) {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return readWorkbook(NewLimitedReader(r, maxBytes))
	}

	data, err := io.ReadAll(WrapUpload(r, maxBytes))
	if err != nil {
		return nil, &ParseError{Reason: "read upload", Err: err}
	}
	return ParseTable(string(data))
}

func splitLine(line string) []string {
	return strings.Split(strings.TrimSuffix(line, "\r"), ",")
}

func isBlankLine(line string) bool {
	return strings.TrimSpace(line) == ""
}

func isBlankRecord(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
