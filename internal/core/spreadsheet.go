package core

import (
	"io"

	"github.com/xuri/excelize/v2"
)

// readWorkbook loads the first sheet of an .xlsx workbook as a Table.
// Cells are read raw so numbers keep their stored precision rather than
// the sheet's display format.
func readWorkbook(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Reason: "open workbook", Err: err}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Reason: "workbook has no sheets"}
	}

	records, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &ParseError{Reason: "read sheet " + sheets[0], Err: err}
	}
	return tableFromRecords(records)
}
