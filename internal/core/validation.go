package core

// validation.go checks parsed rows against the feature schema.
//
// Validation happens at two levels:
//  1. Header validation: every schema field must appear in the header row.
//     Extra headers are allowed.
//  2. Row validation: every cell on the line, not just the schema columns,
//     must coerce to a finite number.
//
// Under PolicyRejectAll (the default) the first bad row stops validation and
// the batch yields no records. PolicyPartial validates every row and keeps
// the good ones, which is what the preview report uses.

import (
	"fmt"
)

// ValidatedRow is a row that passed validation.
type ValidatedRow struct {
	Line   int
	Record Record
}

// RowOutcome is the validation result for one data row.
type RowOutcome struct {
	Line   int         `json:"line"`
	Valid  bool        `json:"valid"`
	Record *Record     `json:"record,omitempty"`
	Errors []CellError `json:"errors,omitempty"`
}

// ValidationReport collects per-row outcomes for a table.
type ValidationReport struct {
	Policy   ValidationPolicy `json:"-"`
	Outcomes []RowOutcome     `json:"rows"`
	Valid    int              `json:"valid"`
	Invalid  int              `json:"invalid"`
}

// Accepted returns the rows that passed, in source order.
func (r *ValidationReport) Accepted() []ValidatedRow {
	out := make([]ValidatedRow, 0, r.Valid)
	for _, o := range r.Outcomes {
		if o.Valid {
			out = append(out, ValidatedRow{Line: o.Line, Record: *o.Record})
		}
	}
	return out
}

// Err returns a *DataError listing every failed cell, or nil.
func (r *ValidationReport) Err() error {
	var cells []CellError
	for _, o := range r.Outcomes {
		cells = append(cells, o.Errors...)
	}
	if len(cells) == 0 {
		return nil
	}
	return &DataError{Cells: cells}
}

// ValidateHeader checks that every schema field is present in header.
func ValidateHeader(header []string) (HeaderIndex, error) {
	idx := MakeHeaderIndex(header)
	var missing []string
	for _, f := range FeatureSchema {
		if _, ok := idx[string(f)]; !ok {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}
	return idx, nil
}

// ValidateRow coerces every cell of row and builds its record.
func ValidateRow(row RawRow, header []string) RowOutcome {
	out := RowOutcome{Line: row.Line}

	for i, cell := range row.Cells {
		if _, ok := CoerceNumeric(cell); !ok {
			out.Errors = append(out.Errors, CellError{Line: row.Line, Column: columnName(header, i), Value: CleanCell(cell)})
		}
	}

	var rec Record
	for i, f := range FeatureSchema {
		cell, ok := row.Get(string(f))
		if !ok {
			out.Errors = append(out.Errors, CellError{Line: row.Line, Column: string(f)})
			continue
		}
		// Bad cells were already reported by the loop above.
		rec[i], _ = CoerceNumeric(cell)
	}

	if len(out.Errors) == 0 {
		out.Valid = true
		out.Record = &rec
	}
	return out
}

// ValidateTable validates the header and every data row of t.
//
// With PolicyRejectAll any bad cell returns a *DataError and no rows. With
// PolicyPartial the good rows are returned and the report lists the rest.
// A missing header always returns a *SchemaError.
func ValidateTable(t *Table, policy ValidationPolicy) ([]ValidatedRow, *ValidationReport, error) {
	if _, err := ValidateHeader(t.Header); err != nil {
		return nil, nil, err
	}

	report := &ValidationReport{Policy: policy}
	for row := range t.Rows() {
		o := ValidateRow(row, t.Header)
		report.Outcomes = append(report.Outcomes, o)
		if o.Valid {
			report.Valid++
			continue
		}
		report.Invalid++
		if policy == PolicyRejectAll {
			return nil, report, report.Err()
		}
	}

	return report.Accepted(), report, nil
}

func columnName(header []string, i int) string {
	if i < len(header) {
		if name := CleanCell(header[i]); name != "" {
			return name
		}
	}
	return fmt.Sprintf("#%d", i+1)
}
