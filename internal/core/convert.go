package core

// convert.go turns raw cell text into measurement values.
//
// Coercion is deliberately strict: a cell is a number only if, after
// trimming, it is a plain decimal or scientific literal. Empty cells,
// hex floats, "NaN" and "Inf" all become the invalid marker; they are never
// read as zero.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numericRegex matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// CleanCell trims surrounding whitespace, including a stray carriage return.
func CleanCell(s string) string {
	return strings.TrimSpace(s)
}

// CoerceNumeric converts a raw cell to a finite float64.
// ok is false for the invalid marker.
func CoerceNumeric(raw string) (v float64, ok bool) {
	s := CleanCell(raw)
	if s == "" || !numericRegex.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// FormatValue renders a measurement the shortest way that round-trips,
// so 1.0 prints as "1".
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// MakeHeaderIndex maps each trimmed header to its first position.
// Matching is exact: "mitoses" does not satisfy "Mitoses".
func MakeHeaderIndex(headers []string) HeaderIndex {
	idx := make(HeaderIndex, len(headers))
	for i, h := range headers {
		key := CleanCell(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}
