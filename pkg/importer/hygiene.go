package importer

import (
	"sort"
	"strings"

	"github.com/rolloy/scm-import/pkg/sheet"
)

// CleanStats reports what Clean removed from a sheet.
type CleanStats struct {
	EmptyRows  int
	Duplicates int
}

// Clean drops fully empty rows and exact duplicate rows, keeping the
// first occurrence. Cell-level trimming and missing-token coalescing
// already happen when the sheet is read.
func Clean(rows []sheet.Row) ([]sheet.Row, CleanStats) {
	var stats CleanStats
	seen := make(map[string]struct{}, len(rows))
	out := make([]sheet.Row, 0, len(rows))
	for _, row := range rows {
		if row.IsEmpty() {
			stats.EmptyRows++
			continue
		}
		sig := rowSignature(row)
		if _, dup := seen[sig]; dup {
			stats.Duplicates++
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, row)
	}
	return out, stats
}

func rowSignature(row sheet.Row) string {
	labels := make([]string, 0, len(row))
	for label := range row {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	var b strings.Builder
	for _, label := range labels {
		b.WriteString(label)
		b.WriteByte('=')
		b.WriteString(row[label].String())
		b.WriteByte('\x1f')
	}
	return b.String()
}

// RequireColumns verifies that every named column is present, using the
// first row as the sheet's header set. A sheet with no rows fails for all
// required columns at once.
func RequireColumns(sheetName string, rows []sheet.Row, labels ...string) error {
	var header sheet.Row
	if len(rows) > 0 {
		header = rows[0]
	}
	var missing []string
	for _, label := range labels {
		if _, ok := header[label]; !ok {
			missing = append(missing, label)
		}
	}
	if len(missing) > 0 {
		return &StructuralError{Sheet: sheetName, Missing: missing}
	}
	return nil
}
