// Package dataset holds the loaded dataframe page and projects its headers
// into selectable columns.
package dataset

import "distconsole/pkg/contracts/domain"

// ColumnsFor projects a dataset's headers into columns, in header order.
// A nil dataset yields an empty, non-nil slice.
func ColumnsFor(ds *domain.Dataset) []domain.Column {
	if ds == nil {
		return []domain.Column{}
	}
	out := make([]domain.Column, len(ds.Columns))
	copy(out, ds.Columns)
	return out
}

// Headers returns the header strings of cols
func Headers(cols []domain.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Header
	}
	return out
}
