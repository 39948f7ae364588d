package exporter

import (
	"strconv"

	"distconsole/internal/dataset"
	"distconsole/internal/operations"
	"distconsole/pkg/contracts/domain"
)

// Table is one sheet of export output
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]string
}

// HistoryTable lists past submissions, most recent last
func HistoryTable(entries []domain.HistoryEntry) Table {
	t := Table{
		Sheet:   "History",
		Headers: []string{"Config ID", "Created"},
		Rows:    make([][]string, 0, len(entries)),
	}
	for _, e := range entries {
		t.Rows = append(t.Rows, []string{e.ConfigID, formatTime(e.CreatedAt)})
	}
	return t
}

// ConfigurationTable flattens a configuration set to one row per operation.
// A configuration without operations still gets a row.
func ConfigurationTable(set domain.ConfigurationSet) Table {
	t := Table{
		Sheet:   "Configurations",
		Headers: []string{"Configuration", "Column", "Position", "Kind", "Code", "Argument"},
	}
	for i, cfg := range set.Configurations {
		index := strconv.Itoa(i + 1)
		if len(cfg.Operations) == 0 {
			t.Rows = append(t.Rows, []string{index, cfg.Column, "", "", "", ""})
			continue
		}
		for k, op := range cfg.Operations {
			code := ""
			if info, ok := operations.LookupByKey(string(op.Kind)); ok {
				code = info.Code
			}
			t.Rows = append(t.Rows, []string{
				index, cfg.Column, strconv.Itoa(k + 1), string(op.Kind), code, op.Argument(),
			})
		}
	}
	return t
}

// DatasetTable writes the loaded page of a dataset, columns in header order
func DatasetTable(ds *domain.Dataset) Table {
	headers := dataset.Headers(dataset.ColumnsFor(ds))
	t := Table{Sheet: "Dataset", Headers: headers}
	if ds == nil {
		return t
	}
	if ds.Name != "" {
		t.Sheet = ds.Name
	}
	t.Rows = make([][]string, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		record := make([]string, len(headers))
		for i, h := range headers {
			record[i] = row[h]
		}
		t.Rows = append(t.Rows, record)
	}
	return t
}
