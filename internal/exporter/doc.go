// Package exporter writes console data as CSV or XLSX.
//
// Data is first projected into a Table (one sheet: headers plus string rows)
// by HistoryTable, ConfigurationTable or DatasetTable, then encoded with
// Write in the requested Format.
//
// Example usage:
//
//	exp := exporter.New(logger)
//	err := exp.Write(ctx, w, exporter.FormatXLSX, exporter.HistoryTable(store.Entries()))
package exporter
