package exporter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"distconsole/internal/infrastructure"
)

// Exporter encodes tables in a chosen format
type Exporter struct {
	csv    *CSVWriter
	logger *slog.Logger
}

// New creates an exporter
func New(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		csv:    NewCSVWriter(logger),
		logger: infrastructure.WithComponent(logger, "exporter"),
	}
}

// Write encodes tables to w. CSV holds exactly one table; XLSX writes one
// sheet per table.
func (e *Exporter) Write(ctx context.Context, w io.Writer, format Format, tables ...Table) error {
	ctx, span := infrastructure.StartSpan(ctx, "exporter.write",
		attribute.String("format", string(format)),
		attribute.Int("tables", len(tables)))
	defer span.End()

	start := time.Now()
	var err error
	switch format {
	case FormatCSV:
		if len(tables) != 1 {
			err = fmt.Errorf("csv export holds one table, got %d", len(tables))
			break
		}
		err = e.csv.Write(w, WriteOptions{Headers: tables[0].Headers, Records: tables[0].Rows, BOMPrefix: true})
	case FormatXLSX:
		if len(tables) == 0 {
			err = fmt.Errorf("xlsx export needs at least one table")
			break
		}
		err = writeXLSX(w, tables)
	default:
		err = fmt.Errorf("unsupported export format %q", format)
	}

	if err != nil {
		infrastructure.RecordError(ctx, err)
		e.logger.ErrorContext(ctx, "export failed",
			slog.String("format", string(format)),
			slog.String("error", err.Error()))
		return err
	}
	e.logger.DebugContext(ctx, "export written",
		slog.String("format", string(format)),
		slog.Int("tables", len(tables)),
		slog.Duration("duration", time.Since(start)))
	return nil
}
