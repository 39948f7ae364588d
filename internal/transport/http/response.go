package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "distconsole/internal/errors"
	"distconsole/internal/exporter"
)

// indexParam reads a non-negative integer URL parameter
func indexParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidParameter(name, err)
	}
	if n < 0 {
		return 0, apperrors.InvalidParameter(name, fmt.Errorf("%d is negative", n))
	}
	return n, nil
}

// bind decodes the JSON body into v and runs its Bind hook. An empty body
// leaves v zero.
func bind(r *http.Request, v render.Binder) error {
	if r.ContentLength != 0 {
		if err := render.Decode(r, v); err != nil && !errors.Is(err, io.EOF) {
			return apperrors.InvalidRequestWithError(err)
		}
	}
	return v.Bind(r)
}

// writeExport renders tables into memory first so a failure can still be
// reported as a problem response
func writeExport(ctx context.Context, w http.ResponseWriter, exp TableExporter, format exporter.Format, base string, tables ...exporter.Table) error {
	if exp == nil {
		return apperrors.ErrServiceUnavailable
	}
	var buf bytes.Buffer
	if err := exp.Write(ctx, &buf, format, tables...); err != nil {
		return err
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(base)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}
