package sink

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"dataprep/internal/dataframe"
)

type csvParams struct {
	Path      string `json:"path" validate:"required"`
	Delimiter string `json:"delimiter" validate:"omitempty,len=1"`
}

type ndjsonParams struct {
	Path string `json:"path" validate:"required"`
}

// RegisterBuiltins installs the csv, ndjson and sqlite sinks.
func RegisterBuiltins(r *Registry) {
	r.Register(Definition{
		Kind: "csv", Label: "CSV File",
		NewParams: func() any { return &csvParams{} },
		Write:     writeCSV,
	})
	r.Register(Definition{
		Kind: "ndjson", Label: "NDJSON File",
		NewParams: func() any { return &ndjsonParams{} },
		Write:     writeNDJSON,
	})
	registerSQLiteSink(r)
}

func writeCSV(ctx context.Context, plans []dataframe.Plan, params any) (WriteResult, error) {
	p := params.(*csvParams)
	var res WriteResult
	for i, plan := range plans {
		path := partPath(p.Path, i, len(plans))
		n, rows, err := writeOneCSV(ctx, plan, path, p.Delimiter)
		if err != nil {
			return WriteResult{}, err
		}
		res.Files = append(res.Files, path)
		res.BytesWritten += n
		res.Rows += rows
	}
	return res, nil
}

func writeOneCSV(ctx context.Context, plan dataframe.Plan, path, delimiter string) (int64, int64, error) {
	f, err := plan.Collect(ctx)
	if err != nil {
		return 0, 0, err
	}
	out, err := os.Create(path)
	if err != nil {
		return 0, 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()

	bw := bufio.NewWriter(out)
	cw := &countingWriter{w: bw}
	w := csv.NewWriter(cw)
	if delimiter != "" {
		w.Comma = rune(delimiter[0])
	}

	if err := w.Write(f.Columns()); err != nil {
		return 0, 0, err
	}
	record := make([]string, len(f.Columns()))
	for i := 0; i < f.NumRows(); i++ {
		for j, v := range f.Row(i) {
			record[j] = dataframe.ValueString(v)
		}
		if err := w.Write(record); err != nil {
			return 0, 0, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, 0, err
	}
	if err := bw.Flush(); err != nil {
		return 0, 0, err
	}
	if err := out.Close(); err != nil {
		return 0, 0, err
	}
	return cw.n, int64(f.NumRows()), nil
}

func writeNDJSON(ctx context.Context, plans []dataframe.Plan, params any) (WriteResult, error) {
	p := params.(*ndjsonParams)
	var res WriteResult
	for i, plan := range plans {
		path := partPath(p.Path, i, len(plans))
		n, rows, err := writeOneNDJSON(ctx, plan, path)
		if err != nil {
			return WriteResult{}, err
		}
		res.Files = append(res.Files, path)
		res.BytesWritten += n
		res.Rows += rows
	}
	return res, nil
}

func writeOneNDJSON(ctx context.Context, plan dataframe.Plan, path string) (int64, int64, error) {
	f, err := plan.Collect(ctx)
	if err != nil {
		return 0, 0, err
	}
	out, err := os.Create(path)
	if err != nil {
		return 0, 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()

	bw := bufio.NewWriter(out)
	cw := &countingWriter{w: bw}
	enc := json.NewEncoder(cw)

	cols := f.Columns()
	rec := make(map[string]any, len(cols))
	for i := 0; i < f.NumRows(); i++ {
		for j, c := range cols {
			rec[c] = f.Row(i)[j]
		}
		if err := enc.Encode(rec); err != nil {
			return 0, 0, err
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, 0, err
	}
	if err := out.Close(); err != nil {
		return 0, 0, err
	}
	return cw.n, int64(f.NumRows()), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
