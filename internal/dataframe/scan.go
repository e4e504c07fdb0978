package dataframe

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// ScanOptions tunes file scans. Zero value: comma separator, first row is
// the header, fields trimmed.
type ScanOptions struct {
	Comma    rune
	NoHeader bool
	NoTrim   bool
}

// ScanCSV lazily reads a CSV file. All values are strings; the empty string
// decodes as null. The header row has its BOM stripped.
func ScanCSV(path string, opt ScanOptions) Plan {
	return &csvScan{path: path, opt: opt}
}

type csvScan struct {
	path string
	opt  ScanOptions

	once       sync.Once
	cachedCols []string
	cachedErr  error
}

func (s *csvScan) reader(f *os.File) *csv.Reader {
	r := csv.NewReader(f)
	if s.opt.Comma != 0 {
		r.Comma = s.opt.Comma
	}
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	return r
}

func (s *csvScan) header(r *csv.Reader) ([]string, error) {
	rec, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make([]string, len(rec))
	if s.opt.NoHeader {
		for i := range rec {
			cols[i] = fmt.Sprintf("column_%d", i+1)
		}
		return cols, nil
	}
	for i, h := range rec {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if !s.opt.NoTrim {
			h = strings.TrimSpace(h)
		}
		cols[i] = h
	}
	return cols, nil
}

func (s *csvScan) Schema(ctx context.Context) ([]string, error) {
	s.once.Do(func() {
		f, err := os.Open(s.path)
		if err != nil {
			s.cachedErr = fmt.Errorf("scan csv: %w", err)
			return
		}
		defer f.Close()
		s.cachedCols, s.cachedErr = s.header(s.reader(f))
	})
	return s.cachedCols, s.cachedErr
}

func (s *csvScan) Collect(ctx context.Context) (*Frame, error) {
	return s.collectN(ctx, -1)
}

func (s *csvScan) collectN(ctx context.Context, n int) (*Frame, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("scan csv: %w", err)
	}
	defer f.Close()

	r := s.reader(f)
	cols, err := s.header(r)
	if err != nil {
		return nil, err
	}
	out := NewFrame(cols)
	if cols == nil {
		return out, nil
	}
	if s.opt.NoHeader {
		// the header read consumed the first data row; rewind
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("scan csv: %w", err)
		}
		r = s.reader(f)
	}

	row := make([]any, len(cols))
	for line := 0; ; line++ {
		if line%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if n >= 0 && out.NumRows() >= n {
			break
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan csv row: %w", err)
		}
		for i := range cols {
			if i >= len(rec) {
				row[i] = nil
				continue
			}
			v := rec[i]
			if !s.opt.NoTrim {
				v = strings.TrimSpace(v)
			}
			if v == "" {
				row[i] = nil
			} else {
				row[i] = v
			}
		}
		out.AppendRow(row)
	}
	return out, nil
}

// ScanNDJSON lazily reads newline-delimited JSON objects. The schema is the
// union of keys in first-seen order (each record's new keys added sorted);
// scalars keep their JSON types, nested values are re-encoded as compact
// JSON strings.
func ScanNDJSON(path string) Plan {
	return &ndjsonScan{path: path}
}

// schemaSampleLines bounds how far Schema reads; Collect still unions over
// the whole file.
const schemaSampleLines = 1000

type ndjsonScan struct {
	path string

	once       sync.Once
	cachedCols []string
	cachedErr  error
}

func (s *ndjsonScan) Schema(ctx context.Context) ([]string, error) {
	s.once.Do(func() {
		f, err := s.scan(ctx, schemaSampleLines)
		if err != nil {
			s.cachedErr = err
			return
		}
		s.cachedCols = f.Columns()
	})
	return s.cachedCols, s.cachedErr
}

func (s *ndjsonScan) Collect(ctx context.Context) (*Frame, error) {
	return s.scan(ctx, -1)
}

func (s *ndjsonScan) collectN(ctx context.Context, n int) (*Frame, error) {
	return s.scan(ctx, n)
}

func (s *ndjsonScan) scan(ctx context.Context, n int) (*Frame, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("scan ndjson: %w", err)
	}
	defer f.Close()

	var cols []string
	seen := make(map[string]struct{})
	var records []map[string]any

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if line%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if n >= 0 && len(records) >= n {
			break
		}
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("scan ndjson line %d: %w", line, err)
		}
		newKeys := make([]string, 0, len(rec))
		for k := range rec {
			if _, ok := seen[k]; !ok {
				newKeys = append(newKeys, k)
			}
		}
		sort.Strings(newKeys)
		for _, k := range newKeys {
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan ndjson: %w", err)
	}

	out := NewFrame(cols)
	row := make([]any, len(cols))
	for _, rec := range records {
		for i, c := range cols {
			row[i] = normalizeJSONValue(rec[c])
		}
		out.AppendRow(row)
	}
	return out, nil
}

func normalizeJSONValue(v any) any {
	switch v.(type) {
	case nil, string, float64, bool:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
