// Package workbook extracts sheet and table names from spreadsheet files in
// a single structural pass and memoizes the result per file.
package workbook

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"dataprep/internal/filter"
)

// Metadata describes the structure of one workbook. Valid is false when the
// file could not be read as a workbook; callers then get the conventional
// single-sheet default so downstream UI code always has something to show.
type Metadata struct {
	SheetNames []string `json:"sheet_names"`
	TableNames []string `json:"table_names"`
	Valid      bool     `json:"valid"`
}

func fallbackMetadata() Metadata {
	return Metadata{SheetNames: []string{"Sheet1"}, TableNames: nil, Valid: false}
}

// open is a seam for tests.
type opener func(path string) (*excelize.File, error)

// Cache memoizes workbook metadata by absolute path.
type Cache struct {
	mu     sync.Mutex
	byPath map[string]Metadata
	open   opener

	Log zerolog.Logger
}

func NewCache() *Cache {
	return &Cache{
		byPath: make(map[string]Metadata),
		open: func(path string) (*excelize.File, error) {
			return excelize.OpenFile(path)
		},
		Log:    zerolog.Nop(),
	}
}

// Get returns metadata for path. It never fails: non-workbook files and read
// errors degrade to the fallback. Results, including failures, are cached.
func (c *Cache) Get(path string) Metadata {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.byPath[abs]; ok {
		return m
	}

	m := c.read(abs)
	c.byPath[abs] = m
	return m
}

// Invalidate drops the cached entry for path, if any.
func (c *Cache) Invalidate(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	c.mu.Lock()
	delete(c.byPath, abs)
	c.mu.Unlock()
}

func (c *Cache) read(path string) Metadata {
	if !IsWorkbook(path) {
		return fallbackMetadata()
	}

	f, err := c.open(path)
	if err != nil {
		c.Log.Warn().Err(err).Str("path", path).Msg("workbook open failed, using fallback metadata")
		return fallbackMetadata()
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fallbackMetadata()
	}

	var tables []string
	for _, sheet := range sheets {
		tbls, err := f.GetTables(sheet)
		if err != nil {
			continue
		}
		for _, tbl := range tbls {
			tables = append(tables, tbl.Name)
		}
	}
	sort.Strings(tables)

	return Metadata{SheetNames: sheets, TableNames: tables, Valid: true}
}

// Sheets returns the workbook's sheet names narrowed by filters; with no
// filters the full list comes back.
func (c *Cache) Sheets(path string, filters []filter.Filter) []string {
	return filter.FilterNames(c.Get(path).SheetNames, filters)
}

// Tables returns the workbook's table names narrowed by filters.
func (c *Cache) Tables(path string, filters []filter.Filter) []string {
	return filter.FilterNames(c.Get(path).TableNames, filters)
}

// IsWorkbook reports whether the extension marks a spreadsheet file.
func IsWorkbook(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return true
	}
	return false
}
