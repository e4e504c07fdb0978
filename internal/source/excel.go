package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"dataprep/internal/dataframe"
	"dataprep/internal/filter"
	"dataprep/internal/staging"
)

// workbookPlans stages each selected sheet as a UTF-8 CSV and scans it.
// Sheet selection: sheet filters beat an explicit sheet name beats the first
// sheet.
func (l *Loader) workbookPlans(ctx context.Context, path string, p FileParams) ([]dataframe.Plan, error) {
	meta := l.Workbooks.Get(path)
	if !meta.Valid {
		return nil, fmt.Errorf("unreadable workbook")
	}

	var sheets []string
	switch {
	case len(p.SheetFilters) > 0:
		sheets = filter.FilterNames(meta.SheetNames, p.SheetFilters)
		if len(sheets) == 0 {
			return nil, fmt.Errorf("no sheets matched filters")
		}
	case p.Sheet != "":
		found := false
		for _, s := range meta.SheetNames {
			if s == p.Sheet {
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("sheet %q not in workbook", p.Sheet)
		}
		sheets = []string{p.Sheet}
	default:
		sheets = meta.SheetNames[:1]
	}

	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	plans := make([]dataframe.Plan, 0, len(sheets))
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		staged, err := l.stageSheetCSV(wb, path, sheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		plans = append(plans, dataframe.ScanCSV(staged, dataframe.ScanOptions{}))
	}
	return plans, nil
}

func (l *Loader) stageSheetCSV(wb *excelize.File, path, sheet string) (string, error) {
	dir, err := l.Staging.CreateUniqueDir(filepath.Base(path) + "_" + sheet)
	if err != nil {
		return "", err
	}
	staged := filepath.Join(dir, staging.SanitizeName(sheet)+".csv")

	out, err := os.Create(staged)
	if err != nil {
		l.Staging.Remove(dir)
		return "", err
	}
	w := csv.NewWriter(out)

	fail := func(cause error) (string, error) {
		out.Close()
		l.Staging.Remove(dir)
		return "", cause
	}

	rows, err := wb.Rows(sheet)
	if err != nil {
		return fail(err)
	}
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			rows.Close()
			return fail(err)
		}
		if err := w.Write(cells); err != nil {
			rows.Close()
			return fail(err)
		}
	}
	if err := rows.Close(); err != nil {
		return fail(err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fail(err)
	}
	if err := out.Close(); err != nil {
		l.Staging.Remove(dir)
		return "", err
	}
	return staged, nil
}
