package workbook

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"dataprep/internal/filter"
)

func TestGetFallbackForNonWorkbook(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(p, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewCache().Get(p)
	if m.Valid {
		t.Fatal("csv file must not be valid workbook metadata")
	}
	if len(m.SheetNames) != 1 || m.SheetNames[0] != "Sheet1" {
		t.Fatalf("fallback sheets = %v, want [Sheet1]", m.SheetNames)
	}
	if len(m.TableNames) != 0 {
		t.Fatalf("fallback tables = %v, want empty", m.TableNames)
	}
}

func TestGetFallbackForCorruptWorkbook(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "broken.xlsx")
	if err := os.WriteFile(p, []byte("not a zip archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewCache().Get(p)
	if m.Valid {
		t.Fatal("corrupt workbook must degrade to fallback")
	}
	if len(m.SheetNames) != 1 || m.SheetNames[0] != "Sheet1" {
		t.Fatalf("fallback sheets = %v", m.SheetNames)
	}
}

func TestGetRealWorkbook(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "book.xlsx")
	f := excelize.NewFile()
	if _, err := f.NewSheet("Summary"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "A1", "id"); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAs(p); err != nil {
		t.Fatal(err)
	}
	f.Close()

	m := NewCache().Get(p)
	if !m.Valid {
		t.Fatal("real workbook must be valid")
	}
	if len(m.SheetNames) != 2 {
		t.Fatalf("sheets = %v, want [Sheet1 Summary]", m.SheetNames)
	}
}

func TestGetMemoizes(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "book.xlsx")
	f := excelize.NewFile()
	if err := f.SaveAs(p); err != nil {
		t.Fatal(err)
	}
	f.Close()

	c := NewCache()
	var opens int
	c.open = func(path string) (*excelize.File, error) {
		opens++
		return excelize.OpenFile(path)
	}

	c.Get(p)
	c.Get(p)
	c.Get(p)
	if opens != 1 {
		t.Fatalf("workbook opened %d times, want memoized single open", opens)
	}

	c.Invalidate(p)
	c.Get(p)
	if opens != 2 {
		t.Fatalf("invalidate should force a re-read, opens = %d", opens)
	}
}

func TestGetCachesFailures(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "gone.xlsx")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCache()
	var opens int
	c.open = func(string) (*excelize.File, error) {
		opens++
		return nil, errors.New("boom")
	}

	c.Get(p)
	c.Get(p)
	if opens != 1 {
		t.Fatalf("failed reads must be cached too, opens = %d", opens)
	}
}

func TestSheetsFiltered(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "book.xlsx")
	f := excelize.NewFile()
	for _, s := range []string{"Summary", "Raw2023", "Raw2024"} {
		if _, err := f.NewSheet(s); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(p); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got := NewCache().Sheets(p, []filter.Filter{{Kind: filter.KindGlob, Value: "raw*"}})
	if len(got) != 2 || got[0] != "Raw2023" || got[1] != "Raw2024" {
		t.Fatalf("filtered sheets = %v, want [Raw2023 Raw2024]", got)
	}
}

func TestIsWorkbook(t *testing.T) {
	t.Parallel()

	if !IsWorkbook("a/b/Report.XLSX") {
		t.Fatal("xlsx is a workbook regardless of case")
	}
	if IsWorkbook("a/b/report.csv") {
		t.Fatal("csv is not a workbook")
	}
}
