package dataframe

import (
	"context"
	"errors"
	"testing"
)

func testFrame() *Frame {
	f := NewFrame([]string{"id", "name", "qty"})
	f.AppendRow([]any{"1", "widget", "10"})
	f.AppendRow([]any{"2", "gadget", "2"})
	f.AppendRow([]any{"3", "widget", nil})
	return f
}

func TestSelect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f, err := Select(FromFrame(testFrame()), []string{"qty", "id"}).Collect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cols := f.Columns(); cols[0] != "qty" || cols[1] != "id" {
		t.Fatalf("select order = %v", cols)
	}
	if v, _ := f.Value(0, "qty"); v != "10" {
		t.Fatalf("qty = %v", v)
	}

	_, err = Select(FromFrame(testFrame()), []string{"nope"}).Collect(ctx)
	var uc *UnknownColumnError
	if !errors.As(err, &uc) || uc.Column != "nope" {
		t.Fatalf("want UnknownColumnError{nope}, got %v", err)
	}
}

func TestDropIgnoresMissing(t *testing.T) {
	t.Parallel()

	f, err := Drop(FromFrame(testFrame()), []string{"name", "ghost"}).Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cols := f.Columns(); len(cols) != 2 || cols[0] != "id" || cols[1] != "qty" {
		t.Fatalf("drop = %v", cols)
	}
}

func TestRename(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f, err := Rename(FromFrame(testFrame()), "name", "product").Collect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !f.HasColumn("product") || f.HasColumn("name") {
		t.Fatalf("rename result = %v", f.Columns())
	}

	if _, err := Rename(FromFrame(testFrame()), "ghost", "x").Collect(ctx); err == nil {
		t.Fatal("renaming a missing column must error")
	}
	if _, err := Rename(FromFrame(testFrame()), "name", "id").Collect(ctx); err == nil {
		t.Fatal("renaming onto an existing column must error")
	}
}

func TestWithColumn(t *testing.T) {
	t.Parallel()

	plan := WithColumn(FromFrame(testFrame()), "label", func(r RowView) (any, error) {
		return ValueString(r.Get("name")) + "!", nil
	})
	f, err := plan.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := f.Value(1, "label"); v != "gadget!" {
		t.Fatalf("label = %v", v)
	}

	// overwrite keeps position
	f, err = WithColumn(FromFrame(testFrame()), "qty", func(RowView) (any, error) {
		return "0", nil
	}).Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cols := f.Columns(); len(cols) != 3 || cols[2] != "qty" {
		t.Fatalf("overwrite changed schema: %v", cols)
	}
	if v, _ := f.Value(0, "qty"); v != "0" {
		t.Fatalf("qty = %v", v)
	}
}

func TestFilterRows(t *testing.T) {
	t.Parallel()

	f, err := FilterRows(FromFrame(testFrame()), func(r RowView) (bool, error) {
		return r.Get("name") == "widget", nil
	}).Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", f.NumRows())
	}
}

func TestSortNumericNullsLast(t *testing.T) {
	t.Parallel()

	f, err := Sort(FromFrame(testFrame()), "qty", false).Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// "2" < "10" numerically; null last
	if v, _ := f.Value(0, "qty"); v != "2" {
		t.Fatalf("first qty = %v, want 2 (numeric order)", v)
	}
	if v, _ := f.Value(2, "qty"); v != nil {
		t.Fatalf("null must sort last, got %v", v)
	}

	f, err = Sort(FromFrame(testFrame()), "qty", true).Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := f.Value(0, "qty"); v != "10" {
		t.Fatalf("desc first qty = %v", v)
	}
	if v, _ := f.Value(2, "qty"); v != nil {
		t.Fatalf("null sorts last even descending, got %v", v)
	}
}

func TestDistinct(t *testing.T) {
	t.Parallel()

	f, err := Distinct(FromFrame(testFrame()), []string{"name"}).Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.NumRows() != 2 {
		t.Fatalf("distinct rows = %d, want 2", f.NumRows())
	}
	// first occurrence wins
	if v, _ := f.Value(0, "id"); v != "1" {
		t.Fatalf("first widget row should survive, got id=%v", v)
	}
}

func TestSlice(t *testing.T) {
	t.Parallel()

	f, err := Slice(FromFrame(testFrame()), 1, 5).Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.NumRows() != 2 {
		t.Fatalf("slice rows = %d, want clamped 2", f.NumRows())
	}
	if v, _ := f.Value(0, "id"); v != "2" {
		t.Fatalf("slice offset wrong, got id=%v", v)
	}
}

func TestJoin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	right := NewFrame([]string{"id", "name"})
	right.AppendRow([]any{"1", "electronics"})
	right.AppendRow([]any{"9", "toys"})

	inner, err := Join(FromFrame(testFrame()), FromFrame(right), []string{"id"}, []string{"id"}, JoinInner).Collect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if inner.NumRows() != 1 {
		t.Fatalf("inner rows = %d, want 1", inner.NumRows())
	}
	// right "name" clashes with left "name"
	if v, _ := inner.Value(0, "name_right"); v != "electronics" {
		t.Fatalf("clashing column must be suffixed, got %v (%v)", v, inner.Columns())
	}

	left, err := Join(FromFrame(testFrame()), FromFrame(right), []string{"id"}, []string{"id"}, JoinLeft).Collect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if left.NumRows() != 3 {
		t.Fatalf("left rows = %d, want 3", left.NumRows())
	}
	if v, _ := left.Value(1, "name_right"); v != nil {
		t.Fatalf("unmatched left row must carry nulls, got %v", v)
	}

	if _, err := Join(FromFrame(testFrame()), FromFrame(right), []string{"id"}, []string{"id"}, "outer").Collect(ctx); err == nil {
		t.Fatal("unsupported join kind must error")
	}
}

func TestConcatDiagonal(t *testing.T) {
	t.Parallel()

	a := NewFrame([]string{"id", "name"})
	a.AppendRow([]any{"1", "widget"})
	b := NewFrame([]string{"id", "city"})
	b.AppendRow([]any{"2", "Brno"})

	f, err := Concat([]Plan{FromFrame(a), FromFrame(b)}).Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cols := f.Columns(); len(cols) != 3 || cols[0] != "id" || cols[1] != "name" || cols[2] != "city" {
		t.Fatalf("union schema = %v", cols)
	}
	if f.NumRows() != 2 {
		t.Fatalf("rows = %d", f.NumRows())
	}
	if v, _ := f.Value(0, "city"); v != nil {
		t.Fatalf("missing cell must be null, got %v", v)
	}
	if v, _ := f.Value(1, "city"); v != "Brno" {
		t.Fatalf("second source city = %v", v)
	}

	// limit pushes into members
	lim, err := Limit(Concat([]Plan{FromFrame(a), FromFrame(b)}), 1).Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if lim.NumRows() != 1 {
		t.Fatalf("limited concat rows = %d", lim.NumRows())
	}
}
