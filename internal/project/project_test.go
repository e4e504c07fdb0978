package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"dataprep/internal/dataframe"
	"dataprep/internal/engine"
	"dataprep/internal/steps"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	f := NewFile("monthly sales prep")
	f.Datasets = []DatasetEntry{
		{
			Alias:        "sales",
			Loader:       "file",
			LoaderParams: map[string]any{"path": "/data/sales.csv"},
			Recipe: []steps.Step{
				{ID: "s1", Type: "filter_rows", Params: map[string]any{"col": "region", "op": "eq", "value": "emea"}},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "nested", "session.json")
	if err := Save(f, path); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Meta.Version != Version {
		t.Fatalf("version = %q", got.Meta.Version)
	}
	if got.Meta.Description != "monthly sales prep" {
		t.Fatalf("description = %q", got.Meta.Description)
	}
	if len(got.Datasets) != 1 {
		t.Fatalf("datasets = %d", len(got.Datasets))
	}
	ds := got.Datasets[0]
	if ds.Alias != "sales" || ds.Loader != "file" {
		t.Fatalf("dataset = %+v", ds)
	}
	if len(ds.Recipe) != 1 || ds.Recipe[0].Type != "filter_rows" {
		t.Fatalf("recipe = %+v", ds.Recipe)
	}
	if ds.Recipe[0].Params["col"] != "region" {
		t.Fatalf("recipe params = %v", ds.Recipe[0].Params)
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("invalid JSON must error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("missing file must error")
	}
}

func TestRelativeAbsoluteConversion(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	abs := filepath.Join(base, "inputs", "a.csv")

	f := NewFile("")
	f.Datasets = []DatasetEntry{
		{
			Alias:  "a",
			Loader: "file",
			LoaderParams: map[string]any{
				"path":  abs,
				"files": []string{abs, "already/relative.csv"},
				"sheet": "Sheet1",
			},
		},
	}

	rel := ToRelative(f, base)
	if rel.Paths.Mode != PathsRelative || rel.Paths.BaseDir != base {
		t.Fatalf("path config = %+v", rel.Paths)
	}
	p := rel.Datasets[0].LoaderParams
	if p["path"] != filepath.Join("inputs", "a.csv") {
		t.Fatalf("path = %v", p["path"])
	}
	if p["sheet"] != "Sheet1" {
		t.Fatalf("non-path params must pass through, got %v", p["sheet"])
	}
	files, _ := p["files"].([]string)
	if !reflect.DeepEqual(files, []string{filepath.Join("inputs", "a.csv"), "already/relative.csv"}) {
		t.Fatalf("files = %v", files)
	}
	// original untouched
	if f.Datasets[0].LoaderParams["path"] != abs {
		t.Fatal("ToRelative mutated its input")
	}

	back, err := ResolvePaths(rel, "")
	if err != nil {
		t.Fatal(err)
	}
	if back.Paths.Mode != PathsAbsolute {
		t.Fatalf("mode = %v", back.Paths.Mode)
	}
	if back.Datasets[0].LoaderParams["path"] != abs {
		t.Fatalf("resolved path = %v", back.Datasets[0].LoaderParams["path"])
	}
}

func TestResolvePathsRequiresBase(t *testing.T) {
	t.Parallel()

	f := NewFile("")
	f.Paths = PathConfig{Mode: PathsRelative}
	if _, err := ResolvePaths(f, ""); err == nil {
		t.Fatal("relative mode without base dir must error")
	}
	if _, err := ResolvePaths(f, t.TempDir()); err != nil {
		t.Fatalf("override should satisfy base dir: %v", err)
	}
}

func TestValidateFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	present := filepath.Join(dir, "here.csv")
	if err := os.WriteFile(present, []byte("id\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewFile("")
	f.Datasets = []DatasetEntry{
		{Alias: "ok", Loader: "file", LoaderParams: map[string]any{"path": present}},
		{Alias: "gone", Loader: "file", LoaderParams: map[string]any{"path": filepath.Join(dir, "missing.csv")}},
		{Alias: "globby", Loader: "file", LoaderParams: map[string]any{"path": filepath.Join(dir, "*.csv")}},
		{Alias: "db", Loader: "sql", LoaderParams: map[string]any{"dsn": "postgres://nowhere"}},
	}

	missing := ValidateFiles(f)
	if len(missing) != 1 {
		t.Fatalf("missing = %v", missing)
	}
	if _, ok := missing["gone"]; !ok {
		t.Fatalf("missing = %v", missing)
	}
}

func newImporter(t *testing.T, run RunLoader) *Importer {
	t.Helper()
	reg := steps.NewRegistry()
	steps.RegisterBuiltins(reg)
	return &Importer{
		Engine: engine.New(reg, zerolog.Nop()),
		Run:    run,
		Log:    zerolog.Nop(),
	}
}

func fakeRun(calls *[]string) RunLoader {
	return func(_ context.Context, kind string, params map[string]any) ([]dataframe.Plan, engine.LoadMetadata, error) {
		if calls != nil {
			*calls = append(*calls, kind)
		}
		f := dataframe.NewFrame([]string{"id"})
		f.AppendRow([]any{"1"})
		return []dataframe.Plan{dataframe.FromFrame(f)},
			engine.LoadMetadata{LoaderKind: kind, LoaderParams: params},
			nil
	}
}

func TestImportReplaceAndMerge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	src := filepath.Join(dir, "a.csv")
	if err := os.WriteFile(src, []byte("id\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	im := newImporter(t, fakeRun(nil))

	// pre-existing dataset that replace mode must clear
	old := dataframe.NewFrame([]string{"x"})
	if err := im.Engine.AddDataset("stale", []dataframe.Plan{dataframe.FromFrame(old)}, engine.LoadMetadata{}); err != nil {
		t.Fatal(err)
	}

	f := NewFile("")
	f.Datasets = []DatasetEntry{
		{
			Alias:        "a",
			Loader:       "file",
			LoaderParams: map[string]any{"path": src},
			Recipe:       []steps.Step{{ID: "s1", Type: "sort_rows", Params: map[string]any{"col": "id"}}},
		},
	}

	res := im.Import(ctx, f, ModeReplace, "")
	if !res.Success() || len(res.Loaded) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := im.Engine.Names(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("names = %v", got)
	}
	if rec := im.Engine.Recipe("a"); len(rec) != 1 || rec[0].Type != "sort_rows" {
		t.Fatalf("recipe = %+v", rec)
	}

	// merge mode skips the conflicting alias
	res = im.Import(ctx, f, ModeMerge, "")
	if len(res.Skipped) != 1 || len(res.Warnings) != 1 {
		t.Fatalf("merge result = %+v", res)
	}
}

func TestImportSkipsMissingFiles(t *testing.T) {
	t.Parallel()

	var calls []string
	im := newImporter(t, fakeRun(&calls))

	f := NewFile("")
	f.Datasets = []DatasetEntry{
		{Alias: "gone", Loader: "file", LoaderParams: map[string]any{"path": filepath.Join(t.TempDir(), "absent.csv")}},
	}

	res := im.Import(context.Background(), f, ModeReplace, "")
	if !res.Success() {
		t.Fatalf("missing files are warnings, not errors: %+v", res)
	}
	if len(res.Skipped) != 1 || len(res.Warnings) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(calls) != 0 {
		t.Fatalf("loader must not run for missing files, calls = %v", calls)
	}
}

func TestImportLoaderErrorRecorded(t *testing.T) {
	t.Parallel()

	im := newImporter(t, func(context.Context, string, map[string]any) ([]dataframe.Plan, engine.LoadMetadata, error) {
		return nil, engine.LoadMetadata{}, errors.New("connection refused")
	})

	f := NewFile("")
	f.Datasets = []DatasetEntry{
		{Alias: "db", Loader: "sql", LoaderParams: map[string]any{"driver": "postgres"}},
	}

	res := im.Import(context.Background(), f, ModeReplace, "")
	if res.Success() {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Errors) != 1 || len(res.Skipped) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestExportRoundTripThroughImporter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	src := filepath.Join(dir, "a.csv")
	if err := os.WriteFile(src, []byte("id\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	im := newImporter(t, fakeRun(nil))
	frame := dataframe.NewFrame([]string{"id"})
	frame.AppendRow([]any{"1"})
	if err := im.Engine.AddDataset("a", []dataframe.Plan{dataframe.FromFrame(frame)}, engine.LoadMetadata{
		LoaderKind:   "file",
		LoaderParams: map[string]any{"path": src},
	}); err != nil {
		t.Fatal(err)
	}
	im.Engine.SetRecipe("a", []steps.Step{{ID: "s1", Type: "deduplicate", Params: map[string]any{}}})

	// derived datasets have nothing to reload from and are left out
	if err := im.Engine.AddDataset("a_snapshot", []dataframe.Plan{dataframe.FromFrame(frame)}, engine.LoadMetadata{
		LoaderKind: "derived",
	}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "session.json")
	if err := im.SaveTo(path, "", PathsRelative, dir); err != nil {
		t.Fatal(err)
	}

	im2 := newImporter(t, fakeRun(nil))
	res, err := im2.ImportFile(ctx, path, ModeReplace)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success() || !reflect.DeepEqual(res.Loaded, []string{"a"}) {
		t.Fatalf("result = %+v", res)
	}
	if rec := im2.Engine.Recipe("a"); len(rec) != 1 || rec[0].Type != "deduplicate" {
		t.Fatalf("recipe = %+v", rec)
	}
}
