package filter

import "testing"

func TestMatchPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		f    Filter
		path string
		want bool
	}{
		{"glob filename match", Filter{Kind: KindGlob, Value: "*.csv"}, "data/jan.csv", true},
		{"glob does not anchor on extension inside name", Filter{Kind: KindGlob, Value: "*.csv"}, "data/jan.CSV.bak", false},
		{"glob case-insensitive", Filter{Kind: KindGlob, Value: "*.CSV"}, "data/jan.csv", true},
		{"glob doublestar on path", Filter{Kind: KindGlob, Value: "**/raw/*.csv", Target: TargetPath}, "in/raw/a.csv", true},
		{"glob invalid pattern", Filter{Kind: KindGlob, Value: "[", Target: TargetFilename}, "a.csv", false},
		{"exact is case-sensitive", Filter{Kind: KindExact, Value: "Report.csv"}, "dir/report.csv", false},
		{"exact match", Filter{Kind: KindExact, Value: "report.csv"}, "dir/report.csv", true},
		{"is_not case-sensitive", Filter{Kind: KindIsNot, Value: "report.csv"}, "dir/Report.csv", true},
		{"is_not excludes exact name", Filter{Kind: KindIsNot, Value: "report.csv"}, "dir/report.csv", false},
		{"contains case-insensitive", Filter{Kind: KindContains, Value: "JAN"}, "data/jan_sales.csv", true},
		{"contains on filename ignores dirs", Filter{Kind: KindContains, Value: "data"}, "data/other.csv", false},
		{"contains on path sees dirs", Filter{Kind: KindContains, Value: "data", Target: TargetPath}, "data/other.csv", true},
		{"not_contains", Filter{Kind: KindNotContains, Value: "tmp"}, "a_tmp_file.csv", false},
		{"regex search semantics", Filter{Kind: KindRegex, Value: `\d{4}`}, "sales_2024.csv", true},
		{"regex case-insensitive", Filter{Kind: KindRegex, Value: "SALES"}, "sales_2024.csv", true},
		{"regex invalid never errors", Filter{Kind: KindRegex, Value: "("}, "sales.csv", false},
		{"unknown kind matches nothing", Filter{Kind: "fuzzy", Value: "x"}, "x", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.f.MatchPath(tc.path); got != tc.want {
				t.Fatalf("MatchPath(%q, %+v) = %v, want %v", tc.path, tc.f, got, tc.want)
			}
		})
	}
}

func TestMatchAllConjunction(t *testing.T) {
	t.Parallel()

	filters := []Filter{
		{Kind: KindGlob, Value: "*.csv"},
		{Kind: KindContains, Value: "jan"},
	}

	if !MatchAll("data/jan.csv", filters) {
		t.Fatal("path satisfying both filters should match")
	}
	if MatchAll("data/feb.csv", filters) {
		t.Fatal("path failing one filter must not match")
	}
	if MatchAll("data/jan.txt", filters) {
		t.Fatal("path failing the other filter must not match")
	}
	if !MatchAll("anything", nil) {
		t.Fatal("empty filter list matches everything")
	}
}

func TestFilterNames(t *testing.T) {
	t.Parallel()

	names := []string{"Sheet1", "Summary", "raw_data", "Sheet2"}
	got := FilterNames(names, []Filter{{Kind: KindGlob, Value: "sheet*"}})
	if len(got) != 2 || got[0] != "Sheet1" || got[1] != "Sheet2" {
		t.Fatalf("FilterNames = %v, want [Sheet1 Sheet2]", got)
	}

	all := FilterNames(names, nil)
	if len(all) != len(names) {
		t.Fatalf("no filters should keep all names, got %v", all)
	}
}
