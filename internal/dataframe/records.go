package dataframe

import "sort"

// FromRecords builds a plan from decoded JSON-style records. Columns are the
// union of keys in first-seen order, each record's new keys added sorted,
// same as the NDJSON scan.
func FromRecords(records []map[string]any) Plan {
	var cols []string
	seen := make(map[string]struct{})
	for _, rec := range records {
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
	}

	f := NewFrame(cols)
	row := make([]any, len(cols))
	for _, rec := range records {
		for i, c := range cols {
			row[i] = normalizeJSONValue(rec[c])
		}
		f.AppendRow(row)
	}
	return FromFrame(f)
}
