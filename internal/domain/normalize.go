package domain

import "sort"

// Normalize flattens records into a Table with one row per record. Nested
// objects become dotted column names ("location.lat"); arrays and scalars are
// kept as cell values. Columns are sorted by name because JSON object key
// order does not survive decoding.
func Normalize(records []Record) *Table {
	t := &Table{Rows: make([]map[string]any, 0, len(records))}
	seen := make(map[string]struct{})

	for _, rec := range records {
		row := make(map[string]any, len(rec))
		flattenRecord("", rec, row)
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				t.Columns = append(t.Columns, k)
			}
		}
		t.Rows = append(t.Rows, row)
	}

	sort.Strings(t.Columns)
	return t
}

func flattenRecord(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		flattenValue(key, v, out)
	}
}

func flattenValue(key string, v any, out map[string]any) {
	switch t := v.(type) {
	case map[string]any:
		flattenRecord(key, t, out)
	case Record:
		flattenRecord(key, t, out)
	default:
		out[key] = v
	}
}
