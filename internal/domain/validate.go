package domain

import (
	"errors"
	"fmt"
)

// ValidateLayers checks that a gold table is a faithful aggregate of a silver
// table: silver has no null cells, every gold count is positive and the gold
// groups match a fresh aggregation of silver exactly. All problems found are
// joined into the returned error.
func ValidateLayers(silver, gold *Table) error {
	if silver.Empty() {
		return fmt.Errorf("silver: %w", ErrEmptyTable)
	}

	var errs []error
	for i, row := range silver.Rows {
		for _, c := range silver.Columns {
			if row[c] == nil {
				errs = append(errs, fmt.Errorf("silver row %d: null cell in column %q", i, c))
			}
		}
	}

	expected, err := Aggregate(silver)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("aggregate silver: %w", err))...)
	}
	actual, err := CountsFromTable(gold)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("gold: %w", err))...)
	}

	want := make(map[string]int64, len(expected))
	for _, c := range expected {
		want[c.Key()] = c.Total
	}

	var total int64
	seen := make(map[string]struct{}, len(actual))
	for _, c := range actual {
		key := c.Key()
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("gold group %q appears more than once", key))
		}
		seen[key] = struct{}{}

		if c.Total <= 0 {
			errs = append(errs, fmt.Errorf("gold group %q has non-positive count %d", key, c.Total))
		}
		total += c.Total

		n, ok := want[key]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("gold group %q not present in silver", key))
		case n != c.Total:
			errs = append(errs, fmt.Errorf("gold group %q count %d, silver has %d", key, c.Total, n))
		}
	}

	for key := range want {
		if _, ok := seen[key]; !ok {
			errs = append(errs, fmt.Errorf("silver group %q missing from gold", key))
		}
	}

	if total != int64(len(silver.Rows)) {
		errs = append(errs, fmt.Errorf("gold counts sum to %d, silver has %d rows", total, len(silver.Rows)))
	}

	return errors.Join(errs...)
}
