package domain

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

var groupColumns = []string{ColumnCountry, ColumnState, ColumnCity, ColumnBreweryType}

// Aggregate counts silver rows per (country, state, city, brewery_type).
// Rows with a null grouping cell are not counted. Results are sorted by the
// grouping columns so repeated runs write identical files.
func Aggregate(silver *Table) ([]LocationCount, error) {
	if silver.Empty() {
		return nil, ErrEmptyTable
	}
	if err := silver.requireColumns(groupColumns...); err != nil {
		return nil, err
	}

	type groupKey struct {
		country, state, city, breweryType string
	}

	counts := make(map[groupKey]int64)
	for _, row := range silver.Rows {
		country, state, city, breweryType := row[ColumnCountry], row[ColumnState], row[ColumnCity], row[ColumnBreweryType]
		if country == nil || state == nil || city == nil || breweryType == nil {
			continue
		}
		counts[groupKey{
			country:     CellString(country),
			state:       CellString(state),
			city:        CellString(city),
			breweryType: CellString(breweryType),
		}]++
	}

	out := make([]LocationCount, 0, len(counts))
	for k, n := range counts {
		if n <= 0 {
			continue
		}
		out = append(out, LocationCount{
			Country:     k.country,
			State:       k.state,
			City:        k.city,
			BreweryType: k.breweryType,
			Total:       n,
		})
	}

	slices.SortFunc(out, compareLocation)
	return out, nil
}

func compareLocation(a, b LocationCount) int {
	return cmp.Or(
		cmp.Compare(a.Country, b.Country),
		cmp.Compare(a.State, b.State),
		cmp.Compare(a.City, b.City),
		cmp.Compare(a.BreweryType, b.BreweryType),
	)
}

// CountsTable renders gold counts as a Table for the columnar writer.
func CountsTable(counts []LocationCount) *Table {
	t := &Table{
		Columns: []string{ColumnCountry, ColumnState, ColumnCity, ColumnBreweryType, ColumnTotal},
		Rows:    make([]map[string]any, 0, len(counts)),
	}
	for _, c := range counts {
		t.Rows = append(t.Rows, map[string]any{
			ColumnCountry:     c.Country,
			ColumnState:       c.State,
			ColumnCity:        c.City,
			ColumnBreweryType: c.BreweryType,
			ColumnTotal:       c.Total,
		})
	}
	return t
}

// CountsFromTable parses a gold Table back into counts.
func CountsFromTable(gold *Table) ([]LocationCount, error) {
	if gold == nil {
		return nil, ErrEmptyTable
	}
	if err := gold.requireColumns(append(slices.Clone(groupColumns), ColumnTotal)...); err != nil {
		return nil, err
	}

	out := make([]LocationCount, 0, len(gold.Rows))
	for i, row := range gold.Rows {
		total, err := parseCount(row[ColumnTotal])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, LocationCount{
			Country:     CellString(row[ColumnCountry]),
			State:       CellString(row[ColumnState]),
			City:        CellString(row[ColumnCity]),
			BreweryType: CellString(row[ColumnBreweryType]),
			Total:       total,
		})
	}
	slices.SortFunc(out, compareLocation)
	return out, nil
}

func parseCount(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("invalid %s value %v (%T)", ColumnTotal, v, v)
	}
}
