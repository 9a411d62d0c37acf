package domain

import (
	"errors"
	"fmt"
)

// Column names used by the silver and gold layers.
const (
	ColumnAddress     = "address"
	ColumnAddress1    = "address_1"
	ColumnAddress2    = "address_2"
	ColumnAddress3    = "address_3"
	ColumnStreet      = "street"
	ColumnCountry     = "country"
	ColumnState       = "state"
	ColumnCity        = "city"
	ColumnBreweryType = "brewery_type"
	ColumnTotal       = "total_breweries_in_location"
)

// ErrEmptyTable is returned when a stage receives a table with no rows or no columns.
var ErrEmptyTable = errors.New("empty table")

// MissingColumnError reports a column a stage needs but the table lacks.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column %q", e.Column)
}

// Record is one brewery object exactly as the API returned it.
type Record map[string]any

// Table is a column-ordered set of rows. A missing key or a nil value is a
// null cell.
type Table struct {
	Columns []string
	Rows    []map[string]any
}

// Empty reports whether the table is nil or has no rows or no columns.
func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0 || len(t.Columns) == 0
}

// HasColumn reports whether name is one of the table's columns.
func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

func (t *Table) requireColumns(names ...string) error {
	for _, name := range names {
		if !t.HasColumn(name) {
			return &MissingColumnError{Column: name}
		}
	}
	return nil
}

// LocationCount is one gold-layer row: how many breweries of a type exist in
// a location.
type LocationCount struct {
	Country     string `json:"country"`
	State       string `json:"state"`
	City        string `json:"city"`
	BreweryType string `json:"brewery_type"`
	Total       int64  `json:"total_breweries_in_location"`
}

// Key identifies the group a count belongs to.
func (c LocationCount) Key() string {
	return c.Country + "|" + c.State + "|" + c.City + "|" + c.BreweryType
}
