package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMainSt = "123 Main St"
	testPineSt = "789 Pine St"
	testOakAve = "456 Oak Ave"
)

func rawAddressTable(rows ...map[string]any) *Table {
	return &Table{
		Columns: []string{ColumnAddress1, ColumnAddress2, ColumnAddress3, ColumnCity, ColumnStreet},
		Rows:    rows,
	}
}

func TestResolveAddress(t *testing.T) {
	tests := []struct {
		name     string
		line     any
		street   any
		expected string
		kind     addressCase
	}{
		{"both null", nil, nil, AddressNotInformed, addressMissing},
		{"both equal", testMainSt, testMainSt, testMainSt, addressSame},
		{"street only", nil, testPineSt, testPineSt, addressStreetOnly},
		{"address_1 only", testOakAve, nil, testOakAve, addressLineOnly},
		{"both present and different", testOakAve, testPineSt, testOakAve, addressConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, classifyAddress(tt.line, tt.street))
			assert.Equal(t, tt.expected, resolveAddress(tt.line, tt.street))
		})
	}
}

func TestTransform(t *testing.T) {
	raw := rawAddressTable(
		map[string]any{ColumnAddress1: testMainSt, ColumnStreet: testMainSt, ColumnCity: "New York"},
		map[string]any{ColumnAddress1: nil, ColumnStreet: testPineSt, ColumnCity: nil},
		map[string]any{ColumnCity: "Chicago"},
		map[string]any{ColumnAddress1: testOakAve, ColumnStreet: nil},
	)

	silver, err := Transform(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{ColumnCity, ColumnAddress}, silver.Columns)
	require.Len(t, silver.Rows, 4)

	addresses := make([]any, 0, len(silver.Rows))
	for _, row := range silver.Rows {
		addresses = append(addresses, row[ColumnAddress])
		for _, c := range rawAddressColumns {
			assert.NotContains(t, row, c)
		}
		for _, c := range silver.Columns {
			require.NotNil(t, row[c], "column %s", c)
			assert.IsType(t, "", row[c])
		}
	}
	assert.Equal(t, []any{testMainSt, testPineSt, AddressNotInformed, testOakAve}, addresses)

	assert.Equal(t, "New York", silver.Rows[0][ColumnCity])
	assert.Equal(t, "city not informed", silver.Rows[1][ColumnCity])
	assert.Equal(t, "Chicago", silver.Rows[2][ColumnCity])
	assert.Equal(t, "city not informed", silver.Rows[3][ColumnCity])
}

func TestTransform_CastsToString(t *testing.T) {
	raw := &Table{
		Columns: []string{ColumnAddress1, ColumnAddress2, ColumnAddress3, ColumnStreet, "latitude", "active", "tags", "score"},
		Rows: []map[string]any{{
			"latitude": json.Number("39.7392"),
			"active":   true,
			"tags":     []any{"ipa", "stout"},
			"score":    4.5,
		}},
	}

	silver, err := Transform(raw)
	require.NoError(t, err)

	row := silver.Rows[0]
	assert.Equal(t, "39.7392", row["latitude"])
	assert.Equal(t, "true", row["active"])
	assert.Equal(t, `["ipa","stout"]`, row["tags"])
	assert.Equal(t, "4.5", row["score"])
	assert.Equal(t, AddressNotInformed, row[ColumnAddress])
}

func TestTransform_ReplacesExistingAddressColumn(t *testing.T) {
	raw := &Table{
		Columns: []string{ColumnAddress, ColumnAddress1, ColumnAddress2, ColumnAddress3, ColumnStreet},
		Rows:    []map[string]any{{ColumnAddress: "stale", ColumnStreet: testPineSt}},
	}

	silver, err := Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{ColumnAddress}, silver.Columns)
	assert.Equal(t, testPineSt, silver.Rows[0][ColumnAddress])
}

func TestTransform_DoesNotModifyInput(t *testing.T) {
	raw := rawAddressTable(map[string]any{ColumnAddress1: testMainSt})

	_, err := Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{ColumnAddress1, ColumnAddress2, ColumnAddress3, ColumnCity, ColumnStreet}, raw.Columns)
	assert.Equal(t, map[string]any{ColumnAddress1: testMainSt}, raw.Rows[0])
}

func TestTransform_EmptyTable(t *testing.T) {
	tests := []struct {
		name  string
		table *Table
	}{
		{"nil", nil},
		{"no columns", &Table{}},
		{"no rows", rawAddressTable()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			silver, err := Transform(tt.table)
			require.ErrorIs(t, err, ErrEmptyTable)
			assert.Nil(t, silver)
		})
	}
}

func TestTransform_MissingAddressColumn(t *testing.T) {
	raw := &Table{
		Columns: []string{ColumnAddress1, ColumnAddress2, ColumnStreet},
		Rows:    []map[string]any{{ColumnAddress1: testMainSt}},
	}

	silver, err := Transform(raw)
	require.Error(t, err)
	assert.Nil(t, silver)

	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, ColumnAddress3, missing.Column)
}

func TestCellString(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{"nil", nil, ""},
		{"string", "micro", "micro"},
		{"json number", json.Number("-104.9903"), "-104.9903"},
		{"bool", false, "false"},
		{"float", 1.25, "1.25"},
		{"int64", int64(42), "42"},
		{"object", map[string]any{"a": json.Number("1")}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CellString(tt.value))
		})
	}
}
