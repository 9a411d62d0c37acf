package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// AddressNotInformed is the address value when neither address_1 nor street is set.
const AddressNotInformed = "address not informed"

// rawAddressColumns are collapsed into ColumnAddress and dropped from silver.
var rawAddressColumns = []string{ColumnAddress1, ColumnAddress2, ColumnAddress3, ColumnStreet}

// addressCase classifies a (address_1, street) pair. The cases are mutually
// exclusive and checked in declaration order.
type addressCase int

const (
	addressMissing    addressCase = iota // both null
	addressSame                          // both present and equal
	addressStreetOnly                    // address_1 null, street present
	addressLineOnly                      // address_1 present, street null
	addressConflict                      // both present and different
)

func classifyAddress(line, street any) addressCase {
	lineNull, streetNull := line == nil, street == nil
	switch {
	case lineNull && streetNull:
		return addressMissing
	case !lineNull && !streetNull && CellString(line) == CellString(street):
		return addressSame
	case lineNull:
		return addressStreetOnly
	case streetNull:
		return addressLineOnly
	default:
		return addressConflict
	}
}

// resolveAddress picks the silver address. A conflict keeps address_1, the
// primary address line in Open Brewery DB.
func resolveAddress(line, street any) string {
	switch classifyAddress(line, street) {
	case addressMissing:
		return AddressNotInformed
	case addressStreetOnly:
		return CellString(street)
	default:
		return CellString(line)
	}
}

// NotInformed is the fill value for a null cell in column.
func NotInformed(column string) string {
	return column + " not informed"
}

// Transform cleans a raw table into the silver shape: the address columns
// collapse into ColumnAddress, nulls are filled per column and every cell
// becomes a string. The input table is not modified.
func Transform(raw *Table) (*Table, error) {
	if raw.Empty() {
		return nil, ErrEmptyTable
	}
	if err := raw.requireColumns(rawAddressColumns...); err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(raw.Columns))
	for _, c := range raw.Columns {
		if isRawAddressColumn(c) || c == ColumnAddress {
			continue
		}
		columns = append(columns, c)
	}

	rows := make([]map[string]any, 0, len(raw.Rows))
	for _, in := range raw.Rows {
		out := make(map[string]any, len(columns)+1)
		for _, c := range columns {
			v := in[c]
			if v == nil {
				out[c] = NotInformed(c)
				continue
			}
			out[c] = CellString(v)
		}
		out[ColumnAddress] = resolveAddress(in[ColumnAddress1], in[ColumnStreet])
		rows = append(rows, out)
	}

	return &Table{
		Columns: append(columns, ColumnAddress),
		Rows:    rows,
	}, nil
}

func isRawAddressColumn(name string) bool {
	for _, c := range rawAddressColumns {
		if c == name {
			return true
		}
	}
	return false
}

// CellString renders a cell value as a string. JSON numbers keep their
// original text; arrays and objects are rendered as compact JSON.
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}
