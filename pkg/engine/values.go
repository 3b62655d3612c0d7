package engine

import (
	"fmt"
	"strconv"
)

// Value is a single ledger cell. Stores hand back JSON-decoded values, so
// numbers read from a ledger arrive as float64.
type Value = any

// Table is a ledger table as read back from a store. Row 0 of the ledger is
// the header; Rows holds the data rows that follow it.
type Table struct {
	Name   string
	Header []string
	Rows   [][]Value
}

// Column returns the index of a header column, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Get returns the cell at data row i under the named column.
func (t *Table) Get(i int, column string) (Value, bool) {
	if i < 0 || i >= len(t.Rows) {
		return nil, false
	}
	col := t.Column(column)
	if col < 0 || col >= len(t.Rows[i]) {
		return nil, false
	}
	return t.Rows[i][col], true
}

// AsString renders a cell as a string.
func AsString(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// AsFloat converts a cell to float64.
func AsFloat(v Value) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

// AsInt converts a cell to int.
func AsInt(v Value) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case string:
		return strconv.Atoi(x)
	default:
		f, err := AsFloat(v)
		if err != nil {
			return 0, err
		}
		return int(f), nil
	}
}

// AsInt64 converts a cell to int64. Seeds are stored as strings so they
// survive JSON round trips without float rounding.
func AsInt64(v Value) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		f, err := AsFloat(v)
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	}
}

// PadRows returns a copy of rows where every row has the width of the widest one.
func PadRows(rows [][]Value) [][]Value {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	out := make([][]Value, len(rows))
	for i, row := range rows {
		padded := make([]Value, width)
		copy(padded, row)
		for j := len(row); j < width; j++ {
			padded[j] = ""
		}
		out[i] = padded
	}
	return out
}
