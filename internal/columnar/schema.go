// Package columnar provides the in-memory columnar model the SST codec
// operates on: typed schemas, arrays backed by flat buffers, and record
// batches.
//
// Buffer layouts are fixed so the hybrid decoder can do offset arithmetic
// directly on them: values are little-endian, variable-length arrays carry
// an int32 offset buffer with len+1 entries, and null bitmaps are LSB-first
// with one bit per row (nil bitmap means all rows valid).
package columnar

import (
	"fmt"
)

// DataType identifies the physical type of a column.
type DataType uint8

const (
	// TypeInvalid is the zero value and never valid in a schema.
	TypeInvalid DataType = iota
	// TypeUint64 is an unsigned 64-bit integer (the tsid type).
	TypeUint64
	// TypeInt64 is a signed 64-bit integer.
	TypeInt64
	// TypeInt32 is a signed 32-bit integer.
	TypeInt32
	// TypeFloat64 is a 64-bit IEEE float.
	TypeFloat64
	// TypeTimestamp is a millisecond timestamp stored as int64.
	TypeTimestamp
	// TypeString is variable-length UTF-8 bytes.
	TypeString
	// TypeList is a variable-length list of a fixed element type.
	TypeList
)

// String returns the type name.
func (t DataType) String() string {
	switch t {
	case TypeUint64:
		return "uint64"
	case TypeInt64:
		return "int64"
	case TypeInt32:
		return "int32"
	case TypeFloat64:
		return "float64"
	case TypeTimestamp:
		return "timestamp"
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(t))
	}
}

// FixedSize returns the per-value byte size for fixed-size types, or 0 for
// variable-length types (string, list).
func (t DataType) FixedSize() int {
	switch t {
	case TypeUint64, TypeInt64, TypeFloat64, TypeTimestamp:
		return 8
	case TypeInt32:
		return 4
	default:
		return 0
	}
}

// ColumnSchema describes a single column.
type ColumnSchema struct {
	Name string
	Type DataType
	// Elem is the element type when Type is TypeList.
	Elem DataType
	// Collapsible marks columns whose per-row values vary within a series
	// and are packed as lists in the hybrid layout.
	Collapsible bool
}

// Schema is an ordered set of columns, optionally designating one column as
// the series id.
type Schema struct {
	columns []ColumnSchema
	tsidIdx int
}

// NewSchema creates a schema. tsidIdx is the index of the series-id column,
// or -1 when the schema has none.
func NewSchema(columns []ColumnSchema, tsidIdx int) (*Schema, error) {
	if tsidIdx >= len(columns) {
		return nil, fmt.Errorf("columnar: tsid index %d out of range (%d columns)", tsidIdx, len(columns))
	}
	if tsidIdx < 0 {
		tsidIdx = -1
	}
	return &Schema{columns: columns, tsidIdx: tsidIdx}, nil
}

// NumColumns returns the number of columns.
func (s *Schema) NumColumns() int {
	return len(s.columns)
}

// Column returns the i-th column schema.
func (s *Schema) Column(i int) ColumnSchema {
	return s.columns[i]
}

// Columns returns all column schemas in order.
func (s *Schema) Columns() []ColumnSchema {
	return s.columns
}

// TsidIndex returns the index of the series-id column, or -1 if none.
func (s *Schema) TsidIndex() int {
	return s.tsidIdx
}

// IsCollapsible reports whether column i is collapsible.
func (s *Schema) IsCollapsible(i int) bool {
	return s.columns[i].Collapsible
}

// Equal reports whether two schemas have identical columns and tsid index.
func (s *Schema) Equal(o *Schema) bool {
	if s.tsidIdx != o.tsidIdx || len(s.columns) != len(o.columns) {
		return false
	}
	for i := range s.columns {
		if s.columns[i] != o.columns[i] {
			return false
		}
	}
	return true
}
