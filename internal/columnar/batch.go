package columnar

import (
	"fmt"
)

// RecordBatch is a set of equal-length arrays matching a schema.
type RecordBatch struct {
	schema  *Schema
	columns []*Array
}

// NewRecordBatch creates a batch, validating column count, types, and row
// counts.
func NewRecordBatch(schema *Schema, columns []*Array) (*RecordBatch, error) {
	if len(columns) != schema.NumColumns() {
		return nil, fmt.Errorf("columnar: batch has %d columns, schema wants %d",
			len(columns), schema.NumColumns())
	}
	numRows := -1
	for i, col := range columns {
		want := schema.Column(i).Type
		if col.Type() != want {
			return nil, fmt.Errorf("columnar: column %q is %s, schema wants %s",
				schema.Column(i).Name, col.Type(), want)
		}
		if numRows < 0 {
			numRows = col.Len()
		} else if col.Len() != numRows {
			return nil, fmt.Errorf("columnar: column %q has %d rows, expected %d",
				schema.Column(i).Name, col.Len(), numRows)
		}
	}
	return &RecordBatch{schema: schema, columns: columns}, nil
}

// Schema returns the batch schema.
func (b *RecordBatch) Schema() *Schema { return b.schema }

// NumRows returns the number of rows; zero for a batch with no columns.
func (b *RecordBatch) NumRows() int {
	if len(b.columns) == 0 {
		return 0
	}
	return b.columns[0].Len()
}

// NumColumns returns the number of columns.
func (b *RecordBatch) NumColumns() int { return len(b.columns) }

// Column returns the i-th array.
func (b *RecordBatch) Column(i int) *Array { return b.columns[i] }

// Columns returns all arrays in schema order.
func (b *RecordBatch) Columns() []*Array { return b.columns }

// Equal reports whether two batches hold the same logical content.
func (b *RecordBatch) Equal(o *RecordBatch) bool {
	if b.NumColumns() != o.NumColumns() {
		return false
	}
	for i := range b.columns {
		if !b.columns[i].Equal(o.columns[i]) {
			return false
		}
	}
	return true
}

// ConcatBatches concatenates batches over the given schema into one batch.
// List columns cannot be concatenated; they only appear in encoded hybrid
// batches, which are never concatenated.
func ConcatBatches(schema *Schema, batches []*RecordBatch) (*RecordBatch, error) {
	if len(batches) == 1 {
		return batches[0], nil
	}
	cols := make([]*Array, schema.NumColumns())
	for i := 0; i < schema.NumColumns(); i++ {
		arrays := make([]*Array, 0, len(batches))
		for _, b := range batches {
			if b.NumColumns() != schema.NumColumns() {
				return nil, fmt.Errorf("columnar: concat batch has %d columns, schema wants %d",
					b.NumColumns(), schema.NumColumns())
			}
			arrays = append(arrays, b.Column(i))
		}
		merged, err := concatArrays(arrays)
		if err != nil {
			return nil, fmt.Errorf("columnar: concat column %q: %w", schema.Column(i).Name, err)
		}
		cols[i] = merged
	}
	return NewRecordBatch(schema, cols)
}

func concatArrays(arrays []*Array) (*Array, error) {
	dt := arrays[0].Type()
	totalRows := 0
	hasNulls := false
	for _, a := range arrays {
		if a.Type() != dt {
			return nil, fmt.Errorf("type mismatch: %s vs %s", a.Type(), dt)
		}
		totalRows += a.Len()
		if a.NullBitmap() != nil {
			hasNulls = true
		}
	}

	var nulls []byte
	if hasNulls {
		nulls = NewOnesBitmap(totalRows)
		row := 0
		for _, a := range arrays {
			for i := 0; i < a.Len(); i++ {
				if a.IsNull(i) {
					UnsetBit(nulls, row+i)
				}
			}
			row += a.Len()
		}
	}

	switch dt {
	case TypeString:
		offsets := make([]int32, 1, totalRows+1)
		var values []byte
		for _, a := range arrays {
			base := offsets[len(offsets)-1]
			src := a.Int32Offsets()
			for i := 1; i < len(src); i++ {
				offsets = append(offsets, base+src[i])
			}
			values = append(values, a.Values()...)
		}
		return NewStringArrayFromBuffers(EncodeOffsets(offsets), values, nulls, totalRows)

	case TypeList:
		return nil, fmt.Errorf("list arrays cannot be concatenated")

	default:
		var values []byte
		for _, a := range arrays {
			values = append(values, a.Values()...)
		}
		return NewFixedArray(dt, values, nulls, totalRows)
	}
}
