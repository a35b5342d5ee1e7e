package columnar

import (
	"fmt"
)

// Take builds a new array from the given rows of src, in order.
// List arrays are not supported; they are produced, never re-grouped.
func Take(src *Array, rows []int) (*Array, error) {
	switch src.Type() {
	case TypeString:
		values := make([]string, len(rows))
		valid := make([]bool, len(rows))
		hasNull := false
		for i, r := range rows {
			if src.IsNull(r) {
				hasNull = true
				continue
			}
			valid[i] = true
			values[i] = src.StringAt(r)
		}
		if !hasNull {
			valid = nil
		}
		return NewStringArray(values, valid), nil

	case TypeList:
		return nil, fmt.Errorf("columnar: take on list array")

	default:
		sz := src.Type().FixedSize()
		values := make([]byte, 0, len(rows)*sz)
		var nulls []byte
		for i, r := range rows {
			values = append(values, src.FixedValueAt(r)...)
			if src.IsNull(r) {
				if nulls == nil {
					nulls = NewOnesBitmap(len(rows))
				}
				UnsetBit(nulls, i)
			}
		}
		return NewFixedArray(src.Type(), values, nulls, len(rows))
	}
}

// Slice builds a new array holding rows [start, end) of src.
func Slice(src *Array, start, end int) (*Array, error) {
	if start < 0 || end > src.Len() || start > end {
		return nil, fmt.Errorf("columnar: slice [%d, %d) out of range (len %d)", start, end, src.Len())
	}
	n := end - start

	var nulls []byte
	if src.NullBitmap() != nil {
		nulls = NewOnesBitmap(n)
		for i := 0; i < n; i++ {
			if src.IsNull(start + i) {
				UnsetBit(nulls, i)
			}
		}
	}

	switch src.Type() {
	case TypeString:
		base := src.Offset(start)
		offsets := make([]int32, n+1)
		for i := 0; i <= n; i++ {
			offsets[i] = src.Offset(start+i) - base
		}
		values := src.Values()[base:src.Offset(end)]
		return NewStringArrayFromBuffers(EncodeOffsets(offsets), values, nulls, n)

	case TypeList:
		childStart, childEnd := src.Offset(start), src.Offset(end)
		child, err := Slice(src.Child(), int(childStart), int(childEnd))
		if err != nil {
			return nil, err
		}
		offsets := make([]int32, n+1)
		for i := 0; i <= n; i++ {
			offsets[i] = src.Offset(start+i) - childStart
		}
		out, err := NewListArrayFromBuffers(child, EncodeOffsets(offsets), n)
		if err != nil {
			return nil, err
		}
		out.nulls = nulls
		return out, nil

	default:
		sz := src.Type().FixedSize()
		values := src.Values()[start*sz : end*sz]
		return NewFixedArray(src.Type(), values, nulls, n)
	}
}

// SliceBatch builds a new batch holding rows [start, end) of b.
func SliceBatch(b *RecordBatch, start, end int) (*RecordBatch, error) {
	cols := make([]*Array, b.NumColumns())
	for i, col := range b.Columns() {
		sliced, err := Slice(col, start, end)
		if err != nil {
			return nil, err
		}
		cols[i] = sliced
	}
	return NewRecordBatch(b.Schema(), cols)
}
