package sst

import (
	"fmt"

	"github.com/tephradb/tephra/internal/columnar"
)

// The hybrid layout stores one physical row per series per row group.
// Collapsible columns are packed as variable-length lists; the remaining
// non-series columns hold one representative value per series. Decoding
// "stretches" the physical row back into one logical row per list element
// using the list offset buffer.

// BuildHybridSchema derives the physical schema of a hybrid file from the
// logical schema: collapsible columns become lists of their original type,
// the series-id column keeps its type, and every other column must be
// string-typed.
func BuildHybridSchema(logical *columnar.Schema) (*columnar.Schema, error) {
	tsidIdx := logical.TsidIndex()
	if tsidIdx < 0 {
		return nil, ErrTsidRequired
	}

	cols := make([]columnar.ColumnSchema, 0, logical.NumColumns())
	for i, col := range logical.Columns() {
		switch {
		case i == tsidIdx:
			cols = append(cols, col)
		case col.Collapsible:
			cols = append(cols, columnar.ColumnSchema{
				Name:        col.Name,
				Type:        columnar.TypeList,
				Elem:        col.Type,
				Collapsible: true,
			})
		default:
			if col.Type != columnar.TypeString {
				return nil, fmt.Errorf("%w: column %q is %s", ErrStringKeyColumnRequired, col.Name, col.Type)
			}
			cols = append(cols, col)
		}
	}
	return columnar.NewSchema(cols, tsidIdx)
}

// CollectCollapsibleColsIdx returns the original indices of the collapsible
// columns, the payload of the stored collapsible_cols_idx list.
func CollectCollapsibleColsIdx(logical *columnar.Schema) []uint32 {
	var idx []uint32
	for i := range logical.Columns() {
		if logical.IsCollapsible(i) {
			idx = append(idx, uint32(i))
		}
	}
	return idx
}

// convertToHybridBatch groups the input batches by series id, preserving
// first-seen series order and input row order within a series, and emits one
// physical row per series.
func convertToHybridBatch(hybridSchema *columnar.Schema, batches []*columnar.RecordBatch) (*columnar.RecordBatch, error) {
	logicalSchema := batches[0].Schema()
	flat, err := columnar.ConcatBatches(logicalSchema, batches)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeRecordBatch, err)
	}

	tsidIdx := hybridSchema.TsidIndex()
	tsidCol := flat.Column(tsidIdx)

	// Group rows by series id, first-seen order.
	rowsByTsid := make(map[string][]int)
	var order []string
	for i := 0; i < flat.NumRows(); i++ {
		key := string(tsidCol.FixedValueAt(i))
		if _, seen := rowsByTsid[key]; !seen {
			order = append(order, key)
		}
		rowsByTsid[key] = append(rowsByTsid[key], i)
	}

	// One representative row per series, plus the flattened per-series row
	// order and list offsets shared by every collapsible column.
	firstRows := make([]int, 0, len(order))
	flatRows := make([]int, 0, flat.NumRows())
	offsets := make([]int32, 1, len(order)+1)
	for _, key := range order {
		rows := rowsByTsid[key]
		firstRows = append(firstRows, rows[0])
		flatRows = append(flatRows, rows...)
		offsets = append(offsets, offsets[len(offsets)-1]+int32(len(rows)))
	}

	cols := make([]*columnar.Array, hybridSchema.NumColumns())
	for i := range hybridSchema.Columns() {
		src := flat.Column(i)
		switch {
		case hybridSchema.Column(i).Type == columnar.TypeList:
			child, err := columnar.Take(src, flatRows)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrEncodeRecordBatch, err)
			}
			list, err := columnar.NewListArray(child, offsets)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrEncodeRecordBatch, err)
			}
			cols[i] = list
		default:
			rep, err := columnar.Take(src, firstRows)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrEncodeRecordBatch, err)
			}
			cols[i] = rep
		}
	}

	batch, err := columnar.NewRecordBatch(hybridSchema, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeRecordBatch, err)
	}
	return batch, nil
}

// convertStretchedSchema maps the physical hybrid schema back to the flat
// output schema: List<T> fields become T.
func convertStretchedSchema(physical *columnar.Schema) (*columnar.Schema, error) {
	cols := make([]columnar.ColumnSchema, 0, physical.NumColumns())
	for _, col := range physical.Columns() {
		if col.Type == columnar.TypeList {
			cols = append(cols, columnar.ColumnSchema{
				Name:        col.Name,
				Type:        col.Elem,
				Collapsible: col.Collapsible,
			})
		} else {
			cols = append(cols, col)
		}
	}
	return columnar.NewSchema(cols, physical.TsidIndex())
}

// stretchFixedLengthColumn expands each physical row i into
// valueOffsets[i+1]-valueOffsets[i] copies of its value, replicating the
// null bit across the expansion.
func stretchFixedLengthColumn(src *columnar.Array, valueSize int, valueOffsets []int32) (*columnar.Array, error) {
	if src.Len()+1 != len(valueOffsets) {
		return nil, fmt.Errorf("%w: %d rows but %d offsets", ErrDecodeRecordBatch, src.Len(), len(valueOffsets))
	}
	valuesNum := int(valueOffsets[len(valueOffsets)-1])

	values := make([]byte, 0, valuesNum*valueSize)
	var nulls []byte
	if src.NullBitmap() != nil {
		nulls = columnar.NewOnesBitmap(valuesNum)
	}

	lengthSoFar := 0
	for i := 0; i < src.Len(); i++ {
		valueNum := int(valueOffsets[i+1] - valueOffsets[i])
		if src.IsNull(i) {
			for j := 0; j < valueNum; j++ {
				columnar.UnsetBit(nulls, lengthSoFar+j)
			}
		}
		lengthSoFar += valueNum
		raw := src.FixedValueAt(i)
		for j := 0; j < valueNum; j++ {
			values = append(values, raw...)
		}
	}

	arr, err := columnar.NewFixedArray(src.Type(), values, nulls, valuesNum)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeRecordBatch, err)
	}
	return arr, nil
}

// stretchVariableLengthColumn is the string variant: the expansion also
// recomputes the offset buffer from the per-row byte lengths.
//
// Example: values "a" "b" "c" with valueOffsets [0, 3, 5, 6] yield
// "a" "a" "a" "b" "b" "c".
func stretchVariableLengthColumn(src *columnar.Array, valueOffsets []int32) (*columnar.Array, error) {
	if src.Len()+1 != len(valueOffsets) {
		return nil, fmt.Errorf("%w: %d rows but %d offsets", ErrDecodeRecordBatch, src.Len(), len(valueOffsets))
	}
	valuesNum := int(valueOffsets[len(valueOffsets)-1])
	srcOffsets := src.Int32Offsets()

	valueBytes := 0
	for i := 0; i+1 < len(srcOffsets); i++ {
		valueLen := int(srcOffsets[i+1] - srcOffsets[i])
		valueNum := int(valueOffsets[i+1] - valueOffsets[i])
		valueBytes += valueLen * valueNum
	}

	values := make([]byte, 0, valueBytes)
	newOffsets := make([]int32, 1, valuesNum+1)
	var nulls []byte
	if src.NullBitmap() != nil {
		nulls = columnar.NewOnesBitmap(valuesNum)
	}

	lengthSoFar := int32(0)
	bitmapLengthSoFar := 0
	for i := 0; i+1 < len(srcOffsets); i++ {
		valueLen := srcOffsets[i+1] - srcOffsets[i]
		valueNum := int(valueOffsets[i+1] - valueOffsets[i])

		if src.IsNull(i) {
			for j := 0; j < valueNum; j++ {
				columnar.UnsetBit(nulls, bitmapLengthSoFar+j)
			}
		}
		bitmapLengthSoFar += valueNum

		raw := src.Values()[srcOffsets[i]:srcOffsets[i+1]]
		for j := 0; j < valueNum; j++ {
			values = append(values, raw...)
			lengthSoFar += valueLen
			newOffsets = append(newOffsets, lengthSoFar)
		}
	}

	arr, err := columnar.NewStringArrayFromBuffers(columnar.EncodeOffsets(newOffsets), values, nulls, valuesNum)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeRecordBatch, err)
	}
	return arr, nil
}
