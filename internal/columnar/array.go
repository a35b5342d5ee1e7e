package columnar

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// OffsetSize is the byte width of one entry in an offset buffer.
// Offsets are little-endian int32; files larger than 2^31 logical rows per
// row group are not representable.
const OffsetSize = 4

// Array is a typed column of values backed by flat buffers.
//
// Fixed-size types use values only. Strings use offsets (len+1 little-endian
// int32 entries) into values. Lists use offsets into child. A nil null
// bitmap means every row is valid.
type Array struct {
	dtype   DataType
	elem    DataType
	length  int
	nulls   []byte
	values  []byte
	offsets []byte
	child   *Array
}

// Type returns the array's data type.
func (a *Array) Type() DataType { return a.dtype }

// ElemType returns the element type for list arrays.
func (a *Array) ElemType() DataType { return a.elem }

// Len returns the number of rows.
func (a *Array) Len() int { return a.length }

// NullBitmap returns the null bitmap buffer, or nil when all rows are valid.
func (a *Array) NullBitmap() []byte { return a.nulls }

// Values returns the value buffer.
func (a *Array) Values() []byte { return a.values }

// OffsetsBuffer returns the raw offset buffer (little-endian int32 entries),
// or nil for fixed-size arrays.
func (a *Array) OffsetsBuffer() []byte { return a.offsets }

// Child returns the child array of a list array.
func (a *Array) Child() *Array { return a.child }

// IsNull reports whether row i is null.
func (a *Array) IsNull(i int) bool {
	return !BitIsSet(a.nulls, i)
}

// Uint64 returns row i of a uint64 array.
func (a *Array) Uint64(i int) uint64 {
	return binary.LittleEndian.Uint64(a.values[i*8:])
}

// Int64 returns row i of an int64 or timestamp array.
func (a *Array) Int64(i int) int64 {
	return int64(binary.LittleEndian.Uint64(a.values[i*8:]))
}

// Int32 returns row i of an int32 array.
func (a *Array) Int32(i int) int32 {
	return int32(binary.LittleEndian.Uint32(a.values[i*4:]))
}

// Offset returns the i-th entry of the offset buffer.
func (a *Array) Offset(i int) int32 {
	return int32(binary.LittleEndian.Uint32(a.offsets[i*OffsetSize:]))
}

// Bytes returns the value bytes of row i of a string array.
func (a *Array) Bytes(i int) []byte {
	start, end := a.Offset(i), a.Offset(i+1)
	return a.values[start:end]
}

// StringAt returns row i of a string array as a string.
func (a *Array) StringAt(i int) string {
	return string(a.Bytes(i))
}

// FixedValueAt returns the raw value bytes of row i of a fixed-size array.
func (a *Array) FixedValueAt(i int) []byte {
	sz := a.dtype.FixedSize()
	return a.values[i*sz : (i+1)*sz]
}

// Int32Offsets decodes the full offset buffer into a slice.
func (a *Array) Int32Offsets() []int32 {
	return DecodeOffsets(a.offsets)
}

// DecodeOffsets decodes a raw little-endian int32 offset buffer.
func DecodeOffsets(buf []byte) []int32 {
	out := make([]int32, 0, len(buf)/OffsetSize)
	for i := 0; i+OffsetSize <= len(buf); i += OffsetSize {
		out = append(out, int32(binary.LittleEndian.Uint32(buf[i:])))
	}
	return out
}

// EncodeOffsets encodes offsets into a raw little-endian buffer.
func EncodeOffsets(offsets []int32) []byte {
	buf := make([]byte, len(offsets)*OffsetSize)
	for i, o := range offsets {
		binary.LittleEndian.PutUint32(buf[i*OffsetSize:], uint32(o))
	}
	return buf
}

// NewFixedArray creates a fixed-size array from raw buffers.
func NewFixedArray(dt DataType, values []byte, nulls []byte, n int) (*Array, error) {
	sz := dt.FixedSize()
	if sz == 0 {
		return nil, fmt.Errorf("columnar: %s is not a fixed-size type", dt)
	}
	if len(values) != n*sz {
		return nil, fmt.Errorf("columnar: %s array wants %d value bytes, got %d", dt, n*sz, len(values))
	}
	return &Array{dtype: dt, length: n, values: values, nulls: nulls}, nil
}

// NewStringArrayFromBuffers creates a string array from raw buffers.
func NewStringArrayFromBuffers(offsets, values, nulls []byte, n int) (*Array, error) {
	if len(offsets) != (n+1)*OffsetSize {
		return nil, fmt.Errorf("columnar: string array wants %d offset bytes, got %d", (n+1)*OffsetSize, len(offsets))
	}
	return &Array{dtype: TypeString, length: n, offsets: offsets, values: values, nulls: nulls}, nil
}

// NewListArray creates a list array over child with the given row offsets.
func NewListArray(child *Array, offsets []int32) (*Array, error) {
	if len(offsets) == 0 || offsets[0] != 0 {
		return nil, fmt.Errorf("columnar: list offsets must start at 0")
	}
	if int(offsets[len(offsets)-1]) != child.Len() {
		return nil, fmt.Errorf("columnar: list offsets end at %d, child has %d rows",
			offsets[len(offsets)-1], child.Len())
	}
	return &Array{
		dtype:   TypeList,
		elem:    child.Type(),
		length:  len(offsets) - 1,
		offsets: EncodeOffsets(offsets),
		child:   child,
	}, nil
}

// NewListArrayFromBuffers reconstructs a list array from raw buffers.
func NewListArrayFromBuffers(child *Array, offsets []byte, n int) (*Array, error) {
	if len(offsets) != (n+1)*OffsetSize {
		return nil, fmt.Errorf("columnar: list array wants %d offset bytes, got %d", (n+1)*OffsetSize, len(offsets))
	}
	return &Array{dtype: TypeList, elem: child.Type(), length: n, offsets: offsets, child: child}, nil
}

func appendFixed64(values []uint64) []byte {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return buf
}

// NewUint64Array creates a uint64 array with no nulls.
func NewUint64Array(values []uint64) *Array {
	return &Array{dtype: TypeUint64, length: len(values), values: appendFixed64(values)}
}

// NewTimestampArray creates a timestamp array with no nulls.
func NewTimestampArray(values []int64) *Array {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return &Array{dtype: TypeTimestamp, length: len(values), values: buf}
}

// NewInt64Array creates an int64 array with no nulls.
func NewInt64Array(values []int64) *Array {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return &Array{dtype: TypeInt64, length: len(values), values: buf}
}

// NewFloat64Array creates a float64 array with no nulls.
func NewFloat64Array(values []float64) *Array {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return &Array{dtype: TypeFloat64, length: len(values), values: buf}
}

// NewInt32Array creates an int32 array; valid may be nil for no nulls.
// Null rows still occupy a value slot, holding the value passed for them.
func NewInt32Array(values []int32, valid []bool) *Array {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return &Array{dtype: TypeInt32, length: len(values), values: buf, nulls: buildBitmap(valid, len(values))}
}

// NewStringArray creates a string array; valid may be nil for no nulls.
// Null rows contribute zero bytes to the value buffer.
func NewStringArray(values []string, valid []bool) *Array {
	offsets := make([]int32, 1, len(values)+1)
	var total int32
	var buf bytes.Buffer
	for i, v := range values {
		if valid == nil || valid[i] {
			buf.WriteString(v)
			total += int32(len(v))
		}
		offsets = append(offsets, total)
	}
	return &Array{
		dtype:   TypeString,
		length:  len(values),
		offsets: EncodeOffsets(offsets),
		values:  buf.Bytes(),
		nulls:   buildBitmap(valid, len(values)),
	}
}

func buildBitmap(valid []bool, n int) []byte {
	if valid == nil {
		return nil
	}
	bm := NewOnesBitmap(n)
	hasNull := false
	for i, ok := range valid {
		if !ok {
			UnsetBit(bm, i)
			hasNull = true
		}
	}
	if !hasNull {
		return nil
	}
	return bm
}

// Equal reports whether two arrays hold the same logical content: same type,
// length, and per-row null/value state.
func (a *Array) Equal(b *Array) bool {
	if a.dtype != b.dtype || a.length != b.length {
		return false
	}
	for i := 0; i < a.length; i++ {
		an, bn := a.IsNull(i), b.IsNull(i)
		if an != bn {
			return false
		}
		if an {
			continue
		}
		switch a.dtype {
		case TypeString:
			if !bytes.Equal(a.Bytes(i), b.Bytes(i)) {
				return false
			}
		case TypeList:
			as, ae := a.Offset(i), a.Offset(i+1)
			bs, be := b.Offset(i), b.Offset(i+1)
			if ae-as != be-bs {
				return false
			}
			for j := int32(0); j < ae-as; j++ {
				if !rowEqual(a.child, int(as+j), b.child, int(bs+j)) {
					return false
				}
			}
		default:
			if !bytes.Equal(a.FixedValueAt(i), b.FixedValueAt(i)) {
				return false
			}
		}
	}
	return true
}

func rowEqual(a *Array, i int, b *Array, j int) bool {
	if a.IsNull(i) != b.IsNull(j) {
		return false
	}
	if a.IsNull(i) {
		return true
	}
	if a.Type() == TypeString {
		return bytes.Equal(a.Bytes(i), b.Bytes(j))
	}
	return bytes.Equal(a.FixedValueAt(i), b.FixedValueAt(j))
}
