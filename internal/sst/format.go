package sst

import (
	"fmt"

	"github.com/tephradb/tephra/internal/columnar"
	"github.com/tephradb/tephra/internal/encoding"
)

// File layout:
//
//	[column chunk]* [meta block] [index block] [footer]
//
// Every chunk and block is stored payload followed by a 5-byte trailer:
// 1 byte compression type, 4 bytes checksum over payload+type byte.
// The footer is fixed size: meta handle, index handle, checksum type,
// format version, magic.
const (
	// MagicNumber marks the end of a tephra SST file ("tephrast").
	MagicNumber uint64 = 0x7465706872617374

	// FormatVersion is the container version written by this code.
	FormatVersion uint32 = 1

	chunkTrailerSize = 5

	handleEncodedSize = 24

	footerSize = 2*handleEncodedSize + 1 + 4 + 8
)

// handle locates a stored chunk: offset of the payload, stored payload size
// (excluding the trailer), and uncompressed payload size.
type handle struct {
	Offset  uint64
	Size    uint64
	RawSize uint64
}

func (h handle) encodeTo(dst []byte) []byte {
	dst = encoding.AppendFixed64(dst, h.Offset)
	dst = encoding.AppendFixed64(dst, h.Size)
	return encoding.AppendFixed64(dst, h.RawSize)
}

func decodeHandle(src []byte) handle {
	return handle{
		Offset:  encoding.DecodeFixed64(src),
		Size:    encoding.DecodeFixed64(src[8:]),
		RawSize: encoding.DecodeFixed64(src[16:]),
	}
}

// rowGroupMeta records one row group's shape in the index block.
type rowGroupMeta struct {
	numRows int
	chunks  []handle
}

// Array serialization flags.
const (
	arrayHasNulls   = 1 << 0
	arrayHasOffsets = 1 << 1
	arrayHasChild   = 1 << 2
)

// serializeArray flattens an array into a self-describing payload:
// type byte, elem byte, row count, flag byte, then the present buffers
// (nulls, offsets, values, child) length-prefixed.
func serializeArray(a *columnar.Array) []byte {
	var flags byte
	if a.NullBitmap() != nil {
		flags |= arrayHasNulls
	}
	if a.OffsetsBuffer() != nil {
		flags |= arrayHasOffsets
	}
	if a.Child() != nil {
		flags |= arrayHasChild
	}

	buf := []byte{byte(a.Type()), byte(a.ElemType())}
	buf = encoding.AppendVarint64(buf, uint64(a.Len()))
	buf = append(buf, flags)

	if flags&arrayHasNulls != 0 {
		buf = encoding.AppendLengthPrefixedSlice(buf, a.NullBitmap())
	}
	if flags&arrayHasOffsets != 0 {
		buf = encoding.AppendLengthPrefixedSlice(buf, a.OffsetsBuffer())
	}
	buf = encoding.AppendLengthPrefixedSlice(buf, a.Values())
	if flags&arrayHasChild != 0 {
		buf = encoding.AppendLengthPrefixedSlice(buf, serializeArray(a.Child()))
	}
	return buf
}

func deserializeArray(data []byte) (*columnar.Array, error) {
	s := encoding.NewSlice(data)

	header, ok := s.GetBytes(2)
	if !ok {
		return nil, fmt.Errorf("truncated array header")
	}
	dtype := columnar.DataType(header[0])
	elem := columnar.DataType(header[1])

	n64, ok := s.GetVarint64()
	if !ok {
		return nil, fmt.Errorf("truncated array length")
	}
	n := int(n64)

	flagBuf, ok := s.GetBytes(1)
	if !ok {
		return nil, fmt.Errorf("truncated array flags")
	}
	flags := flagBuf[0]

	var nulls, offsets []byte
	if flags&arrayHasNulls != 0 {
		if nulls, ok = s.GetLengthPrefixedSlice(); !ok {
			return nil, fmt.Errorf("truncated null bitmap")
		}
	}
	if flags&arrayHasOffsets != 0 {
		if offsets, ok = s.GetLengthPrefixedSlice(); !ok {
			return nil, fmt.Errorf("truncated offset buffer")
		}
	}
	values, ok := s.GetLengthPrefixedSlice()
	if !ok {
		return nil, fmt.Errorf("truncated value buffer")
	}

	switch dtype {
	case columnar.TypeString:
		return columnar.NewStringArrayFromBuffers(offsets, values, nulls, n)
	case columnar.TypeList:
		childBuf, ok := s.GetLengthPrefixedSlice()
		if !ok || flags&arrayHasChild == 0 {
			return nil, fmt.Errorf("list array missing child")
		}
		child, err := deserializeArray(childBuf)
		if err != nil {
			return nil, err
		}
		if child.Type() != elem {
			return nil, fmt.Errorf("list child is %s, header says %s", child.Type(), elem)
		}
		return columnar.NewListArrayFromBuffers(child, offsets, n)
	default:
		return columnar.NewFixedArray(dtype, values, nulls, n)
	}
}

// serializeKeyValues encodes the footer key/value metadata block.
func serializeKeyValues(kvs []KeyValue) []byte {
	buf := encoding.AppendVarint64(nil, uint64(len(kvs)))
	for _, kv := range kvs {
		buf = encoding.AppendLengthPrefixedSlice(buf, []byte(kv.Key))
		buf = encoding.AppendLengthPrefixedSlice(buf, []byte(kv.Value))
	}
	return buf
}

func deserializeKeyValues(data []byte) ([]KeyValue, error) {
	s := encoding.NewSlice(data)
	count, ok := s.GetVarint64()
	if !ok {
		return nil, fmt.Errorf("truncated key/value count")
	}
	kvs := make([]KeyValue, 0, count)
	for i := uint64(0); i < count; i++ {
		k, ok := s.GetLengthPrefixedSlice()
		if !ok {
			return nil, fmt.Errorf("truncated key/value entry %d", i)
		}
		v, ok := s.GetLengthPrefixedSlice()
		if !ok {
			return nil, fmt.Errorf("truncated key/value entry %d", i)
		}
		kvs = append(kvs, KeyValue{Key: string(k), Value: string(v)})
	}
	return kvs, nil
}

// serializeIndex encodes the row-group index block.
func serializeIndex(groups []rowGroupMeta) []byte {
	buf := encoding.AppendVarint64(nil, uint64(len(groups)))
	for _, g := range groups {
		buf = encoding.AppendVarint64(buf, uint64(g.numRows))
		buf = encoding.AppendVarint64(buf, uint64(len(g.chunks)))
		for _, c := range g.chunks {
			buf = encoding.AppendVarint64(buf, c.Offset)
			buf = encoding.AppendVarint64(buf, c.Size)
			buf = encoding.AppendVarint64(buf, c.RawSize)
		}
	}
	return buf
}

func deserializeIndex(data []byte) ([]rowGroupMeta, error) {
	s := encoding.NewSlice(data)
	numGroups, ok := s.GetVarint64()
	if !ok {
		return nil, fmt.Errorf("truncated row group count")
	}
	groups := make([]rowGroupMeta, 0, numGroups)
	for i := uint64(0); i < numGroups; i++ {
		numRows, ok1 := s.GetVarint64()
		numCols, ok2 := s.GetVarint64()
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("truncated row group %d header", i)
		}
		g := rowGroupMeta{numRows: int(numRows), chunks: make([]handle, 0, numCols)}
		for j := uint64(0); j < numCols; j++ {
			off, ok1 := s.GetVarint64()
			size, ok2 := s.GetVarint64()
			raw, ok3 := s.GetVarint64()
			if !ok1 || !ok2 || !ok3 {
				return nil, fmt.Errorf("truncated chunk handle %d/%d", i, j)
			}
			g.chunks = append(g.chunks, handle{Offset: off, Size: size, RawSize: raw})
		}
		groups = append(groups, g)
	}
	return groups, nil
}
