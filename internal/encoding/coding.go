// Package encoding provides binary encoding/decoding primitives used by the
// SST container format.
//
// All multi-byte integers are encoded in little-endian format.
// Variable-length integers (varints) use 7-bit encoding with MSB continuation.
package encoding

import (
	"encoding/binary"
	"errors"
)

// MaxVarint32Length is the maximum number of bytes a varint32 can occupy.
const MaxVarint32Length = 5

// MaxVarint64Length is the maximum number of bytes a varint64 can occupy.
const MaxVarint64Length = 10

// ErrVarintTruncated is returned when decoding a varint from a buffer that
// ends before the varint terminates.
var ErrVarintTruncated = errors.New("encoding: truncated varint")

// EncodeFixed32 encodes a 32-bit value in little-endian into dst.
// dst must be at least 4 bytes.
func EncodeFixed32(dst []byte, value uint32) {
	binary.LittleEndian.PutUint32(dst, value)
}

// DecodeFixed32 decodes a little-endian 32-bit value from src.
// src must be at least 4 bytes.
func DecodeFixed32(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

// EncodeFixed64 encodes a 64-bit value in little-endian into dst.
// dst must be at least 8 bytes.
func EncodeFixed64(dst []byte, value uint64) {
	binary.LittleEndian.PutUint64(dst, value)
}

// DecodeFixed64 decodes a little-endian 64-bit value from src.
// src must be at least 8 bytes.
func DecodeFixed64(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}

// AppendFixed32 appends a little-endian 32-bit value to dst.
func AppendFixed32(dst []byte, value uint32) []byte {
	var buf [4]byte
	EncodeFixed32(buf[:], value)
	return append(dst, buf[:]...)
}

// AppendFixed64 appends a little-endian 64-bit value to dst.
func AppendFixed64(dst []byte, value uint64) []byte {
	var buf [8]byte
	EncodeFixed64(buf[:], value)
	return append(dst, buf[:]...)
}

// AppendVarint32 appends a varint-encoded 32-bit value to dst.
func AppendVarint32(dst []byte, value uint32) []byte {
	return AppendVarint64(dst, uint64(value))
}

// AppendVarint64 appends a varint-encoded 64-bit value to dst.
func AppendVarint64(dst []byte, value uint64) []byte {
	for value >= 0x80 {
		dst = append(dst, byte(value)|0x80)
		value >>= 7
	}
	return append(dst, byte(value))
}

// DecodeVarint32 decodes a varint-encoded 32-bit value from src.
// Returns the value and the number of bytes consumed.
func DecodeVarint32(src []byte) (value uint32, bytesRead int, err error) {
	v, n, err := DecodeVarint64(src)
	if err != nil {
		return 0, 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, 0, errors.New("encoding: varint32 overflow")
	}
	return uint32(v), n, nil
}

// DecodeVarint64 decodes a varint-encoded 64-bit value from src.
// Returns the value and the number of bytes consumed.
func DecodeVarint64(src []byte) (value uint64, bytesRead int, err error) {
	var shift uint
	for i, b := range src {
		if i >= MaxVarint64Length {
			return 0, 0, errors.New("encoding: varint64 too long")
		}
		if b < 0x80 {
			return value | uint64(b)<<shift, i + 1, nil
		}
		value |= uint64(b&0x7F) << shift
		shift += 7
	}
	return 0, 0, ErrVarintTruncated
}

// AppendLengthPrefixedSlice appends a varint length followed by the bytes.
func AppendLengthPrefixedSlice(dst []byte, value []byte) []byte {
	dst = AppendVarint64(dst, uint64(len(value)))
	return append(dst, value...)
}

// DecodeLengthPrefixedSlice decodes a length-prefixed byte slice from src.
// Returns the slice (aliasing src) and the number of bytes consumed.
func DecodeLengthPrefixedSlice(src []byte) (value []byte, bytesRead int, err error) {
	length, n, err := DecodeVarint64(src)
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(src)-n) < length {
		return nil, 0, errors.New("encoding: truncated length-prefixed slice")
	}
	return src[n : n+int(length)], n + int(length), nil
}

// Slice is a cursor over a byte buffer for sequential decoding.
type Slice struct {
	data []byte
	pos  int
}

// NewSlice creates a decoding cursor over data.
func NewSlice(data []byte) *Slice {
	return &Slice{data: data}
}

// Remaining returns the number of unread bytes.
func (s *Slice) Remaining() int {
	return len(s.data) - s.pos
}

// GetFixed32 reads a little-endian 32-bit value.
func (s *Slice) GetFixed32() (uint32, bool) {
	if s.Remaining() < 4 {
		return 0, false
	}
	v := DecodeFixed32(s.data[s.pos:])
	s.pos += 4
	return v, true
}

// GetFixed64 reads a little-endian 64-bit value.
func (s *Slice) GetFixed64() (uint64, bool) {
	if s.Remaining() < 8 {
		return 0, false
	}
	v := DecodeFixed64(s.data[s.pos:])
	s.pos += 8
	return v, true
}

// GetVarint64 reads a varint-encoded 64-bit value.
func (s *Slice) GetVarint64() (uint64, bool) {
	v, n, err := DecodeVarint64(s.data[s.pos:])
	if err != nil {
		return 0, false
	}
	s.pos += n
	return v, true
}

// GetLengthPrefixedSlice reads a varint length followed by that many bytes.
// The returned slice aliases the underlying buffer.
func (s *Slice) GetLengthPrefixedSlice() ([]byte, bool) {
	v, n, err := DecodeLengthPrefixedSlice(s.data[s.pos:])
	if err != nil {
		return nil, false
	}
	s.pos += n
	return v, true
}

// GetBytes reads exactly n bytes. The returned slice aliases the buffer.
func (s *Slice) GetBytes(n int) ([]byte, bool) {
	if s.Remaining() < n {
		return nil, false
	}
	v := s.data[s.pos : s.pos+n]
	s.pos += n
	return v, true
}
