// Package checksum provides checksums for SST column chunks.
//
// Each chunk in an SST file carries a 32-bit checksum computed over the
// (possibly compressed) chunk bytes plus the trailing compression-type byte.
// The default algorithm is XXH3; CRC32C is kept for tooling that prefers a
// hardware-accelerated CRC.
package checksum

import (
	"hash/crc32"

	"github.com/zeebo/xxh3"
)

// Type represents the type of checksum algorithm.
type Type uint8

const (
	// TypeNone means no checksum is used.
	TypeNone Type = 0
	// TypeCRC32C is CRC32C (Castagnoli) checksum.
	TypeCRC32C Type = 1
	// TypeXXH3 is the low 32 bits of a 64-bit XXH3 hash.
	TypeXXH3 Type = 2
)

// String returns a human-readable name for the checksum type.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "None"
	case TypeCRC32C:
		return "CRC32C"
	case TypeXXH3:
		return "XXH3"
	default:
		return "Unknown"
	}
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// maskDelta is applied to raw CRCs before storing them, so that computing a
// CRC of data that itself contains an embedded CRC stays well distributed.
const maskDelta = 0xa282ead8

// mask returns a masked representation of a raw CRC.
func mask(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

// CRC32C computes the masked CRC32C of data followed by lastByte.
// lastByte is the chunk trailer's compression-type byte, which is not part
// of the chunk data buffer.
func CRC32C(data []byte, lastByte byte) uint32 {
	crc := crc32.Update(0, castagnoli, data)
	crc = crc32.Update(crc, castagnoli, []byte{lastByte})
	return mask(crc)
}

// XXH3 hashes data with 64-bit XXH3, hashes lastByte using that hash as the
// seed, and returns the low 32 bits of the result.
func XXH3(data []byte, lastByte byte) uint32 {
	h := xxh3.Hash(data)
	h = xxh3.HashSeed([]byte{lastByte}, h)
	return uint32(h)
}

// Compute computes the checksum of the given type over data plus lastByte.
// TypeNone and unknown types yield zero.
func Compute(t Type, data []byte, lastByte byte) uint32 {
	switch t {
	case TypeCRC32C:
		return CRC32C(data, lastByte)
	case TypeXXH3:
		return XXH3(data, lastByte)
	default:
		return 0
	}
}
