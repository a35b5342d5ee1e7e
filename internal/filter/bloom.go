// Package filter provides the Bloom filter stored in SST metadata.
//
// The filter is built over row keys while encoding and lets readers skip
// files that cannot contain a key. It uses double hashing derived from a
// single 64-bit XXH3 hash, so membership checks need one hash per key.
package filter

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// BloomFilterBuilder accumulates keys and produces the serialized filter.
type BloomFilterBuilder struct {
	hashes     []uint64
	bitsPerKey int
}

// NewBloomFilterBuilder creates a builder.
// bitsPerKey controls accuracy; 10 gives roughly a 1% false-positive rate.
func NewBloomFilterBuilder(bitsPerKey int) *BloomFilterBuilder {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	return &BloomFilterBuilder{bitsPerKey: bitsPerKey}
}

// AddKey records a key in the filter.
func (b *BloomFilterBuilder) AddKey(key []byte) {
	b.hashes = append(b.hashes, xxh3.Hash(key))
}

// NumKeys returns the number of keys added so far.
func (b *BloomFilterBuilder) NumKeys() int {
	return len(b.hashes)
}

// Finish serializes the filter.
// Layout: bit array || 1-byte probe count || 4-byte LE bit count.
// An empty builder yields nil; a reader over nil rules out no key.
func (b *BloomFilterBuilder) Finish() []byte {
	if len(b.hashes) == 0 {
		return nil
	}

	bits := len(b.hashes) * b.bitsPerKey
	if bits < 64 {
		bits = 64
	}
	nBytes := (bits + 7) / 8
	bits = nBytes * 8

	// k = bitsPerKey * ln(2), clamped to a sane range.
	numProbes := int(float64(b.bitsPerKey) * 0.69)
	if numProbes < 1 {
		numProbes = 1
	}
	if numProbes > 30 {
		numProbes = 30
	}

	data := make([]byte, nBytes, nBytes+5)
	for _, h := range b.hashes {
		setHash(h, uint32(bits), numProbes, data)
	}

	data = append(data, byte(numProbes))
	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], uint32(bits))
	return append(data, trailer[:]...)
}

// Reset clears the builder for reuse.
func (b *BloomFilterBuilder) Reset() {
	b.hashes = b.hashes[:0]
}

func setHash(h uint64, bits uint32, numProbes int, data []byte) {
	// Double hashing: bit_i = (h1 + i*h2) mod bits.
	h1 := uint32(h)
	h2 := uint32(h >> 32)
	for i := 0; i < numProbes; i++ {
		bit := (h1 + uint32(i)*h2) % bits
		data[bit/8] |= 1 << (bit % 8)
	}
}

// BloomFilterReader answers membership queries against a serialized filter.
type BloomFilterReader struct {
	data      []byte
	bits      uint32
	numProbes int
	valid     bool
}

// NewBloomFilterReader wraps serialized filter bytes.
// Malformed or empty input yields a reader whose MayContain always returns
// true (never rule out keys on a bad filter).
func NewBloomFilterReader(data []byte) *BloomFilterReader {
	if len(data) < 6 {
		return &BloomFilterReader{}
	}
	bits := binary.LittleEndian.Uint32(data[len(data)-4:])
	numProbes := int(data[len(data)-5])
	body := data[:len(data)-5]
	if bits == 0 || numProbes < 1 || numProbes > 30 || uint32(len(body)*8) < bits {
		return &BloomFilterReader{}
	}
	return &BloomFilterReader{
		data:      body,
		bits:      bits,
		numProbes: numProbes,
		valid:     true,
	}
}

// MayContain returns false only if the key is definitely absent.
func (r *BloomFilterReader) MayContain(key []byte) bool {
	if !r.valid {
		return true
	}
	h := xxh3.Hash(key)
	h1 := uint32(h)
	h2 := uint32(h >> 32)
	for i := 0; i < r.numProbes; i++ {
		bit := (h1 + uint32(i)*h2) % r.bits
		if r.data[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}
