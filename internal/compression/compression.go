// Package compression provides per-chunk compression for SST column chunks.
//
// Each column chunk in an SST file is stored as the compressed (or raw) data
// followed by a trailer whose first byte is the compression type. LZ4 uses
// the raw block format, so the uncompressed size must be carried out of band;
// the chunk's handle in the row-group index records it.
package compression

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type represents a compression algorithm.
type Type uint8

const (
	// None indicates no compression.
	None Type = 0x0

	// Snappy uses Google Snappy compression.
	Snappy Type = 0x1

	// Zlib uses raw deflate compression.
	Zlib Type = 0x2

	// LZ4 uses LZ4 raw block compression.
	LZ4 Type = 0x3

	// Zstd uses Zstandard compression.
	Zstd Type = 0x4
)

// String returns the human-readable name of the compression type.
func (t Type) String() string {
	switch t {
	case None:
		return "None"
	case Snappy:
		return "Snappy"
	case Zlib:
		return "Zlib"
	case LZ4:
		return "LZ4"
	case Zstd:
		return "ZSTD"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// IsSupported returns true if the compression type is supported.
func (t Type) IsSupported() bool {
	switch t {
	case None, Snappy, Zlib, LZ4, Zstd:
		return true
	default:
		return false
	}
}

// Compress compresses data using the specified compression type.
// A nil result with a nil error means the data is incompressible and the
// caller should store it raw.
func Compress(t Type, data []byte) ([]byte, error) {
	switch t {
	case None:
		return data, nil

	case Snappy:
		return snappy.Encode(nil, data), nil

	case Zlib:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.BestSpeed)
		if err != nil {
			return nil, fmt.Errorf("deflate writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("deflate write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("deflate close: %w", err)
		}
		return buf.Bytes(), nil

	case LZ4:
		return compressLZ4(data)

	case Zstd:
		return compressZstd(data)

	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}

// compressLZ4 compresses data using the LZ4 raw block format.
// The raw block format has no frame header, so decompression needs the
// uncompressed size from the chunk handle.
func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))

	var ht [1 << 16]int
	n, err := lz4.CompressBlock(data, dst, ht[:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compress block: %w", err)
	}
	if n == 0 {
		// Incompressible.
		return nil, nil
	}
	return dst[:n], nil
}

func compressZstd(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	defer func() { _ = encoder.Close() }()
	return encoder.EncodeAll(data, nil), nil
}

// Decompress decompresses data using the specified compression type.
// uncompressedSize is the size recorded in the chunk handle; it is required
// for LZ4 and used as an allocation hint elsewhere.
func Decompress(t Type, data []byte, uncompressedSize int) ([]byte, error) {
	switch t {
	case None:
		return data, nil

	case Snappy:
		return snappy.Decode(nil, data)

	case Zlib:
		r := flate.NewReader(bytes.NewReader(data))
		defer func() { _ = r.Close() }()
		out := bytes.NewBuffer(make([]byte, 0, uncompressedSize))
		if _, err := io.Copy(out, r); err != nil {
			return nil, fmt.Errorf("deflate decompress: %w", err)
		}
		return out.Bytes(), nil

	case LZ4:
		if uncompressedSize <= 0 {
			return nil, fmt.Errorf("lz4 decompress: unknown uncompressed size")
		}
		dst := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(data, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 uncompress block: %w", err)
		}
		return dst[:n], nil

	case Zstd:
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer decoder.Close()
		return decoder.DecodeAll(data, make([]byte, 0, uncompressedSize))

	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}
