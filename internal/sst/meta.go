package sst

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/tephradb/tephra/internal/columnar"
	"github.com/tephradb/tephra/internal/manifest"
)

// MetaKey is the footer key/value entry key holding the metadata envelope.
const MetaKey = "meta"

// metaValueHeader is the envelope version tag. Decoding fails on any other
// value so future revisions can change the payload layout.
const metaValueHeader byte = 0x00

// StorageFormat selects how record batches are laid out in the file.
type StorageFormat uint8

const (
	// FormatColumnar stores one physical row per logical row.
	FormatColumnar StorageFormat = 0
	// FormatHybrid stores one physical row per series per row group, with
	// collapsible columns packed as lists.
	FormatHybrid StorageFormat = 1
)

// String returns the format name.
func (f StorageFormat) String() string {
	switch f {
	case FormatColumnar:
		return "columnar"
	case FormatHybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// StorageFormatOpts is the format selector plus the hybrid bookkeeping the
// decoder needs.
type StorageFormatOpts struct {
	Format StorageFormat

	// CollapsibleColsIdx holds the original indices of collapsible columns.
	// Populated only for FormatHybrid.
	CollapsibleColsIdx []uint32
}

// MetaData is the per-file metadata embedded in the footer.
type MetaData struct {
	MinKey      []byte
	MaxKey      []byte
	TimeRange   manifest.TimeRange
	MaxSequence uint64
	Schema      *columnar.Schema
	RowNum      uint64
	Size        uint64

	StorageFormatOpts StorageFormatOpts

	// BloomFilter is the serialized row-key filter; nil when absent.
	BloomFilter []byte
}

// KeyValue is one footer metadata entry.
type KeyValue struct {
	Key   string
	Value string
}

// EncodeMetaData encodes meta into the footer key/value entry:
// key "meta", value base64(header byte || protobuf payload).
func EncodeMetaData(meta *MetaData) (KeyValue, error) {
	pb, err := marshalMetaData(meta)
	if err != nil {
		return KeyValue{}, fmt.Errorf("%w: %v", ErrEncodeIntoPb, err)
	}

	buf := make([]byte, 0, len(pb)+1)
	buf = append(buf, metaValueHeader)
	buf = append(buf, pb...)

	return KeyValue{
		Key:   MetaKey,
		Value: base64.StdEncoding.EncodeToString(buf),
	}, nil
}

// DecodeMetaData decodes the footer key/value entry back into metadata,
// validating every envelope layer.
func DecodeMetaData(kv KeyValue) (*MetaData, error) {
	if kv.Key != MetaKey {
		return nil, fmt.Errorf("%w: expect %q, given %q", ErrInvalidMetaKey, MetaKey, kv.Key)
	}
	if kv.Value == "" {
		return nil, fmt.Errorf("%w", ErrInvalidBase64MetaValueLen)
	}

	raw, err := base64.StdEncoding.DecodeString(kv.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: value %q: %v", ErrDecodeBase64MetaValue, kv.Value, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: value %q", ErrInvalidMetaValueLen, kv.Value)
	}
	if raw[0] != metaValueHeader {
		return nil, fmt.Errorf("%w: got 0x%02x, value %q", ErrInvalidMetaValueHeader, raw[0], kv.Value)
	}

	meta, err := unmarshalMetaData(raw[1:])
	if err != nil {
		if errors.Is(err, ErrConvertMetaData) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: value %q: %v", ErrDecodeFromPb, kv.Value, err)
	}
	return meta, nil
}
