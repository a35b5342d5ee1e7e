package sst

import (
	"github.com/pkg/errors"

	"github.com/tephradb/tephra/internal/checksum"
	"github.com/tephradb/tephra/internal/columnar"
	"github.com/tephradb/tephra/internal/compression"
	"github.com/tephradb/tephra/internal/encoding"
)

// Reader opens an SST container from its complete byte contents and serves
// the decoded metadata and physical row groups.
type Reader struct {
	data []byte

	checksumType checksum.Type
	kvs          []KeyValue
	meta         *MetaData
	rowGroups    []rowGroupMeta

	// physicalSchema describes the stored batches: the hybrid schema for
	// hybrid files, the logical schema otherwise.
	physicalSchema *columnar.Schema
}

// OpenReader parses the footer, index, and metadata envelope.
func OpenReader(data []byte) (*Reader, error) {
	if len(data) < footerSize {
		return nil, errors.Errorf("sst: file too small: %d bytes", len(data))
	}

	footer := data[len(data)-footerSize:]
	metaHandle := decodeHandle(footer)
	indexHandle := decodeHandle(footer[handleEncodedSize:])
	ckType := checksum.Type(footer[2*handleEncodedSize])
	version := encoding.DecodeFixed32(footer[2*handleEncodedSize+1:])
	magic := encoding.DecodeFixed64(footer[2*handleEncodedSize+5:])

	if magic != MagicNumber {
		return nil, errors.Errorf("sst: bad magic number %#x", magic)
	}
	if version != FormatVersion {
		return nil, errors.Errorf("sst: unsupported format version %d", version)
	}

	r := &Reader{data: data, checksumType: ckType}

	metaBlock, err := r.readChunk(metaHandle)
	if err != nil {
		return nil, errors.Wrap(err, "sst: read meta block")
	}
	if r.kvs, err = deserializeKeyValues(metaBlock); err != nil {
		return nil, errors.Wrap(err, "sst: parse meta block")
	}

	indexBlock, err := r.readChunk(indexHandle)
	if err != nil {
		return nil, errors.Wrap(err, "sst: read index block")
	}
	if r.rowGroups, err = deserializeIndex(indexBlock); err != nil {
		return nil, errors.Wrap(err, "sst: parse index block")
	}

	kv, ok := r.findKeyValue(MetaKey)
	if !ok {
		return nil, errors.WithStack(ErrBase64MetaValueNotFound)
	}
	if r.meta, err = DecodeMetaData(kv); err != nil {
		return nil, err
	}

	if r.meta.StorageFormatOpts.Format == FormatHybrid {
		r.physicalSchema, err = BuildHybridSchema(r.meta.Schema)
		if err != nil {
			return nil, err
		}
	} else {
		r.physicalSchema = r.meta.Schema
	}

	return r, nil
}

func (r *Reader) findKeyValue(key string) (KeyValue, bool) {
	for _, kv := range r.kvs {
		if kv.Key == key {
			return kv, true
		}
	}
	return KeyValue{}, false
}

// readChunk verifies the trailer checksum and decompresses the payload.
func (r *Reader) readChunk(h handle) ([]byte, error) {
	end := h.Offset + h.Size + chunkTrailerSize
	if end > uint64(len(r.data)) {
		return nil, errors.Errorf("chunk at %d..%d beyond file end %d", h.Offset, end, len(r.data))
	}
	payload := r.data[h.Offset : h.Offset+h.Size]
	trailer := r.data[h.Offset+h.Size : end]

	ct := compression.Type(trailer[0])
	want := encoding.DecodeFixed32(trailer[1:])
	if got := checksum.Compute(r.checksumType, payload, trailer[0]); got != want {
		return nil, errors.Errorf("chunk at %d: checksum mismatch: got %#x, want %#x", h.Offset, got, want)
	}

	return compression.Decompress(ct, payload, int(h.RawSize))
}

// MetaData returns the decoded footer metadata.
func (r *Reader) MetaData() *MetaData {
	return r.meta
}

// KeyValueMetadata returns all footer key/value entries.
func (r *Reader) KeyValueMetadata() []KeyValue {
	return r.kvs
}

// PhysicalSchema returns the schema of the stored batches.
func (r *Reader) PhysicalSchema() *columnar.Schema {
	return r.physicalSchema
}

// NumRowGroups returns the number of row groups in the file.
func (r *Reader) NumRowGroups() int {
	return len(r.rowGroups)
}

// RowGroup reads the i-th row group as a physical record batch. Hybrid
// batches come back in hybrid layout; pass them through a RecordDecoder to
// stretch them flat.
func (r *Reader) RowGroup(i int) (*columnar.RecordBatch, error) {
	g := r.rowGroups[i]
	cols := make([]*columnar.Array, 0, len(g.chunks))
	for j, h := range g.chunks {
		payload, err := r.readChunk(h)
		if err != nil {
			return nil, errors.Wrapf(err, "sst: read row group %d column %d", i, j)
		}
		arr, err := deserializeArray(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "sst: parse row group %d column %d", i, j)
		}
		cols = append(cols, arr)
	}
	batch, err := columnar.NewRecordBatch(r.physicalSchema, cols)
	if err != nil {
		return nil, errors.Wrapf(err, "sst: assemble row group %d", i)
	}
	return batch, nil
}
