package sst

import (
	"fmt"

	"github.com/tephradb/tephra/internal/columnar"
	"github.com/tephradb/tephra/internal/compression"
	"github.com/tephradb/tephra/internal/filter"
)

// RecordEncoder writes record batches into an SST container in either the
// columnar or the hybrid format. The format split is a tagged variant, not
// an interface: both arms share the writer and differ only in how a batch
// becomes physical rows.
//
// The encoder is single-use: Encode after Close fails with ErrEncoderClosed.
type RecordEncoder struct {
	format StorageFormat
	writer *Writer
	meta   *MetaData

	// logicalSchema is the schema of input batches.
	logicalSchema *columnar.Schema
	// hybridSchema is the physical schema; nil in columnar mode.
	hybridSchema *columnar.Schema

	// filterBuilder accumulates series-id keys; the finished filter is
	// stored in the footer meta at Close.
	filterBuilder *filter.BloomFilterBuilder

	closed bool
}

// filterBitsPerKey targets roughly a 1% false-positive rate.
const filterBitsPerKey = 10

// NewRecordEncoder creates an encoder for the format named by
// meta.StorageFormatOpts. For the hybrid format the collapsible column
// indices are collected into the stored metadata here, so the decoder can
// locate its offset source.
func NewRecordEncoder(numRowsPerRowGroup int, comp compression.Type, meta *MetaData) (*RecordEncoder, error) {
	e := &RecordEncoder{
		format:        meta.StorageFormatOpts.Format,
		meta:          meta,
		logicalSchema: meta.Schema,
	}

	if e.format == FormatHybrid {
		hybridSchema, err := BuildHybridSchema(meta.Schema)
		if err != nil {
			return nil, err
		}
		e.hybridSchema = hybridSchema
		meta.StorageFormatOpts.CollapsibleColsIdx = CollectCollapsibleColsIdx(meta.Schema)
	}

	if meta.Schema.TsidIndex() >= 0 {
		e.filterBuilder = filter.NewBloomFilterBuilder(filterBitsPerKey)
	}

	e.writer = NewWriter(WriterOptions{
		Compression:        comp,
		NumRowsPerRowGroup: numRowsPerRowGroup,
	})
	return e, nil
}

// addToFilter records every row's series-id key.
func (e *RecordEncoder) addToFilter(batch *columnar.RecordBatch) {
	if e.filterBuilder == nil {
		return
	}
	tsid := batch.Column(e.logicalSchema.TsidIndex())
	for i := 0; i < tsid.Len(); i++ {
		e.filterBuilder.AddKey(tsid.FixedValueAt(i))
	}
}

// Encode writes the batches and returns the number of physical rows written.
// In hybrid mode each call produces exactly one row group, so row-group
// boundaries coincide with series-list boundaries.
func (e *RecordEncoder) Encode(batches []*columnar.RecordBatch) (int, error) {
	if e.closed {
		return 0, ErrEncoderClosed
	}
	if len(batches) == 0 {
		return 0, nil
	}

	for _, batch := range batches {
		e.addToFilter(batch)
	}

	switch e.format {
	case FormatHybrid:
		hybrid, err := convertToHybridBatch(e.hybridSchema, batches)
		if err != nil {
			return 0, err
		}
		if err := e.writer.WriteRowGroup(hybrid); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrEncodeRecordBatch, err)
		}
		return hybrid.NumRows(), nil

	default:
		flat, err := columnar.ConcatBatches(e.logicalSchema, batches)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrEncodeRecordBatch, err)
		}
		if err := e.writer.Write(flat); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrEncodeRecordBatch, err)
		}
		return flat.NumRows(), nil
	}
}

// Close finalizes the footer metadata (including the series-id filter),
// flushes, and returns the complete file bytes. Further Encode calls are
// rejected.
func (e *RecordEncoder) Close() ([]byte, error) {
	if e.closed {
		return nil, ErrEncoderClosed
	}
	e.closed = true

	if e.filterBuilder != nil && e.filterBuilder.NumKeys() > 0 {
		e.meta.BloomFilter = e.filterBuilder.Finish()
	}
	kv, err := EncodeMetaData(e.meta)
	if err != nil {
		return nil, err
	}
	e.writer.AppendKeyValueMetadata(kv)

	return e.writer.Close()
}

// RecordDecoder converts physical record batches read from a file back into
// the flat columnar layout.
type RecordDecoder struct {
	opts StorageFormatOpts
}

// NewRecordDecoder creates a decoder for the given stored format options.
func NewRecordDecoder(opts StorageFormatOpts) *RecordDecoder {
	return &RecordDecoder{opts: opts}
}

// Decode returns the batch unchanged for columnar files and stretches hybrid
// batches back into one logical row per list element.
func (d *RecordDecoder) Decode(batch *columnar.RecordBatch) (*columnar.RecordBatch, error) {
	if d.opts.Format != FormatHybrid {
		return batch, nil
	}
	return d.decodeHybrid(batch)
}

func (d *RecordDecoder) decodeHybrid(batch *columnar.RecordBatch) (*columnar.RecordBatch, error) {
	if len(d.opts.CollapsibleColsIdx) == 0 {
		return nil, ErrCollapsibleColsIdxEmpty
	}

	// The first collapsible column's offset buffer defines how many logical
	// rows each physical row expands to.
	first := batch.Column(int(d.opts.CollapsibleColsIdx[0]))
	offsetsBuf := first.OffsetsBuffer()
	if offsetsBuf == nil {
		return nil, fmt.Errorf("%w: column %d has no offset buffer", ErrCollapsibleColsIdxEmpty, d.opts.CollapsibleColsIdx[0])
	}
	valueOffsets := columnar.DecodeOffsets(offsetsBuf)

	stretchedSchema, err := convertStretchedSchema(batch.Schema())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeRecordBatch, err)
	}

	cols := make([]*columnar.Array, batch.NumColumns())
	for i, arr := range batch.Columns() {
		switch {
		case arr.Type() == columnar.TypeList:
			// The child already has one entry per logical row.
			cols[i] = arr.Child()
		case arr.Type() == columnar.TypeString:
			stretched, err := stretchVariableLengthColumn(arr, valueOffsets)
			if err != nil {
				return nil, err
			}
			cols[i] = stretched
		default:
			stretched, err := stretchFixedLengthColumn(arr, arr.Type().FixedSize(), valueOffsets)
			if err != nil {
				return nil, err
			}
			cols[i] = stretched
		}
	}

	out, err := columnar.NewRecordBatch(stretchedSchema, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeRecordBatch, err)
	}
	return out, nil
}
