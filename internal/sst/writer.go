package sst

import (
	"bytes"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tephradb/tephra/internal/checksum"
	"github.com/tephradb/tephra/internal/columnar"
	"github.com/tephradb/tephra/internal/compression"
	"github.com/tephradb/tephra/internal/encoding"
)

// WriterOptions configures the container writer.
type WriterOptions struct {
	// Compression is the per-chunk compression codec.
	Compression compression.Type

	// Checksum is the per-chunk checksum algorithm (default XXH3).
	Checksum checksum.Type

	// NumRowsPerRowGroup bounds row-group size for buffered writes
	// (default 8192).
	NumRowsPerRowGroup int
}

// Writer builds an SST container in memory.
//
// Write buffers rows and emits a row group whenever NumRowsPerRowGroup rows
// have accumulated; WriteRowGroup emits its batch as exactly one row group.
// Close flushes buffered rows, writes the key/value metadata block, the
// row-group index, and the footer, and returns the complete file bytes.
type Writer struct {
	opts WriterOptions

	buf    bytes.Buffer
	offset uint64

	kvs       []KeyValue
	rowGroups []rowGroupMeta

	pending *columnar.RecordBatch

	closed bool
	err    error
}

// NewWriter creates a container writer.
func NewWriter(opts WriterOptions) *Writer {
	if opts.Checksum == checksum.TypeNone {
		opts.Checksum = checksum.TypeXXH3
	}
	if opts.NumRowsPerRowGroup <= 0 {
		opts.NumRowsPerRowGroup = 8192
	}
	return &Writer{opts: opts}
}

// AppendKeyValueMetadata adds one footer key/value entry.
func (w *Writer) AppendKeyValueMetadata(kv KeyValue) {
	w.kvs = append(w.kvs, kv)
}

// Write buffers a batch, emitting full row groups of NumRowsPerRowGroup rows
// as they accumulate.
func (w *Writer) Write(batch *columnar.RecordBatch) error {
	if w.closed {
		return ErrEncoderClosed
	}
	if w.err != nil {
		return w.err
	}

	if w.pending == nil {
		w.pending = batch
	} else {
		merged, err := columnar.ConcatBatches(batch.Schema(), []*columnar.RecordBatch{w.pending, batch})
		if err != nil {
			w.err = err
			return err
		}
		w.pending = merged
	}

	for w.pending.NumRows() >= w.opts.NumRowsPerRowGroup {
		head, err := columnar.SliceBatch(w.pending, 0, w.opts.NumRowsPerRowGroup)
		if err != nil {
			w.err = err
			return err
		}
		rest, err := columnar.SliceBatch(w.pending, w.opts.NumRowsPerRowGroup, w.pending.NumRows())
		if err != nil {
			w.err = err
			return err
		}
		if err := w.emitRowGroup(head); err != nil {
			w.err = err
			return err
		}
		if rest.NumRows() == 0 {
			w.pending = nil
			break
		}
		w.pending = rest
	}
	return nil
}

// WriteRowGroup emits the batch as exactly one row group, bypassing the
// row-count bound. Buffered rows from Write are flushed first so ordering
// is preserved.
func (w *Writer) WriteRowGroup(batch *columnar.RecordBatch) error {
	if w.closed {
		return ErrEncoderClosed
	}
	if w.err != nil {
		return w.err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := w.emitRowGroup(batch); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Flush emits buffered rows as one row group. A no-op when nothing is
// buffered.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrEncoderClosed
	}
	if w.err != nil {
		return w.err
	}
	if w.pending == nil || w.pending.NumRows() == 0 {
		w.pending = nil
		return nil
	}
	batch := w.pending
	w.pending = nil
	if err := w.emitRowGroup(batch); err != nil {
		w.err = err
		return err
	}
	return nil
}

// encodedChunk is a column chunk ready to be appended to the file.
type encodedChunk struct {
	stored          []byte
	compressionType compression.Type
	rawSize         int
}

// emitRowGroup serializes and compresses every column chunk (concurrently),
// then appends them to the file in column order.
func (w *Writer) emitRowGroup(batch *columnar.RecordBatch) error {
	chunks := make([]encodedChunk, batch.NumColumns())

	var g errgroup.Group
	for i := range batch.Columns() {
		g.Go(func() error {
			payload := serializeArray(batch.Column(i))
			chunk := encodedChunk{stored: payload, compressionType: compression.None, rawSize: len(payload)}

			if w.opts.Compression != compression.None {
				compressed, err := compression.Compress(w.opts.Compression, payload)
				if err != nil {
					return fmt.Errorf("compress column %d: %w", i, err)
				}
				// Store raw when compression does not help.
				if compressed != nil && len(compressed) < len(payload) {
					chunk.stored = compressed
					chunk.compressionType = w.opts.Compression
				}
			}
			chunks[i] = chunk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	group := rowGroupMeta{numRows: batch.NumRows(), chunks: make([]handle, 0, len(chunks))}
	for _, c := range chunks {
		h, err := w.writeChunk(c.stored, c.compressionType, c.rawSize)
		if err != nil {
			return err
		}
		group.chunks = append(group.chunks, h)
	}
	w.rowGroups = append(w.rowGroups, group)
	return nil
}

// writeChunk appends payload plus the trailer (compression byte, checksum).
func (w *Writer) writeChunk(payload []byte, ct compression.Type, rawSize int) (handle, error) {
	h := handle{Offset: w.offset, Size: uint64(len(payload)), RawSize: uint64(rawSize)}

	if _, err := w.buf.Write(payload); err != nil {
		return handle{}, err
	}

	trailer := make([]byte, chunkTrailerSize)
	trailer[0] = byte(ct)
	sum := checksum.Compute(w.opts.Checksum, payload, trailer[0])
	encoding.EncodeFixed32(trailer[1:], sum)

	if _, err := w.buf.Write(trailer); err != nil {
		return handle{}, err
	}
	w.offset += uint64(len(payload) + chunkTrailerSize)
	return h, nil
}

// Close flushes buffered rows and finalizes the file. The writer cannot be
// used afterwards.
func (w *Writer) Close() ([]byte, error) {
	if w.closed {
		return nil, ErrEncoderClosed
	}
	if w.err != nil {
		return nil, w.err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	w.closed = true

	metaHandle, err := w.writeChunk(serializeKeyValues(w.kvs), compression.None, 0)
	if err != nil {
		return nil, err
	}
	indexHandle, err := w.writeChunk(serializeIndex(w.rowGroups), compression.None, 0)
	if err != nil {
		return nil, err
	}

	footer := make([]byte, 0, footerSize)
	footer = metaHandle.encodeTo(footer)
	footer = indexHandle.encodeTo(footer)
	footer = append(footer, byte(w.opts.Checksum))
	footer = encoding.AppendFixed32(footer, FormatVersion)
	footer = encoding.AppendFixed64(footer, MagicNumber)
	if _, err := w.buf.Write(footer); err != nil {
		return nil, err
	}

	return w.buf.Bytes(), nil
}

// NumRowGroups returns the number of row groups emitted so far.
func (w *Writer) NumRowGroups() int {
	return len(w.rowGroups)
}
