// Package sst implements the columnar SST file format: the self-describing
// container (row groups of compressed column chunks plus a key/value footer),
// the metadata envelope embedded in that footer, and the columnar and hybrid
// record encoders/decoders.
package sst

import (
	"errors"
)

// Codec error kinds. Callers match with errors.Is; the wrapped message
// carries enough context to locate the offending file or field.
var (
	// ErrEncodeIntoPb means the metadata could not be serialized.
	ErrEncodeIntoPb = errors.New("sst: encode meta data into protobuf")

	// ErrDecodeFromPb means the metadata protobuf payload is malformed.
	ErrDecodeFromPb = errors.New("sst: decode meta data from protobuf")

	// ErrInvalidMetaKey means the footer entry key is not "meta".
	ErrInvalidMetaKey = errors.New("sst: invalid meta key")

	// ErrBase64MetaValueNotFound means the footer has no "meta" entry.
	ErrBase64MetaValueNotFound = errors.New("sst: base64 meta value not found")

	// ErrInvalidBase64MetaValueLen means the base64 value is empty.
	ErrInvalidBase64MetaValueLen = errors.New("sst: invalid base64 meta value length")

	// ErrDecodeBase64MetaValue means the value is not valid base64.
	ErrDecodeBase64MetaValue = errors.New("sst: decode base64 meta value")

	// ErrInvalidMetaValueLen means the decoded value is empty.
	ErrInvalidMetaValueLen = errors.New("sst: invalid meta value length")

	// ErrInvalidMetaValueHeader means the version header byte is unknown.
	ErrInvalidMetaValueHeader = errors.New("sst: invalid meta value header")

	// ErrConvertMetaData means the decoded protobuf is not a usable meta.
	ErrConvertMetaData = errors.New("sst: convert sst meta data")

	// ErrEncodeRecordBatch wraps failures while encoding record batches.
	ErrEncodeRecordBatch = errors.New("sst: encode record batch")

	// ErrDecodeRecordBatch wraps failures while decoding record batches.
	ErrDecodeRecordBatch = errors.New("sst: decode record batch")

	// ErrCollapsibleColsIdxEmpty means a hybrid file's meta carries no
	// collapsible column indices, so stretching has no offset source.
	ErrCollapsibleColsIdxEmpty = errors.New("sst: collapsible_cols_idx is empty")

	// ErrTsidRequired means the schema has no series-id column.
	ErrTsidRequired = errors.New("sst: tsid is required for hybrid format")

	// ErrStringKeyColumnRequired means a non-collapsible, non-series column
	// is not string-typed.
	ErrStringKeyColumnRequired = errors.New("sst: key column must be string type")

	// ErrEncoderClosed means Encode was called after Close.
	ErrEncoderClosed = errors.New("sst: encoder already closed")
)
