package sst

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/tephradb/tephra/internal/columnar"
	"github.com/tephradb/tephra/internal/manifest"
)

func buildTestSchema(t *testing.T) *columnar.Schema {
	t.Helper()
	schema, err := columnar.NewSchema([]columnar.ColumnSchema{
		{Name: "tsid", Type: columnar.TypeUint64},
		{Name: "timestamp", Type: columnar.TypeTimestamp, Collapsible: true},
		{Name: "host", Type: columnar.TypeString},
		{Name: "region", Type: columnar.TypeString},
		{Name: "value", Type: columnar.TypeInt32, Collapsible: true},
		{Name: "string_value", Type: columnar.TypeString, Collapsible: true},
	}, 0)
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	return schema
}

func buildTestMetaData(t *testing.T, format StorageFormat) *MetaData {
	t.Helper()
	return &MetaData{
		MinKey:            []byte("100"),
		MaxKey:            []byte("200"),
		TimeRange:         manifest.TimeRange{InclusiveStart: 100, ExclusiveEnd: 101},
		MaxSequence:       200,
		Schema:            buildTestSchema(t),
		RowNum:            4,
		Size:              10,
		StorageFormatOpts: StorageFormatOpts{Format: format},
	}
}

// TestMetaDataRoundTrip checks decode(encode(m)) == m.
func TestMetaDataRoundTrip(t *testing.T) {
	meta := buildTestMetaData(t, FormatHybrid)
	meta.StorageFormatOpts.CollapsibleColsIdx = []uint32{1, 4, 5}
	meta.BloomFilter = []byte{0x01, 0x02, 0x03}

	kv, err := EncodeMetaData(meta)
	if err != nil {
		t.Fatalf("EncodeMetaData failed: %v", err)
	}
	if kv.Key != MetaKey {
		t.Errorf("key = %q, want %q", kv.Key, MetaKey)
	}

	decoded, err := DecodeMetaData(kv)
	if err != nil {
		t.Fatalf("DecodeMetaData failed: %v", err)
	}

	if string(decoded.MinKey) != "100" || string(decoded.MaxKey) != "200" {
		t.Errorf("keys = %q/%q, want 100/200", decoded.MinKey, decoded.MaxKey)
	}
	if decoded.TimeRange != meta.TimeRange {
		t.Errorf("time range = %+v, want %+v", decoded.TimeRange, meta.TimeRange)
	}
	if decoded.MaxSequence != 200 || decoded.RowNum != 4 || decoded.Size != 10 {
		t.Errorf("scalars wrong: %+v", decoded)
	}
	if !decoded.Schema.Equal(meta.Schema) {
		t.Errorf("schema did not round-trip")
	}
	if decoded.StorageFormatOpts.Format != FormatHybrid {
		t.Errorf("format = %v, want hybrid", decoded.StorageFormatOpts.Format)
	}
	if len(decoded.StorageFormatOpts.CollapsibleColsIdx) != 3 ||
		decoded.StorageFormatOpts.CollapsibleColsIdx[0] != 1 ||
		decoded.StorageFormatOpts.CollapsibleColsIdx[2] != 5 {
		t.Errorf("collapsible_cols_idx = %v, want [1 4 5]", decoded.StorageFormatOpts.CollapsibleColsIdx)
	}
	if string(decoded.BloomFilter) != string(meta.BloomFilter) {
		t.Errorf("bloom filter did not round-trip")
	}
}

// TestDecodeMetaDataErrors walks the envelope validation chain.
func TestDecodeMetaDataErrors(t *testing.T) {
	meta := buildTestMetaData(t, FormatColumnar)
	good, err := EncodeMetaData(meta)
	if err != nil {
		t.Fatalf("EncodeMetaData failed: %v", err)
	}

	cases := []struct {
		name string
		kv   KeyValue
		want error
	}{
		{
			name: "wrong key",
			kv:   KeyValue{Key: "metadata", Value: good.Value},
			want: ErrInvalidMetaKey,
		},
		{
			name: "empty value",
			kv:   KeyValue{Key: MetaKey, Value: ""},
			want: ErrInvalidBase64MetaValueLen,
		},
		{
			name: "bad base64",
			kv:   KeyValue{Key: MetaKey, Value: "!!!not-base64!!!"},
			want: ErrDecodeBase64MetaValue,
		},
		{
			name: "empty payload",
			kv:   KeyValue{Key: MetaKey, Value: base64.StdEncoding.EncodeToString(nil)},
			want: ErrInvalidBase64MetaValueLen,
		},
		{
			name: "wrong header byte",
			kv:   KeyValue{Key: MetaKey, Value: base64.StdEncoding.EncodeToString([]byte{0x01, 0x00})},
			want: ErrInvalidMetaValueHeader,
		},
		{
			name: "garbage protobuf",
			kv:   KeyValue{Key: MetaKey, Value: base64.StdEncoding.EncodeToString([]byte{0x00, 0xFF, 0xFF, 0xFF})},
			want: ErrDecodeFromPb,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeMetaData(tc.kv)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

// TestDecodeMetaDataHeaderOnly ensures a header-only payload passes the
// envelope checks but fails conversion: an empty message has no schema.
func TestDecodeMetaDataHeaderOnly(t *testing.T) {
	kv := KeyValue{Key: MetaKey, Value: base64.StdEncoding.EncodeToString([]byte{0x00})}
	_, err := DecodeMetaData(kv)
	if !errors.Is(err, ErrConvertMetaData) {
		t.Errorf("err = %v, want %v", err, ErrConvertMetaData)
	}
}
