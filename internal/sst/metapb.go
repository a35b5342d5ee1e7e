package sst

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tephradb/tephra/internal/columnar"
	"github.com/tephradb/tephra/internal/manifest"
)

// Protobuf wire layout of the metadata payload. Field numbers are part of
// the on-disk format and must not be reassigned.
//
//	message SstMetaData {
//	  bytes min_key = 1;
//	  bytes max_key = 2;
//	  TimeRange time_range = 3;
//	  uint64 max_sequence = 4;
//	  Schema schema = 5;
//	  uint64 row_num = 6;
//	  uint64 size = 7;
//	  StorageFormatOptions storage_format_opts = 8;
//	  bytes bloom_filter = 9;
//	}
//	message TimeRange { sint64 inclusive_start = 1; sint64 exclusive_end = 2; }
//	message Schema { repeated Column columns = 1; uint64 tsid_idx_plus_one = 2; }
//	message Column { string name = 1; uint32 type = 2; uint32 elem = 3; bool collapsible = 4; }
//	message StorageFormatOptions { uint32 format = 1; repeated uint32 collapsible_cols_idx = 2 [packed]; }

func marshalMetaData(meta *MetaData) ([]byte, error) {
	var buf []byte

	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, meta.MinKey)
	buf = protowire.AppendTag(buf, 2, protowire.BytesType)
	buf = protowire.AppendBytes(buf, meta.MaxKey)

	buf = protowire.AppendTag(buf, 3, protowire.BytesType)
	buf = protowire.AppendBytes(buf, marshalTimeRange(meta.TimeRange))

	buf = protowire.AppendTag(buf, 4, protowire.VarintType)
	buf = protowire.AppendVarint(buf, meta.MaxSequence)

	if meta.Schema == nil {
		return nil, fmt.Errorf("meta data has no schema")
	}
	buf = protowire.AppendTag(buf, 5, protowire.BytesType)
	buf = protowire.AppendBytes(buf, marshalSchema(meta.Schema))

	buf = protowire.AppendTag(buf, 6, protowire.VarintType)
	buf = protowire.AppendVarint(buf, meta.RowNum)
	buf = protowire.AppendTag(buf, 7, protowire.VarintType)
	buf = protowire.AppendVarint(buf, meta.Size)

	buf = protowire.AppendTag(buf, 8, protowire.BytesType)
	buf = protowire.AppendBytes(buf, marshalFormatOpts(meta.StorageFormatOpts))

	if len(meta.BloomFilter) > 0 {
		buf = protowire.AppendTag(buf, 9, protowire.BytesType)
		buf = protowire.AppendBytes(buf, meta.BloomFilter)
	}
	return buf, nil
}

func marshalTimeRange(r manifest.TimeRange) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(r.InclusiveStart))
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(r.ExclusiveEnd))
	return buf
}

func marshalSchema(schema *columnar.Schema) []byte {
	var buf []byte
	for _, col := range schema.Columns() {
		buf = protowire.AppendTag(buf, 1, protowire.BytesType)
		buf = protowire.AppendBytes(buf, marshalColumn(col))
	}
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(schema.TsidIndex()+1))
	return buf
}

func marshalColumn(col columnar.ColumnSchema) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendString(buf, col.Name)
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(col.Type))
	if col.Elem != columnar.TypeInvalid {
		buf = protowire.AppendTag(buf, 3, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(col.Elem))
	}
	if col.Collapsible {
		buf = protowire.AppendTag(buf, 4, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	return buf
}

func marshalFormatOpts(opts StorageFormatOpts) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(opts.Format))
	if len(opts.CollapsibleColsIdx) > 0 {
		var packed []byte
		for _, idx := range opts.CollapsibleColsIdx {
			packed = protowire.AppendVarint(packed, uint64(idx))
		}
		buf = protowire.AppendTag(buf, 2, protowire.BytesType)
		buf = protowire.AppendBytes(buf, packed)
	}
	return buf
}

func unmarshalMetaData(data []byte) (*MetaData, error) {
	meta := &MetaData{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case 1, 2, 9:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			cp := append([]byte(nil), v...)
			switch num {
			case 1:
				meta.MinKey = cp
			case 2:
				meta.MaxKey = cp
			case 9:
				meta.BloomFilter = cp
			}
			data = data[n:]
		case 3:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			tr, err := unmarshalTimeRange(v)
			if err != nil {
				return nil, err
			}
			meta.TimeRange = tr
			data = data[n:]
		case 4, 6, 7:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			switch num {
			case 4:
				meta.MaxSequence = v
			case 6:
				meta.RowNum = v
			case 7:
				meta.Size = v
			}
			data = data[n:]
		case 5:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			schema, err := unmarshalSchema(v)
			if err != nil {
				return nil, err
			}
			meta.Schema = schema
			data = data[n:]
		case 8:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			opts, err := unmarshalFormatOpts(v)
			if err != nil {
				return nil, err
			}
			meta.StorageFormatOpts = opts
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}

	if meta.Schema == nil {
		return nil, fmt.Errorf("%w: schema field missing", ErrConvertMetaData)
	}
	return meta, nil
}

func unmarshalTimeRange(data []byte) (manifest.TimeRange, error) {
	var tr manifest.TimeRange
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return tr, protowire.ParseError(n)
		}
		data = data[n:]
		if typ != protowire.VarintType {
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return tr, protowire.ParseError(n)
			}
			data = data[n:]
			continue
		}
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return tr, protowire.ParseError(n)
		}
		switch num {
		case 1:
			tr.InclusiveStart = protowire.DecodeZigZag(v)
		case 2:
			tr.ExclusiveEnd = protowire.DecodeZigZag(v)
		}
		data = data[n:]
	}
	return tr, nil
}

func unmarshalSchema(data []byte) (*columnar.Schema, error) {
	var cols []columnar.ColumnSchema
	tsidIdx := -1
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			col, err := unmarshalColumn(v)
			if err != nil {
				return nil, err
			}
			cols = append(cols, col)
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			tsidIdx = int(v) - 1
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	schema, err := columnar.NewSchema(cols, tsidIdx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConvertMetaData, err)
	}
	return schema, nil
}

func unmarshalColumn(data []byte) (columnar.ColumnSchema, error) {
	var col columnar.ColumnSchema
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return col, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return col, protowire.ParseError(n)
			}
			col.Name = v
			data = data[n:]
		case 2, 3, 4:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return col, protowire.ParseError(n)
			}
			switch num {
			case 2:
				col.Type = columnar.DataType(v)
			case 3:
				col.Elem = columnar.DataType(v)
			case 4:
				col.Collapsible = v != 0
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return col, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	if col.Type == columnar.TypeInvalid {
		return col, fmt.Errorf("%w: column %q has no type", ErrConvertMetaData, col.Name)
	}
	return col, nil
}

func unmarshalFormatOpts(data []byte) (StorageFormatOpts, error) {
	var opts StorageFormatOpts
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return opts, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return opts, protowire.ParseError(n)
			}
			opts.Format = StorageFormat(v)
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return opts, protowire.ParseError(n)
			}
			for len(v) > 0 {
				idx, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return opts, protowire.ParseError(m)
				}
				opts.CollapsibleColsIdx = append(opts.CollapsibleColsIdx, uint32(idx))
				v = v[m:]
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return opts, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return opts, nil
}
