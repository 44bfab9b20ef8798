package events

import (
	"bytes"
	"context"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/histfill/pkg/errors"
)

// decodeAvro reads an object container file into record batches of the
// configured schema. Avro fields missing from the schema are ignored.
func decodeAvro(_ context.Context, data []byte, opts decodeOptions) (array.RecordReader, error) {
	if opts.schema == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "avro input needs a schema")
	}
	ocf, err := goavro.NewOCFReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid avro container")
	}

	b := array.NewRecordBuilder(opts.mem, opts.schema)
	defer b.Release()

	var recs []arrow.Record
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()

	rows := 0
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "cannot read avro datum").WithDetail("row", rows)
		}
		m, ok := datum.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "avro datum is %T, want a record", datum)
		}
		for i, f := range opts.schema.Fields() {
			if err := appendValue(b.Field(i), m[f.Name]); err != nil {
				return nil, errors.Wrap(err, "", "cannot convert avro field").
					WithDetail("field", f.Name).
					WithDetail("row", rows)
			}
		}
		rows++
		if rows%opts.batchSize == 0 {
			recs = append(recs, b.NewRecord())
		}
	}
	if err := ocf.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "cannot read avro container")
	}
	if rows%opts.batchSize != 0 || rows == 0 {
		recs = append(recs, b.NewRecord())
	}
	return array.NewRecordReader(opts.schema, recs)
}

// appendValue appends a goavro native value to b. Unions arrive as
// single-entry maps keyed by the branch type and are unwrapped.
func appendValue(b array.Builder, v interface{}) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	if m, ok := v.(map[string]interface{}); ok && len(m) == 1 && !isStructMember(b, m) {
		for _, inner := range m {
			return appendValue(b, inner)
		}
	}

	switch bb := b.(type) {
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return mismatch(b, v)
		}
		bb.Append(x)
	case *array.Float64Builder:
		x, ok := toFloat(v)
		if !ok {
			return mismatch(b, v)
		}
		bb.Append(x)
	case *array.Float32Builder:
		x, ok := toFloat(v)
		if !ok {
			return mismatch(b, v)
		}
		bb.Append(float32(x))
	case *array.Int64Builder:
		x, ok := toInt(v)
		if !ok {
			return mismatch(b, v)
		}
		bb.Append(x)
	case *array.Int32Builder:
		x, ok := toInt(v)
		if !ok || x < math.MinInt32 || x > math.MaxInt32 {
			return mismatch(b, v)
		}
		bb.Append(int32(x))
	case *array.Int16Builder:
		x, ok := toInt(v)
		if !ok || x < math.MinInt16 || x > math.MaxInt16 {
			return mismatch(b, v)
		}
		bb.Append(int16(x))
	case *array.Int8Builder:
		x, ok := toInt(v)
		if !ok || x < math.MinInt8 || x > math.MaxInt8 {
			return mismatch(b, v)
		}
		bb.Append(int8(x))
	case *array.Uint64Builder:
		x, ok := toInt(v)
		if !ok || x < 0 {
			return mismatch(b, v)
		}
		bb.Append(uint64(x))
	case *array.Uint32Builder:
		x, ok := toInt(v)
		if !ok || x < 0 || x > math.MaxUint32 {
			return mismatch(b, v)
		}
		bb.Append(uint32(x))
	case *array.Uint16Builder:
		x, ok := toInt(v)
		if !ok || x < 0 || x > math.MaxUint16 {
			return mismatch(b, v)
		}
		bb.Append(uint16(x))
	case *array.Uint8Builder:
		x, ok := toInt(v)
		if !ok || x < 0 || x > math.MaxUint8 {
			return mismatch(b, v)
		}
		bb.Append(uint8(x))
	case *array.StringBuilder:
		x, ok := v.(string)
		if !ok {
			return mismatch(b, v)
		}
		bb.Append(x)
	case *array.LargeStringBuilder:
		x, ok := v.(string)
		if !ok {
			return mismatch(b, v)
		}
		bb.Append(x)
	case *array.ListBuilder:
		items, ok := v.([]interface{})
		if !ok {
			return mismatch(b, v)
		}
		bb.Append(true)
		for _, item := range items {
			if err := appendValue(bb.ValueBuilder(), item); err != nil {
				return err
			}
		}
	case *array.LargeListBuilder:
		items, ok := v.([]interface{})
		if !ok {
			return mismatch(b, v)
		}
		bb.Append(true)
		for _, item := range items {
			if err := appendValue(bb.ValueBuilder(), item); err != nil {
				return err
			}
		}
	case *array.StructBuilder:
		m, ok := v.(map[string]interface{})
		if !ok {
			return mismatch(b, v)
		}
		bb.Append(true)
		st := bb.Type().(*arrow.StructType)
		for i, f := range st.Fields() {
			if err := appendValue(bb.FieldBuilder(i), m[f.Name]); err != nil {
				return err
			}
		}
	default:
		return errors.New(errors.ErrorTypeData, "unsupported schema type for avro input").
			WithDetail("type", b.Type().String())
	}
	return nil
}

// isStructMember reports whether the single key of m is a member of the
// struct built by b, which tells a record apart from a union wrapper
func isStructMember(b array.Builder, m map[string]interface{}) bool {
	sb, ok := b.(*array.StructBuilder)
	if !ok {
		return false
	}
	st := sb.Type().(*arrow.StructType)
	for k := range m {
		_, found := st.FieldIdx(k)
		return found
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}

func toInt(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int:
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case float64:
		if x == math.Trunc(x) {
			return int64(x), true
		}
	}
	return 0, false
}

func mismatch(b array.Builder, v interface{}) error {
	return errors.Newf(errors.ErrorTypeData, "cannot store %T in %s column", v, b.Type())
}
