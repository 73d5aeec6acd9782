package scan

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/hugr-lab/firebridge/value"
)

// appendValue writes one decoded value into the column builder. The
// codec already resolved type mismatches to nil, so anything that still
// does not fit the builder becomes a null.
func appendValue(b array.Builder, v any) {
	if v == nil {
		b.AppendNull()
		return
	}

	switch bld := b.(type) {
	case *array.StringBuilder:
		if s, ok := v.(string); ok {
			bld.Append(s)
			return
		}
	case *array.Int64Builder:
		if n, ok := v.(int64); ok {
			bld.Append(n)
			return
		}
	case *array.Float64Builder:
		if f, ok := v.(float64); ok {
			bld.Append(f)
			return
		}
	case *array.BooleanBuilder:
		if t, ok := v.(bool); ok {
			bld.Append(t)
			return
		}
	case *array.TimestampBuilder:
		if ts, ok := v.(arrow.Timestamp); ok {
			bld.Append(ts)
			return
		}
	case *array.BinaryBuilder:
		if raw, ok := v.([]byte); ok {
			bld.Append(raw)
			return
		}
	case *array.StructBuilder:
		if gp, ok := v.(value.GeoPoint); ok {
			bld.Append(true)
			bld.FieldBuilder(0).(*array.Float64Builder).Append(gp.Latitude)
			bld.FieldBuilder(1).(*array.Float64Builder).Append(gp.Longitude)
			return
		}
	case *array.ListBuilder:
		if elems, ok := v.([]any); ok {
			bld.Append(true)
			for _, e := range elems {
				appendValue(bld.ValueBuilder(), e)
			}
			return
		}
	case *array.FixedSizeListBuilder:
		if elems, ok := v.([]any); ok {
			bld.Append(true)
			for _, e := range elems {
				appendValue(bld.ValueBuilder(), e)
			}
			return
		}
	}
	b.AppendNull()
}
