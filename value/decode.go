package value

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
)

// Decode converts an envelope to a Go value for the given Arrow type.
// It is total: a semantic mismatch yields nil (a SQL NULL) and a debug
// log line, never an error. One conversion is attempted on mismatch:
// string to numeric/timestamp via lexical parse, integer to double via
// widening. Documents within a collection are heterogeneous in practice
// and a single outlier must not abort a scan.
//
// Return types by target: string, int64, float64, bool,
// arrow.Timestamp (microseconds), []byte, GeoPoint, and []any for list
// and fixed-size list targets (nil slots are NULL elements).
func Decode(v Value, dt arrow.DataType) any {
	if v.IsNull() {
		return nil
	}

	switch dt.ID() {
	case arrow.STRING:
		return decodeString(v)
	case arrow.INT64:
		return decodeInt64(v)
	case arrow.FLOAT64:
		return decodeFloat64(v)
	case arrow.BOOL:
		if v.BooleanValue != nil {
			return *v.BooleanValue
		}
		return mismatch(v, dt)
	case arrow.TIMESTAMP:
		return decodeTimestamp(v)
	case arrow.BINARY:
		if v.BytesValue != nil {
			if raw := v.BytesRaw(); raw != nil {
				return raw
			}
		}
		return mismatch(v, dt)
	case arrow.STRUCT:
		if IsGeoPointType(dt) && v.GeoPointValue != nil {
			return *v.GeoPointValue
		}
		return mismatch(v, dt)
	case arrow.LIST:
		return decodeList(v, dt.(*arrow.ListType).Elem())
	case arrow.FIXED_SIZE_LIST:
		fsl := dt.(*arrow.FixedSizeListType)
		return decodeFixedSizeList(v, int(fsl.Len()))
	}
	return mismatch(v, dt)
}

func mismatch(v Value, dt arrow.DataType) any {
	slog.Debug("value does not convert to column type",
		"kind", string(v.Kind()), "target", dt.String())
	return nil
}

func decodeString(v Value) any {
	switch {
	case v.StringValue != nil:
		return *v.StringValue
	case v.ReferenceValue != nil:
		return *v.ReferenceValue
	case v.TimestampValue != nil:
		return *v.TimestampValue
	case v.IntegerValue != nil:
		return strconv.FormatInt(int64(*v.IntegerValue), 10)
	case v.DoubleValue != nil:
		return strconv.FormatFloat(*v.DoubleValue, 'g', -1, 64)
	case v.BooleanValue != nil:
		if *v.BooleanValue {
			return "true"
		}
		return "false"
	case v.GeoPointValue != nil:
		b, err := json.Marshal(v.GeoPointValue)
		if err != nil {
			return nil
		}
		return string(b)
	case v.MapValue != nil:
		// Nested maps surface as the JSON of their envelope fields.
		b, err := json.Marshal(v.MapValue.Fields)
		if err != nil {
			return nil
		}
		return string(b)
	case v.ArrayValue != nil:
		return arrayToJSON(v)
	case v.BytesValue != nil:
		return *v.BytesValue
	}
	return nil
}

func decodeInt64(v Value) any {
	switch {
	case v.IntegerValue != nil:
		return int64(*v.IntegerValue)
	case v.StringValue != nil:
		n, err := strconv.ParseInt(*v.StringValue, 10, 64)
		if err != nil {
			slog.Debug("integer parse failed", "input", *v.StringValue)
			return nil
		}
		return n
	}
	return mismatch(v, arrow.PrimitiveTypes.Int64)
}

func decodeFloat64(v Value) any {
	switch {
	case v.DoubleValue != nil:
		return *v.DoubleValue
	case v.IntegerValue != nil:
		return float64(*v.IntegerValue)
	case v.StringValue != nil:
		f, err := strconv.ParseFloat(*v.StringValue, 64)
		if err != nil {
			slog.Debug("double parse failed", "input", *v.StringValue)
			return nil
		}
		return f
	}
	return mismatch(v, arrow.PrimitiveTypes.Float64)
}

func decodeTimestamp(v Value) any {
	var raw string
	switch {
	case v.TimestampValue != nil:
		raw = *v.TimestampValue
	case v.StringValue != nil:
		raw = *v.StringValue
	default:
		return mismatch(v, TimestampType)
	}
	t, err := ParseTimestamp(raw)
	if err != nil {
		slog.Debug("timestamp parse failed", "input", raw)
		return nil
	}
	return arrow.Timestamp(t.UnixMicro())
}

func decodeList(v Value, elem arrow.DataType) any {
	// A vector envelope read through a plain float64 list target.
	if v.IsVector() && elem.ID() == arrow.FLOAT64 {
		vec := v.VectorValues()
		out := make([]any, len(vec))
		for i, f := range vec {
			out[i] = f
		}
		return out
	}
	if v.ArrayValue == nil {
		return mismatch(v, arrow.ListOf(elem))
	}
	out := make([]any, len(v.ArrayValue.Values))
	for i, e := range v.ArrayValue.Values {
		out[i] = Decode(e, elem)
	}
	return out
}

func decodeFixedSizeList(v Value, n int) any {
	var vec []float64
	switch {
	case v.IsVector():
		vec = v.VectorValues()
	case v.ArrayValue != nil:
		vec = make([]float64, 0, len(v.ArrayValue.Values))
		for _, e := range v.ArrayValue.Values {
			if f, ok := Decode(e, arrow.PrimitiveTypes.Float64).(float64); ok {
				vec = append(vec, f)
			} else {
				vec = append(vec, 0)
			}
		}
	default:
		return mismatch(v, VectorType(n))
	}

	// Honor the column dimension: truncate surplus, pad with nulls.
	out := make([]any, n)
	for i := 0; i < n && i < len(vec); i++ {
		out[i] = vec[i]
	}
	return out
}

// arrayToJSON serializes an array envelope to a JSON string, used when
// a nested array lands in a string-typed slot.
func arrayToJSON(v Value) string {
	elems := make([]any, 0, len(v.ArrayValue.Values))
	for _, e := range v.ArrayValue.Values {
		if e.IsNull() {
			elems = append(elems, nil)
			continue
		}
		elems = append(elems, decodeString(e))
	}
	b, err := json.Marshal(elems)
	if err != nil {
		return "[]"
	}
	return string(b)
}
