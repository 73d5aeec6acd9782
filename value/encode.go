package value

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/paulmach/orb"
)

// Encode converts a plain Go value to an envelope. Used by the write
// path for caller-supplied field values. Unknown types fall back to
// their string form via the null envelope.
func Encode(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case float32:
		return Double(float64(x))
	case float64:
		return Double(x)
	case time.Time:
		return Timestamp(x)
	case []byte:
		return Bytes(x)
	case GeoPoint:
		return Geo(x.Latitude, x.Longitude)
	case orb.Point:
		return Geo(x.Lat(), x.Lon())
	case []float64:
		values := make([]Value, len(x))
		for i, f := range x {
			values[i] = Double(f)
		}
		return Array(values...)
	case []string:
		values := make([]Value, len(x))
		for i, s := range x {
			values[i] = String(s)
		}
		return Array(values...)
	case []any:
		values := make([]Value, len(x))
		for i, e := range x {
			values[i] = Encode(e)
		}
		return Array(values...)
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, e := range x {
			fields[k] = Encode(e)
		}
		return Map(fields)
	}
	return Null()
}

// FromArrow converts one cell of an Arrow array to an envelope. A
// fixed-size float64 list emits the canonical vector envelope; a plain
// list emits arrayValue. Geopoint structs emit geoPointValue.
func FromArrow(col arrow.Array, row int) Value {
	if col.IsNull(row) {
		return Null()
	}

	switch a := col.(type) {
	case *array.String:
		return String(a.Value(row))
	case *array.Int64:
		return Int(a.Value(row))
	case *array.Int32:
		return Int(int64(a.Value(row)))
	case *array.Float64:
		return Double(a.Value(row))
	case *array.Float32:
		return Double(float64(a.Value(row)))
	case *array.Boolean:
		return Bool(a.Value(row))
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return Timestamp(a.Value(row).ToTime(unit))
	case *array.Binary:
		return Bytes(a.Value(row))
	case *array.Struct:
		if IsGeoPointType(a.DataType()) {
			lat := a.Field(0).(*array.Float64).Value(row)
			lng := a.Field(1).(*array.Float64).Value(row)
			return Geo(lat, lng)
		}
	case *array.List:
		start, end := a.ValueOffsets(row)
		elems := a.ListValues()
		values := make([]Value, 0, end-start)
		for j := start; j < end; j++ {
			values = append(values, FromArrow(elems, int(j)))
		}
		return Array(values...)
	case *array.FixedSizeList:
		n := int(a.DataType().(*arrow.FixedSizeListType).Len())
		elems := a.ListValues()
		if f64, ok := elems.(*array.Float64); ok {
			vec := make([]float64, 0, n)
			for j := row * n; j < (row+1)*n; j++ {
				if f64.IsNull(j) {
					vec = append(vec, 0)
					continue
				}
				vec = append(vec, f64.Value(j))
			}
			return Vector(vec)
		}
	}
	return String(col.ValueStr(row))
}
