package value

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// GeoPointType is the Arrow representation of a geopoint.
var GeoPointType = arrow.StructOf(
	arrow.Field{Name: "lat", Type: arrow.PrimitiveTypes.Float64},
	arrow.Field{Name: "lng", Type: arrow.PrimitiveTypes.Float64},
)

// TimestampType is the Arrow representation of a wire timestamp
// (microsecond precision, UTC).
var TimestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// ArrowType maps an envelope kind to its Arrow logical type. Arrays
// default to list(string); refine the element type during inference
// with ListOf. Maps surface as JSON strings.
func ArrowType(k Kind) arrow.DataType {
	switch k {
	case KindString, KindReference, KindNull, KindMap:
		return arrow.BinaryTypes.String
	case KindInteger:
		return arrow.PrimitiveTypes.Int64
	case KindDouble:
		return arrow.PrimitiveTypes.Float64
	case KindBoolean:
		return arrow.FixedWidthTypes.Boolean
	case KindTimestamp:
		return TimestampType
	case KindBytes:
		return arrow.BinaryTypes.Binary
	case KindGeoPoint:
		return GeoPointType
	case KindArray:
		return arrow.ListOf(arrow.BinaryTypes.String)
	default:
		return arrow.BinaryTypes.String
	}
}

// ListOf builds the Arrow list type for an array column whose element
// kind was chosen by majority vote.
func ListOf(element Kind) arrow.DataType {
	return arrow.ListOf(ArrowType(element))
}

// VectorType builds the Arrow type for a vector column. A determinable
// dimension yields a fixed-size list; dimension 0 degrades to a plain
// float64 list.
func VectorType(dimension int) arrow.DataType {
	if dimension > 0 {
		return arrow.FixedSizeListOf(int32(dimension), arrow.PrimitiveTypes.Float64)
	}
	return arrow.ListOf(arrow.PrimitiveTypes.Float64)
}

// IsGeoPointType reports whether dt is the geopoint struct type.
func IsGeoPointType(dt arrow.DataType) bool {
	st, ok := dt.(*arrow.StructType)
	if !ok || st.NumFields() != 2 {
		return false
	}
	return st.Field(0).Name == "lat" && st.Field(1).Name == "lng"
}
