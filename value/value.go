// Package value implements the typed value envelope used on the wire
// and its bidirectional mapping to Arrow logical types.
//
// An envelope is a tagged union with exactly one variant inhabited
// (stringValue, integerValue, ...). Integers travel as decimal strings,
// bytes as base64, timestamps as RFC 3339 with a trailing Z. A vector
// is a map with __type__ = "__vector__" and a value array of doubles.
package value

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"

	"github.com/paulmach/orb"
)

// Kind identifies the inhabited variant of an envelope.
type Kind string

const (
	KindNull      Kind = "nullValue"
	KindString    Kind = "stringValue"
	KindInteger   Kind = "integerValue"
	KindDouble    Kind = "doubleValue"
	KindBoolean   Kind = "booleanValue"
	KindTimestamp Kind = "timestampValue"
	KindGeoPoint  Kind = "geoPointValue"
	KindArray     Kind = "arrayValue"
	KindMap       Kind = "mapValue"
	KindReference Kind = "referenceValue"
	KindBytes     Kind = "bytesValue"
	KindUnknown   Kind = "unknown"
)

// Vector envelope markers.
const (
	vectorTypeField  = "__type__"
	vectorTypeMarker = "__vector__"
	vectorValueField = "value"
)

// Integer is an int64 that serializes as a decimal string, which is how
// the wire represents 64-bit integers. Unmarshal tolerates bare numbers.
type Integer int64

func (i Integer) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatInt(int64(i), 10))), nil
}

func (i *Integer) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = unquoted
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*i = Integer(n)
	return nil
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Point returns the geopoint as an orb.Point (lon, lat order).
func (g GeoPoint) Point() orb.Point { return orb.Point{g.Longitude, g.Latitude} }

// GeoPointFromOrb builds a GeoPoint from an orb.Point (lon, lat order).
func GeoPointFromOrb(p orb.Point) GeoPoint {
	return GeoPoint{Latitude: p.Lat(), Longitude: p.Lon()}
}

// ArrayPayload wraps the element list of an arrayValue.
type ArrayPayload struct {
	Values []Value `json:"values,omitempty"`
}

// MapPayload wraps the field mapping of a mapValue.
type MapPayload struct {
	Fields map[string]Value `json:"fields,omitempty"`
}

// Value is the wire envelope. Exactly one field is set; the zero Value
// marshals as an empty object and reports KindUnknown.
type Value struct {
	NullValue      json.RawMessage `json:"nullValue,omitempty"`
	StringValue    *string         `json:"stringValue,omitempty"`
	IntegerValue   *Integer        `json:"integerValue,omitempty"`
	DoubleValue    *float64        `json:"doubleValue,omitempty"`
	BooleanValue   *bool           `json:"booleanValue,omitempty"`
	TimestampValue *string         `json:"timestampValue,omitempty"`
	GeoPointValue  *GeoPoint       `json:"geoPointValue,omitempty"`
	ArrayValue     *ArrayPayload   `json:"arrayValue,omitempty"`
	MapValue       *MapPayload     `json:"mapValue,omitempty"`
	ReferenceValue *string         `json:"referenceValue,omitempty"`
	BytesValue     *string         `json:"bytesValue,omitempty"`
}

// Kind returns the inhabited variant. The probe order matches the wire
// convention so heterogeneous documents classify deterministically.
func (v Value) Kind() Kind {
	switch {
	case v.StringValue != nil:
		return KindString
	case v.IntegerValue != nil:
		return KindInteger
	case v.DoubleValue != nil:
		return KindDouble
	case v.BooleanValue != nil:
		return KindBoolean
	case v.TimestampValue != nil:
		return KindTimestamp
	case v.GeoPointValue != nil:
		return KindGeoPoint
	case v.ArrayValue != nil:
		return KindArray
	case v.MapValue != nil:
		return KindMap
	case v.ReferenceValue != nil:
		return KindReference
	case v.BytesValue != nil:
		return KindBytes
	case v.NullValue != nil:
		return KindNull
	}
	return KindUnknown
}

// IsNull reports whether the envelope is the null variant.
func (v Value) IsNull() bool { return v.NullValue != nil }

// IsVector reports whether the envelope is the canonical vector map.
func (v Value) IsVector() bool { return v.MapValue != nil && v.isVector() }

func (v Value) isVector() bool {
	if v.MapValue == nil {
		return false
	}
	marker, ok := v.MapValue.Fields[vectorTypeField]
	if !ok || marker.StringValue == nil || *marker.StringValue != vectorTypeMarker {
		return false
	}
	payload, ok := v.MapValue.Fields[vectorValueField]
	return ok && payload.ArrayValue != nil
}

// VectorValues returns the vector elements, or nil when the envelope is
// not a vector. Non-numeric elements decode as 0.
func (v Value) VectorValues() []float64 {
	if !v.IsVector() {
		return nil
	}
	elems := v.MapValue.Fields[vectorValueField].ArrayValue.Values
	out := make([]float64, len(elems))
	for i, e := range elems {
		switch {
		case e.DoubleValue != nil:
			out[i] = *e.DoubleValue
		case e.IntegerValue != nil:
			out[i] = float64(*e.IntegerValue)
		}
	}
	return out
}

// Constructors.

// Null returns the null envelope.
func Null() Value { return Value{NullValue: json.RawMessage("null")} }

// String returns a stringValue envelope.
func String(s string) Value { return Value{StringValue: &s} }

// Int returns an integerValue envelope.
func Int(i int64) Value {
	n := Integer(i)
	return Value{IntegerValue: &n}
}

// Double returns a doubleValue envelope.
func Double(f float64) Value { return Value{DoubleValue: &f} }

// Bool returns a booleanValue envelope.
func Bool(b bool) Value { return Value{BooleanValue: &b} }

// Timestamp returns a timestampValue envelope, canonicalized to
// microsecond precision in UTC with a trailing Z.
func Timestamp(t time.Time) Value {
	s := FormatTimestamp(t)
	return Value{TimestampValue: &s}
}

// Reference returns a referenceValue envelope holding a document path.
func Reference(path string) Value { return Value{ReferenceValue: &path} }

// Bytes returns a bytesValue envelope (base64 on the wire).
func Bytes(b []byte) Value {
	s := base64.StdEncoding.EncodeToString(b)
	return Value{BytesValue: &s}
}

// Geo returns a geoPointValue envelope.
func Geo(lat, lng float64) Value {
	return Value{GeoPointValue: &GeoPoint{Latitude: lat, Longitude: lng}}
}

// Array returns an arrayValue envelope.
func Array(values ...Value) Value {
	return Value{ArrayValue: &ArrayPayload{Values: values}}
}

// Map returns a mapValue envelope.
func Map(fields map[string]Value) Value {
	return Value{MapValue: &MapPayload{Fields: fields}}
}

// Vector returns the canonical vector envelope for the given elements.
func Vector(elems []float64) Value {
	values := make([]Value, len(elems))
	for i, f := range elems {
		values[i] = Double(f)
	}
	return Map(map[string]Value{
		vectorTypeField:  String(vectorTypeMarker),
		vectorValueField: Array(values...),
	})
}

// BytesRaw decodes the base64 payload of a bytesValue envelope.
// Returns nil when the envelope is not bytes or the payload is invalid.
func (v Value) BytesRaw() []byte {
	if v.BytesValue == nil {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(*v.BytesValue)
	if err != nil {
		return nil
	}
	return raw
}
