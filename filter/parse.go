package filter

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/m-mizutani/goerr/v2"

	"github.com/hugr-lab/firebridge/fserr"
)

// Parse parses a serialized predicate tree. Unknown expression classes
// parse into UnsupportedExpression instead of failing, so a plan
// containing one exotic node still yields the pushable remainder.
func Parse(data []byte) (*Predicates, error) {
	if len(data) == 0 {
		return &Predicates{}, nil
	}

	var raw rawPredicates
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fserr.Wrap(fserr.CodeRequestResponseParse, err,
			"cannot parse predicate JSON")
	}

	p := &Predicates{
		ColumnBindings: raw.ColumnBindings,
		Filters:        make([]Expression, 0, len(raw.Filters)),
	}
	for i, rawExpr := range raw.Filters {
		expr, err := parseExpression(rawExpr)
		if err != nil {
			return nil, fserr.Wrap(fserr.CodeRequestResponseParse, err,
				"cannot parse predicate", goerr.V("index", i))
		}
		p.Filters = append(p.Filters, expr)
	}
	return p, nil
}

type rawPredicates struct {
	Filters        []json.RawMessage `json:"filters"`
	ColumnBindings []string          `json:"column_binding_names_by_index"`
}

// rawExpression resolves the class before the full parse.
type rawExpression struct {
	ExpressionClass string `json:"expression_class"`
	Type            string `json:"type"`
}

func parseExpression(data json.RawMessage) (Expression, error) {
	var raw rawExpression
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch ExpressionClass(raw.ExpressionClass) {
	case ClassBoundComparison:
		return parseComparison(data)
	case ClassBoundConjunction:
		return parseConjunction(data)
	case ClassBoundConstant:
		return parseConstant(data)
	case ClassBoundColumnRef:
		return parseColumnRef(data)
	case ClassBoundOperator:
		return parseOperator(data)
	case ClassBoundCast:
		return parseCast(data)
	case ClassBoundBetween:
		return parseBetween(data)
	default:
		return &UnsupportedExpression{BaseExpression: BaseExpression{
			ExprClass: ExpressionClass(raw.ExpressionClass),
			ExprType:  ExpressionType(raw.Type),
		}}, nil
	}
}

func parseComparison(data json.RawMessage) (*ComparisonExpression, error) {
	var raw struct {
		rawExpression
		Left  json.RawMessage `json:"left"`
		Right json.RawMessage `json:"right"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	left, err := parseExpression(raw.Left)
	if err != nil {
		return nil, err
	}
	right, err := parseExpression(raw.Right)
	if err != nil {
		return nil, err
	}
	return &ComparisonExpression{
		BaseExpression: baseOf(raw.rawExpression),
		Left:           left,
		Right:          right,
	}, nil
}

func parseConjunction(data json.RawMessage) (*ConjunctionExpression, error) {
	var raw struct {
		rawExpression
		Children []json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	children, err := parseChildren(raw.Children)
	if err != nil {
		return nil, err
	}
	return &ConjunctionExpression{
		BaseExpression: baseOf(raw.rawExpression),
		Children:       children,
	}, nil
}

func parseConstant(data json.RawMessage) (*ConstantExpression, error) {
	var raw struct {
		rawExpression
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	c, err := parseValue(raw.Value)
	if err != nil {
		return nil, err
	}
	return &ConstantExpression{
		BaseExpression: baseOf(raw.rawExpression),
		Value:          c,
	}, nil
}

func parseColumnRef(data json.RawMessage) (*ColumnRefExpression, error) {
	var raw struct {
		rawExpression
		ReturnType json.RawMessage `json:"return_type"`
		Binding    ColumnBinding   `json:"binding"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	rt, err := parseLogicalType(raw.ReturnType)
	if err != nil {
		return nil, err
	}
	return &ColumnRefExpression{
		BaseExpression: baseOf(raw.rawExpression),
		Binding:        raw.Binding,
		ReturnType:     rt,
	}, nil
}

func parseOperator(data json.RawMessage) (Expression, error) {
	var raw struct {
		rawExpression
		Children []json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	children, err := parseChildren(raw.Children)
	if err != nil {
		return nil, err
	}
	return &OperatorExpression{
		BaseExpression: baseOf(raw.rawExpression),
		Children:       children,
	}, nil
}

func parseCast(data json.RawMessage) (*CastExpression, error) {
	var raw struct {
		rawExpression
		Child      json.RawMessage `json:"child"`
		ReturnType json.RawMessage `json:"return_type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	child, err := parseExpression(raw.Child)
	if err != nil {
		return nil, err
	}
	rt, err := parseLogicalType(raw.ReturnType)
	if err != nil {
		return nil, err
	}
	return &CastExpression{
		BaseExpression: baseOf(raw.rawExpression),
		Child:          child,
		ReturnType:     rt,
	}, nil
}

func parseBetween(data json.RawMessage) (*BetweenExpression, error) {
	var raw struct {
		rawExpression
		Input          json.RawMessage `json:"input"`
		Lower          json.RawMessage `json:"lower"`
		Upper          json.RawMessage `json:"upper"`
		LowerInclusive bool            `json:"lower_inclusive"`
		UpperInclusive bool            `json:"upper_inclusive"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	input, err := parseExpression(raw.Input)
	if err != nil {
		return nil, err
	}
	lower, err := parseExpression(raw.Lower)
	if err != nil {
		return nil, err
	}
	upper, err := parseExpression(raw.Upper)
	if err != nil {
		return nil, err
	}
	return &BetweenExpression{
		BaseExpression: baseOf(raw.rawExpression),
		Input:          input,
		Lower:          lower,
		Upper:          upper,
		LowerInclusive: raw.LowerInclusive,
		UpperInclusive: raw.UpperInclusive,
	}, nil
}

func parseChildren(raw []json.RawMessage) ([]Expression, error) {
	children := make([]Expression, 0, len(raw))
	for _, child := range raw {
		expr, err := parseExpression(child)
		if err != nil {
			return nil, err
		}
		children = append(children, expr)
	}
	return children, nil
}

func baseOf(raw rawExpression) BaseExpression {
	return BaseExpression{
		ExprClass: ExpressionClass(raw.ExpressionClass),
		ExprType:  ExpressionType(raw.Type),
	}
}

func parseLogicalType(data json.RawMessage) (LogicalType, error) {
	if len(data) == 0 || string(data) == "null" {
		return LogicalType{}, nil
	}

	var raw struct {
		ID       string `json:"id"`
		TypeInfo struct {
			Type      string          `json:"type"`
			ChildType json.RawMessage `json:"child_type"`
		} `json:"type_info"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogicalType{}, err
	}

	lt := LogicalType{ID: LogicalTypeID(raw.ID).Normalize()}
	if len(raw.TypeInfo.ChildType) > 0 {
		child, err := parseLogicalType(raw.TypeInfo.ChildType)
		if err != nil {
			return LogicalType{}, err
		}
		lt.Child = &child
	}
	return lt, nil
}

// base64String is the wrapped form some engines use for strings with
// non-UTF8 bytes.
type base64String struct {
	Base64 string `json:"base64"`
}

func parseValue(data json.RawMessage) (Constant, error) {
	if len(data) == 0 || string(data) == "null" {
		return Constant{IsNull: true}, nil
	}

	var raw struct {
		Type   json.RawMessage `json:"type"`
		IsNull bool            `json:"is_null"`
		Value  json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Constant{}, err
	}

	lt, err := parseLogicalType(raw.Type)
	if err != nil {
		return Constant{}, err
	}

	c := Constant{Type: lt, IsNull: raw.IsNull}
	if raw.IsNull || len(raw.Value) == 0 || string(raw.Value) == "null" {
		c.IsNull = true
		return c, nil
	}

	c.Data, err = parseValueData(raw.Value, lt)
	if err != nil {
		return Constant{}, err
	}
	return c, nil
}

func parseValueData(data json.RawMessage, lt LogicalType) (any, error) {
	switch lt.ID {
	case TypeIDBoolean:
		var v bool
		err := json.Unmarshal(data, &v)
		return v, err

	case TypeIDTinyInt, TypeIDSmallInt, TypeIDInteger, TypeIDBigInt,
		TypeIDDate, TypeIDTimestamp, TypeIDTimestampTZ:
		var v int64
		err := json.Unmarshal(data, &v)
		return v, err

	case TypeIDFloat, TypeIDDouble:
		var v float64
		err := json.Unmarshal(data, &v)
		return v, err

	case TypeIDDecimal:
		// Sent as a string or a number depending on precision.
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return strconv.ParseFloat(s, 64)
		}
		var f float64
		err := json.Unmarshal(data, &f)
		return f, err

	case TypeIDVarchar:
		var wrapped base64String
		if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Base64 != "" {
			decoded, err := base64.StdEncoding.DecodeString(wrapped.Base64)
			if err != nil {
				return nil, err
			}
			return string(decoded), nil
		}
		var s string
		err := json.Unmarshal(data, &s)
		return s, err

	case TypeIDBlob:
		var wrapped base64String
		if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Base64 != "" {
			return base64.StdEncoding.DecodeString(wrapped.Base64)
		}
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return []byte(s), nil

	case TypeIDList:
		var raw struct {
			Children []json.RawMessage `json:"children"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		children := make([]Constant, 0, len(raw.Children))
		for _, child := range raw.Children {
			c, err := parseValue(child)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		return children, nil

	default:
		var v any
		err := json.Unmarshal(data, &v)
		return v, err
	}
}
