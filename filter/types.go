// Package filter parses the host engine's serialized predicate trees
// and converts them into remote filter candidates for the pushdown
// planner. Anything the remote query language cannot express parses
// into an unsupported node and is evaluated locally by the engine.
package filter

import (
	"strconv"
	"time"
)

// ExpressionClass identifies the category of a bound expression.
type ExpressionClass string

const (
	ClassBoundComparison  ExpressionClass = "BOUND_COMPARISON"
	ClassBoundConjunction ExpressionClass = "BOUND_CONJUNCTION"
	ClassBoundConstant    ExpressionClass = "BOUND_CONSTANT"
	ClassBoundColumnRef   ExpressionClass = "BOUND_COLUMN_REF"
	ClassBoundOperator    ExpressionClass = "BOUND_OPERATOR"
	ClassBoundCast        ExpressionClass = "BOUND_CAST"
	ClassBoundBetween     ExpressionClass = "BOUND_BETWEEN"
)

// ExpressionType identifies the specific operation.
type ExpressionType string

const (
	TypeCompareEqual              ExpressionType = "COMPARE_EQUAL"
	TypeCompareNotEqual           ExpressionType = "COMPARE_NOTEQUAL"
	TypeCompareLessThan           ExpressionType = "COMPARE_LESSTHAN"
	TypeCompareGreaterThan        ExpressionType = "COMPARE_GREATERTHAN"
	TypeCompareLessThanOrEqual    ExpressionType = "COMPARE_LESSTHANOREQUALTO"
	TypeCompareGreaterThanOrEqual ExpressionType = "COMPARE_GREATERTHANOREQUALTO"
	TypeCompareIn                 ExpressionType = "COMPARE_IN"
	TypeCompareNotIn              ExpressionType = "COMPARE_NOT_IN"
	TypeCompareBetween            ExpressionType = "COMPARE_BETWEEN"

	TypeConjunctionAnd ExpressionType = "CONJUNCTION_AND"
	TypeConjunctionOr  ExpressionType = "CONJUNCTION_OR"

	TypeOperatorIsNull    ExpressionType = "OPERATOR_IS_NULL"
	TypeOperatorIsNotNull ExpressionType = "OPERATOR_IS_NOT_NULL"

	TypeValueConstant ExpressionType = "VALUE_CONSTANT"
	TypeCast          ExpressionType = "CAST"
	TypeColumnRef     ExpressionType = "BOUND_COLUMN_REF"
)

// Expression is implemented by all parsed predicate nodes. Use type
// switches to access node data.
type Expression interface {
	Class() ExpressionClass
	Type() ExpressionType

	expressionMarker()
}

// BaseExpression carries the fields common to every node.
type BaseExpression struct {
	ExprClass ExpressionClass `json:"expression_class"`
	ExprType  ExpressionType  `json:"type"`
}

func (b *BaseExpression) Class() ExpressionClass { return b.ExprClass }
func (b *BaseExpression) Type() ExpressionType   { return b.ExprType }
func (b *BaseExpression) expressionMarker()      {}

// ColumnBinding identifies a column by table and column index within
// the engine's serialized plan.
type ColumnBinding struct {
	TableIndex  int `json:"table_index"`
	ColumnIndex int `json:"column_index"`
}

// Predicates is the top-level container for a parsed predicate tree.
// Multiple entries are implicitly AND'ed.
type Predicates struct {
	Filters []Expression

	// ColumnBindings maps binding indices to column names.
	ColumnBindings []string
}

// ColumnName resolves a column reference against the bindings.
func (p *Predicates) ColumnName(ref *ColumnRefExpression) (string, bool) {
	i := ref.Binding.ColumnIndex
	if i < 0 || i >= len(p.ColumnBindings) {
		return "", false
	}
	return p.ColumnBindings[i], true
}

// ComparisonExpression is a binary comparison (=, <>, <, >, <=, >=).
type ComparisonExpression struct {
	BaseExpression
	Left  Expression
	Right Expression
}

// ConjunctionExpression is AND/OR over two or more children.
type ConjunctionExpression struct {
	BaseExpression
	Children []Expression
}

// ConstantExpression is a literal.
type ConstantExpression struct {
	BaseExpression
	Value Constant
}

// ColumnRefExpression references a projected column.
type ColumnRefExpression struct {
	BaseExpression
	Binding    ColumnBinding
	ReturnType LogicalType
}

// OperatorExpression is a unary or n-ary operator. IS NULL and
// IS NOT NULL carry one child; IN and NOT IN carry the column followed
// by the candidate constants.
type OperatorExpression struct {
	BaseExpression
	Children []Expression
}

// CastExpression wraps a child in a type cast. The planner looks
// through casts when the child is a column reference.
type CastExpression struct {
	BaseExpression
	Child      Expression
	ReturnType LogicalType
}

// BetweenExpression is input BETWEEN lower AND upper.
type BetweenExpression struct {
	BaseExpression
	Input          Expression
	Lower          Expression
	Upper          Expression
	LowerInclusive bool
	UpperInclusive bool
}

// UnsupportedExpression marks a node the remote query language cannot
// express. The subtree containing it stays local.
type UnsupportedExpression struct {
	BaseExpression
}

// LogicalTypeID names the engine types a constant can carry.
type LogicalTypeID string

const (
	TypeIDBoolean     LogicalTypeID = "BOOLEAN"
	TypeIDTinyInt     LogicalTypeID = "TINYINT"
	TypeIDSmallInt    LogicalTypeID = "SMALLINT"
	TypeIDInteger     LogicalTypeID = "INTEGER"
	TypeIDBigInt      LogicalTypeID = "BIGINT"
	TypeIDFloat       LogicalTypeID = "FLOAT"
	TypeIDDouble      LogicalTypeID = "DOUBLE"
	TypeIDDecimal     LogicalTypeID = "DECIMAL"
	TypeIDVarchar     LogicalTypeID = "VARCHAR"
	TypeIDBlob        LogicalTypeID = "BLOB"
	TypeIDDate        LogicalTypeID = "DATE"
	TypeIDTimestamp   LogicalTypeID = "TIMESTAMP"
	TypeIDTimestampTZ LogicalTypeID = "TIMESTAMP_TZ"
	TypeIDList        LogicalTypeID = "LIST"
	TypeIDSQLNull     LogicalTypeID = "SQLNULL"
	TypeIDUnknown     LogicalTypeID = "UNKNOWN"
)

// typeAliases maps the full SQL spellings some engine versions emit to
// the canonical short ids.
var typeAliases = map[LogicalTypeID]LogicalTypeID{
	"TIMESTAMP WITH TIME ZONE":    TypeIDTimestampTZ,
	"TIMESTAMPTZ":                 TypeIDTimestampTZ,
	"TIMESTAMP WITHOUT TIME ZONE": TypeIDTimestamp,
	"INT8":                        TypeIDBigInt,
	"INT4":                        TypeIDInteger,
	"INT2":                        TypeIDSmallInt,
	"INT1":                        TypeIDTinyInt,
	"FLOAT8":                      TypeIDDouble,
	"FLOAT4":                      TypeIDFloat,
	"TEXT":                        TypeIDVarchar,
	"STRING":                      TypeIDVarchar,
	"BYTEA":                       TypeIDBlob,
	"NULL":                        TypeIDSQLNull,
}

// Normalize collapses aliases to the canonical id.
func (id LogicalTypeID) Normalize() LogicalTypeID {
	if canonical, ok := typeAliases[id]; ok {
		return canonical
	}
	return id
}

// LogicalType is an engine type with an optional element type for
// lists. Nested shapes beyond one level are not needed for constants.
type LogicalType struct {
	ID    LogicalTypeID
	Child *LogicalType
}

// Constant is a parsed literal with its engine type.
type Constant struct {
	Type   LogicalType
	IsNull bool
	Data   any
}

// Time converts a temporal constant to a time.Time. Timestamps arrive
// as microseconds since the epoch, dates as days.
func (c Constant) Time() (time.Time, bool) {
	n, ok := c.Data.(int64)
	if !ok {
		return time.Time{}, false
	}
	switch c.Type.ID {
	case TypeIDTimestamp, TypeIDTimestampTZ:
		return time.UnixMicro(n).UTC(), true
	case TypeIDDate:
		return time.Unix(n*86400, 0).UTC(), true
	}
	return time.Time{}, false
}

// String renders the constant for diagnostics.
func (c Constant) String() string {
	if c.IsNull {
		return "NULL"
	}
	switch v := c.Data.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return "?"
}
