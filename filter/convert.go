package filter

import (
	"log/slog"

	"github.com/hugr-lab/firebridge/value"
)

// DocumentIDColumn is the synthetic document-id column. It has no
// stored field behind it and is never pushable.
const DocumentIDColumn = "__document_id"

// MaxInValues is the service limit on IN disjunction size.
const MaxInValues = 30

// Op is a remote filter operator, spelled the way the structured-query
// wire format spells it.
type Op string

const (
	OpEqual              Op = "EQUAL"
	OpNotEqual           Op = "NOT_EQUAL"
	OpLessThan           Op = "LESS_THAN"
	OpLessThanOrEqual    Op = "LESS_THAN_OR_EQUAL"
	OpGreaterThan        Op = "GREATER_THAN"
	OpGreaterThanOrEqual Op = "GREATER_THAN_OR_EQUAL"
	OpIn                 Op = "IN"
	OpNotIn              Op = "NOT_IN"
	OpIsNull             Op = "IS_NULL"
	OpIsNotNull          Op = "IS_NOT_NULL"
)

// Equality reports whether the operator is equality-class for index
// matching: =, IN and IS NULL. Everything else (including != and
// NOT IN) needs range-style index treatment.
func (o Op) Equality() bool {
	return o == OpEqual || o == OpIn || o == OpIsNull
}

// Unary reports whether the operator takes no comparison value.
func (o Op) Unary() bool { return o == OpIsNull || o == OpIsNotNull }

// Candidate is one remote filter the planner may push. Exactly one of
// Value and Values is meaningful, by operator arity.
type Candidate struct {
	Field  string
	Op     Op
	Value  value.Value
	Values []value.Value
}

// Convert turns a parsed predicate tree into pushable candidates.
// Unconvertible subtrees are dropped: the engine re-evaluates every
// predicate locally, so dropping only costs transfer volume.
func Convert(p *Predicates) []Candidate {
	var out []Candidate
	for _, expr := range p.Filters {
		out = append(out, convertExpr(expr, p)...)
	}
	return out
}

func convertExpr(expr Expression, p *Predicates) []Candidate {
	switch e := expr.(type) {
	case *ComparisonExpression:
		if c, ok := convertComparison(e, p); ok {
			return []Candidate{c}
		}

	case *ConjunctionExpression:
		if e.Type() == TypeConjunctionAnd {
			var out []Candidate
			for _, child := range e.Children {
				out = append(out, convertExpr(child, p)...)
			}
			return out
		}
		if c, ok := collapseOr(e, p); ok {
			return []Candidate{c}
		}

	case *OperatorExpression:
		if c, ok := convertOperator(e, p); ok {
			return []Candidate{c}
		}

	case *BetweenExpression:
		return convertBetween(e, p)
	}

	slog.Debug("predicate not pushable, evaluating locally",
		"class", expr.Class(), "type", expr.Type())
	return nil
}

var comparisonOps = map[ExpressionType]Op{
	TypeCompareEqual:              OpEqual,
	TypeCompareNotEqual:           OpNotEqual,
	TypeCompareLessThan:           OpLessThan,
	TypeCompareLessThanOrEqual:    OpLessThanOrEqual,
	TypeCompareGreaterThan:        OpGreaterThan,
	TypeCompareGreaterThanOrEqual: OpGreaterThanOrEqual,
}

// flipped mirrors an operator for constant-on-the-left comparisons.
var flipped = map[Op]Op{
	OpEqual:              OpEqual,
	OpNotEqual:           OpNotEqual,
	OpLessThan:           OpGreaterThan,
	OpLessThanOrEqual:    OpGreaterThanOrEqual,
	OpGreaterThan:        OpLessThan,
	OpGreaterThanOrEqual: OpLessThanOrEqual,
}

func convertComparison(e *ComparisonExpression, p *Predicates) (Candidate, bool) {
	op, ok := comparisonOps[e.Type()]
	if !ok {
		return Candidate{}, false
	}

	field, fieldOK := columnOf(e.Left, p)
	constant, constOK := constantOf(e.Right)
	if !fieldOK || !constOK {
		// Constant may be on the left.
		field, fieldOK = columnOf(e.Right, p)
		constant, constOK = constantOf(e.Left)
		if !fieldOK || !constOK {
			return Candidate{}, false
		}
		op = flipped[op]
	}
	if field == DocumentIDColumn {
		return Candidate{}, false
	}

	v, ok := constantEnvelope(constant)
	if !ok {
		return Candidate{}, false
	}
	return Candidate{Field: field, Op: op, Value: v}, true
}

// collapseOr turns OR-of-equalities on one column into IN.
func collapseOr(e *ConjunctionExpression, p *Predicates) (Candidate, bool) {
	var field string
	var values []value.Value

	for _, child := range e.Children {
		cmp, ok := child.(*ComparisonExpression)
		if !ok || cmp.Type() != TypeCompareEqual {
			return Candidate{}, false
		}
		c, ok := convertComparison(cmp, p)
		if !ok || c.Op != OpEqual {
			return Candidate{}, false
		}
		if field == "" {
			field = c.Field
		} else if field != c.Field {
			return Candidate{}, false
		}
		values = append(values, c.Value)
	}

	if field == "" || len(values) > MaxInValues {
		if len(values) > MaxInValues {
			slog.Debug("IN disjunction over the service limit, evaluating locally",
				"field", field, "values", len(values))
		}
		return Candidate{}, false
	}
	return Candidate{Field: field, Op: OpIn, Values: values}, true
}

func convertOperator(e *OperatorExpression, p *Predicates) (Candidate, bool) {
	switch e.Type() {
	case TypeOperatorIsNull, TypeOperatorIsNotNull:
		if len(e.Children) != 1 {
			return Candidate{}, false
		}
		field, ok := columnOf(e.Children[0], p)
		if !ok || field == DocumentIDColumn {
			return Candidate{}, false
		}
		op := OpIsNull
		if e.Type() == TypeOperatorIsNotNull {
			op = OpIsNotNull
		}
		return Candidate{Field: field, Op: op}, true

	case TypeCompareIn, TypeCompareNotIn:
		if len(e.Children) < 2 {
			return Candidate{}, false
		}
		field, ok := columnOf(e.Children[0], p)
		if !ok || field == DocumentIDColumn {
			return Candidate{}, false
		}
		values := make([]value.Value, 0, len(e.Children)-1)
		for _, child := range e.Children[1:] {
			c, ok := constantOf(child)
			if !ok {
				return Candidate{}, false
			}
			v, ok := constantEnvelope(c)
			if !ok {
				return Candidate{}, false
			}
			values = append(values, v)
		}
		if len(values) > MaxInValues {
			slog.Debug("IN list over the service limit, evaluating locally",
				"field", field, "values", len(values))
			return Candidate{}, false
		}
		op := OpIn
		if e.Type() == TypeCompareNotIn {
			op = OpNotIn
		}
		return Candidate{Field: field, Op: op, Values: values}, true
	}
	return Candidate{}, false
}

func convertBetween(e *BetweenExpression, p *Predicates) []Candidate {
	field, ok := columnOf(e.Input, p)
	if !ok || field == DocumentIDColumn {
		return nil
	}
	lower, lowerOK := constantOf(e.Lower)
	upper, upperOK := constantOf(e.Upper)
	if !lowerOK || !upperOK {
		return nil
	}
	lv, lvOK := constantEnvelope(lower)
	uv, uvOK := constantEnvelope(upper)
	if !lvOK || !uvOK {
		return nil
	}

	lowerOp := OpGreaterThan
	if e.LowerInclusive {
		lowerOp = OpGreaterThanOrEqual
	}
	upperOp := OpLessThan
	if e.UpperInclusive {
		upperOp = OpLessThanOrEqual
	}
	return []Candidate{
		{Field: field, Op: lowerOp, Value: lv},
		{Field: field, Op: upperOp, Value: uv},
	}
}

// columnOf resolves a column name, looking through casts.
func columnOf(expr Expression, p *Predicates) (string, bool) {
	for {
		switch e := expr.(type) {
		case *ColumnRefExpression:
			return p.ColumnName(e)
		case *CastExpression:
			expr = e.Child
		default:
			return "", false
		}
	}
}

// constantOf resolves a literal, looking through casts.
func constantOf(expr Expression) (Constant, bool) {
	for {
		switch e := expr.(type) {
		case *ConstantExpression:
			return e.Value, true
		case *CastExpression:
			expr = e.Child
		default:
			return Constant{}, false
		}
	}
}

// constantEnvelope maps an engine literal to a wire envelope.
func constantEnvelope(c Constant) (value.Value, bool) {
	if c.IsNull {
		return value.Null(), true
	}
	if t, ok := c.Time(); ok {
		return value.Timestamp(t), true
	}
	switch v := c.Data.(type) {
	case string:
		return value.String(v), true
	case int64:
		return value.Int(v), true
	case float64:
		return value.Double(v), true
	case bool:
		return value.Bool(v), true
	case []byte:
		return value.Bytes(v), true
	}
	return value.Value{}, false
}
