package pushdown

import (
	"github.com/hugr-lab/firebridge/filter"
	"github.com/hugr-lab/firebridge/value"
)

// OrderTerm is one caller-specified sort clause.
type OrderTerm struct {
	Field string
	Desc  bool
}

// Cursor resumes a structured query after a document. Values holds the
// document's order-by field values in clause order; Reference is its
// resource path, matching the trailing __name__ clause.
type Cursor struct {
	Values    []value.Value
	Reference string
}

// Query assembles the structured-query JSON document.
type Query struct {
	CollectionID   string
	AllDescendants bool
	Filters        []filter.Candidate

	// OrderBy is the caller's explicit ordering. When empty the query
	// orders by the pushed inequality fields. Either way a trailing
	// __name__ clause makes the ordering total, so every query can
	// paginate by cursor.
	OrderBy []OrderTerm

	Limit   int
	StartAt *Cursor
}

// JSON renders the query in the wire shape expected by the runQuery
// endpoint.
func (q *Query) JSON() map[string]any {
	sq := map[string]any{
		"from": []map[string]any{{
			"collectionId":   q.CollectionID,
			"allDescendants": q.AllDescendants,
		}},
	}

	if where := whereJSON(q.Filters); where != nil {
		sq["where"] = where
	}

	var orderBy []map[string]any
	nameDirection := "ASCENDING"
	if len(q.OrderBy) > 0 {
		for _, term := range q.OrderBy {
			direction := "ASCENDING"
			if term.Desc {
				direction = "DESCENDING"
			}
			orderBy = append(orderBy, orderClause(term.Field, direction))
			// The service ties __name__ to the direction of the last
			// explicit clause.
			nameDirection = direction
		}
	} else {
		for _, field := range InequalityFields(q.Filters) {
			orderBy = append(orderBy, orderClause(field, "ASCENDING"))
		}
	}
	orderBy = append(orderBy, orderClause("__name__", nameDirection))
	sq["orderBy"] = orderBy

	if q.Limit > 0 {
		sq["limit"] = q.Limit
	}
	if q.StartAt != nil {
		values := make([]value.Value, 0, len(q.StartAt.Values)+1)
		values = append(values, q.StartAt.Values...)
		values = append(values, value.Reference(q.StartAt.Reference))
		sq["startAt"] = map[string]any{
			"values": values,
			"before": false,
		}
	}
	return sq
}

func orderClause(field, direction string) map[string]any {
	return map[string]any{
		"field":     map[string]any{"fieldPath": field},
		"direction": direction,
	}
}

// whereJSON renders one filter directly and wraps several in a
// composite AND.
func whereJSON(filters []filter.Candidate) map[string]any {
	if len(filters) == 0 {
		return nil
	}
	if len(filters) == 1 {
		return filterJSON(filters[0])
	}
	parts := make([]map[string]any, len(filters))
	for i, f := range filters {
		parts[i] = filterJSON(f)
	}
	return map[string]any{
		"compositeFilter": map[string]any{
			"op":      "AND",
			"filters": parts,
		},
	}
}

func filterJSON(f filter.Candidate) map[string]any {
	fieldRef := map[string]any{"fieldPath": f.Field}

	if f.Op.Unary() {
		return map[string]any{
			"unaryFilter": map[string]any{
				"field": fieldRef,
				"op":    string(f.Op),
			},
		}
	}

	v := f.Value
	if f.Op == filter.OpIn || f.Op == filter.OpNotIn {
		v = value.Array(f.Values...)
	}
	return map[string]any{
		"fieldFilter": map[string]any{
			"field": fieldRef,
			"op":    string(f.Op),
			"value": v,
		},
	}
}
