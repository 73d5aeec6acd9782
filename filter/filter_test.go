package filter

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func colRef(index int, typeID string) string {
	return fmt.Sprintf(`{
		"expression_class": "BOUND_COLUMN_REF",
		"type": "BOUND_COLUMN_REF",
		"return_type": {"id": %q},
		"binding": {"table_index": 0, "column_index": %d}
	}`, typeID, index)
}

func constant(typeID, data string) string {
	return fmt.Sprintf(`{
		"expression_class": "BOUND_CONSTANT",
		"type": "VALUE_CONSTANT",
		"value": {"type": {"id": %q}, "is_null": false, "value": %s}
	}`, typeID, data)
}

func comparison(cmpType, left, right string) string {
	return fmt.Sprintf(`{
		"expression_class": "BOUND_COMPARISON",
		"type": %q,
		"left": %s,
		"right": %s
	}`, cmpType, left, right)
}

func predicates(bindings []string, filters ...string) []byte {
	quoted := make([]string, len(bindings))
	for i, b := range bindings {
		quoted[i] = fmt.Sprintf("%q", b)
	}
	return []byte(fmt.Sprintf(`{
		"filters": [%s],
		"column_binding_names_by_index": [%s]
	}`, strings.Join(filters, ","), strings.Join(quoted, ",")))
}

func TestParseAndConvertComparison(t *testing.T) {
	data := predicates([]string{"__document_id", "age"},
		comparison("COMPARE_EQUAL", colRef(1, "BIGINT"), constant("BIGINT", "30")))

	p, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(p.Filters) != 1 {
		t.Fatalf("got %d filters", len(p.Filters))
	}

	out := Convert(p)
	if len(out) != 1 {
		t.Fatalf("Convert() produced %d candidates", len(out))
	}
	c := out[0]
	if c.Field != "age" || c.Op != OpEqual {
		t.Errorf("candidate = %+v", c)
	}
	if c.Value.IntegerValue == nil || int64(*c.Value.IntegerValue) != 30 {
		t.Errorf("value = %+v", c.Value)
	}
}

func TestConvertFlipsConstantOnLeft(t *testing.T) {
	data := predicates([]string{"total"},
		comparison("COMPARE_LESSTHAN", constant("DOUBLE", "9.5"), colRef(0, "DOUBLE")))

	p, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	out := Convert(p)
	if len(out) != 1 || out[0].Op != OpGreaterThan {
		t.Errorf("candidates = %+v, want total GREATER_THAN", out)
	}
}

func TestConvertAndFlattensAndSkipsUnsupported(t *testing.T) {
	unsupported := `{"expression_class": "BOUND_FUNCTION", "type": "FUNCTION"}`
	and := fmt.Sprintf(`{
		"expression_class": "BOUND_CONJUNCTION",
		"type": "CONJUNCTION_AND",
		"children": [%s, %s, %s]
	}`,
		comparison("COMPARE_EQUAL", colRef(0, "VARCHAR"), constant("VARCHAR", `"paid"`)),
		unsupported,
		comparison("COMPARE_GREATERTHAN", colRef(1, "BIGINT"), constant("BIGINT", "10")))

	p, err := Parse(predicates([]string{"status", "qty"}, and))
	if err != nil {
		t.Fatal(err)
	}
	out := Convert(p)
	if len(out) != 2 {
		t.Fatalf("Convert() produced %d candidates, want 2", len(out))
	}
	if out[0].Field != "status" || out[0].Op != OpEqual {
		t.Errorf("first = %+v", out[0])
	}
	if out[1].Field != "qty" || out[1].Op != OpGreaterThan {
		t.Errorf("second = %+v", out[1])
	}
}

func TestCollapseOrToIn(t *testing.T) {
	eq := func(v string) string {
		return comparison("COMPARE_EQUAL", colRef(0, "VARCHAR"), constant("VARCHAR", v))
	}
	or := fmt.Sprintf(`{
		"expression_class": "BOUND_CONJUNCTION",
		"type": "CONJUNCTION_OR",
		"children": [%s, %s, %s]
	}`, eq(`"a"`), eq(`"b"`), eq(`"c"`))

	p, err := Parse(predicates([]string{"code"}, or))
	if err != nil {
		t.Fatal(err)
	}
	out := Convert(p)
	if len(out) != 1 || out[0].Op != OpIn || len(out[0].Values) != 3 {
		t.Fatalf("candidates = %+v, want one IN with 3 values", out)
	}
	if !out[0].Op.Equality() {
		t.Error("IN must be equality-class")
	}
}

func TestCollapseOrRejectsMixedColumns(t *testing.T) {
	or := fmt.Sprintf(`{
		"expression_class": "BOUND_CONJUNCTION",
		"type": "CONJUNCTION_OR",
		"children": [%s, %s]
	}`,
		comparison("COMPARE_EQUAL", colRef(0, "VARCHAR"), constant("VARCHAR", `"a"`)),
		comparison("COMPARE_EQUAL", colRef(1, "VARCHAR"), constant("VARCHAR", `"b"`)))

	p, err := Parse(predicates([]string{"c1", "c2"}, or))
	if err != nil {
		t.Fatal(err)
	}
	if out := Convert(p); len(out) != 0 {
		t.Errorf("mixed-column OR must not convert, got %+v", out)
	}
}

func TestCollapseOrInSizeLimit(t *testing.T) {
	orOf := func(n int) []byte {
		children := make([]string, n)
		for i := range children {
			children[i] = comparison("COMPARE_EQUAL", colRef(0, "BIGINT"),
				constant("BIGINT", fmt.Sprintf("%d", i)))
		}
		or := fmt.Sprintf(`{
			"expression_class": "BOUND_CONJUNCTION",
			"type": "CONJUNCTION_OR",
			"children": [%s]
		}`, strings.Join(children, ","))
		return predicates([]string{"n"}, or)
	}

	p, err := Parse(orOf(MaxInValues))
	if err != nil {
		t.Fatal(err)
	}
	out := Convert(p)
	if len(out) != 1 || out[0].Op != OpIn || len(out[0].Values) != MaxInValues {
		t.Errorf("IN at the limit must convert, got %+v", out)
	}

	p, err = Parse(orOf(MaxInValues + 1))
	if err != nil {
		t.Fatal(err)
	}
	if out := Convert(p); len(out) != 0 {
		t.Errorf("oversized IN must not convert, got %+v", out)
	}
}

func TestConvertIsNull(t *testing.T) {
	isNull := fmt.Sprintf(`{
		"expression_class": "BOUND_OPERATOR",
		"type": "OPERATOR_IS_NULL",
		"children": [%s]
	}`, colRef(0, "VARCHAR"))

	p, err := Parse(predicates([]string{"nickname"}, isNull))
	if err != nil {
		t.Fatal(err)
	}
	out := Convert(p)
	if len(out) != 1 || out[0].Op != OpIsNull || out[0].Field != "nickname" {
		t.Fatalf("candidates = %+v", out)
	}
	if !out[0].Op.Unary() || !out[0].Op.Equality() {
		t.Error("IS_NULL must be unary and equality-class")
	}
}

func TestConvertInOperator(t *testing.T) {
	in := fmt.Sprintf(`{
		"expression_class": "BOUND_OPERATOR",
		"type": "COMPARE_IN",
		"children": [%s, %s, %s]
	}`, colRef(0, "BIGINT"), constant("BIGINT", "1"), constant("BIGINT", "2"))

	p, err := Parse(predicates([]string{"n"}, in))
	if err != nil {
		t.Fatal(err)
	}
	out := Convert(p)
	if len(out) != 1 || out[0].Op != OpIn || len(out[0].Values) != 2 {
		t.Fatalf("candidates = %+v", out)
	}
}

func TestConvertBetween(t *testing.T) {
	between := fmt.Sprintf(`{
		"expression_class": "BOUND_BETWEEN",
		"type": "COMPARE_BETWEEN",
		"input": %s,
		"lower": %s,
		"upper": %s,
		"lower_inclusive": true,
		"upper_inclusive": false
	}`, colRef(0, "BIGINT"), constant("BIGINT", "10"), constant("BIGINT", "20"))

	p, err := Parse(predicates([]string{"qty"}, between))
	if err != nil {
		t.Fatal(err)
	}
	out := Convert(p)
	if len(out) != 2 {
		t.Fatalf("candidates = %+v", out)
	}
	if out[0].Op != OpGreaterThanOrEqual || out[1].Op != OpLessThan {
		t.Errorf("ops = %v, %v", out[0].Op, out[1].Op)
	}
}

func TestDocumentIDNeverPushed(t *testing.T) {
	data := predicates([]string{DocumentIDColumn},
		comparison("COMPARE_EQUAL", colRef(0, "VARCHAR"), constant("VARCHAR", `"doc1"`)))

	p, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if out := Convert(p); len(out) != 0 {
		t.Errorf("document-id filter must not convert, got %+v", out)
	}
}

func TestConvertTimestampConstant(t *testing.T) {
	ts := time.Date(2024, 3, 1, 8, 0, 0, 123456000, time.UTC)
	data := predicates([]string{"created_at"},
		comparison("COMPARE_GREATERTHANOREQUALTO", colRef(0, "TIMESTAMP"),
			constant("TIMESTAMP", fmt.Sprintf("%d", ts.UnixMicro()))))

	p, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	out := Convert(p)
	if len(out) != 1 {
		t.Fatalf("candidates = %+v", out)
	}
	v := out[0].Value
	if v.TimestampValue == nil || *v.TimestampValue != "2024-03-01T08:00:00.123456Z" {
		t.Errorf("timestamp envelope = %+v", v)
	}
}

func TestConvertCastAroundColumn(t *testing.T) {
	cast := fmt.Sprintf(`{
		"expression_class": "BOUND_CAST",
		"type": "CAST",
		"child": %s,
		"return_type": {"id": "VARCHAR"}
	}`, colRef(0, "BIGINT"))
	data := predicates([]string{"sku"},
		comparison("COMPARE_EQUAL", cast, constant("VARCHAR", `"A-1"`)))

	p, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	out := Convert(p)
	if len(out) != 1 || out[0].Field != "sku" {
		t.Fatalf("candidates = %+v", out)
	}
}

func TestParseEmptyAndAliases(t *testing.T) {
	p, err := Parse(nil)
	if err != nil || len(p.Filters) != 0 {
		t.Errorf("Parse(nil) = %+v, %v", p, err)
	}

	if got := LogicalTypeID("TIMESTAMP WITH TIME ZONE").Normalize(); got != TypeIDTimestampTZ {
		t.Errorf("Normalize() = %q", got)
	}
	if got := LogicalTypeID("BIGINT").Normalize(); got != TypeIDBigInt {
		t.Errorf("Normalize() = %q", got)
	}
}
