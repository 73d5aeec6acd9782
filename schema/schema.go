// Package schema derives a stable columnar schema from a sample of
// heterogeneous documents and caches it per collection with a TTL.
package schema

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/firebridge/client"
	"github.com/hugr-lab/firebridge/value"
)

// DocumentIDColumn is the synthetic first column exposing the document
// id (or the relative path for collection-group scans).
const DocumentIDColumn = "__document_id"

// Column is one inferred column.
type Column struct {
	Name     string
	Type     arrow.DataType
	Nullable bool
}

// Schema is the inferred column set of a collection, ordered by field
// name for determinism.
type Schema struct {
	Collection string
	Columns    []Column
}

// Column looks a column up by name.
func (s *Schema) Column(name string) (Column, bool) {
	for _, col := range s.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// Arrow renders the schema with the synthetic document-id column first.
func (s *Schema) Arrow() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(s.Columns)+1)
	fields = append(fields, arrow.Field{
		Name: DocumentIDColumn,
		Type: arrow.BinaryTypes.String,
	})
	for _, col := range s.Columns {
		fields = append(fields, arrow.Field{
			Name:     col.Name,
			Type:     col.Type,
			Nullable: col.Nullable,
		})
	}
	return arrow.NewSchema(fields, nil)
}

// fieldStats aggregates per-field observations across the sample.
type fieldStats struct {
	occurrence int
	kinds      map[value.Kind]int
	elements   map[value.Kind]int
	nullSeen   bool

	vectors   int
	vectorDim int
}

// Infer votes a column type per field: the most frequent non-null
// variant wins; a tie goes to string when string is among the leaders
// and to the first kind name otherwise. Array element types are voted
// the same way over sampled elements. Vector columns take their dimension
// from the first occurrence; dimension 0 throughout degrades the
// column to a plain float64 list.
func Infer(collection string, docs []client.Document) *Schema {
	stats := make(map[string]*fieldStats)

	for _, doc := range docs {
		for name, v := range doc.Fields {
			fs := stats[name]
			if fs == nil {
				fs = &fieldStats{
					kinds:    make(map[value.Kind]int),
					elements: make(map[value.Kind]int),
				}
				stats[name] = fs
			}
			fs.occurrence++

			if v.IsNull() {
				fs.nullSeen = true
				continue
			}

			if v.IsVector() {
				fs.vectors++
				if fs.vectorDim == 0 {
					fs.vectorDim = len(v.VectorValues())
				}
				continue
			}

			kind := v.Kind()
			if kind == value.KindUnknown {
				kind = value.KindString
			}
			fs.kinds[kind]++

			if kind == value.KindArray {
				for _, elem := range v.ArrayValue.Values {
					if elem.IsNull() {
						continue
					}
					ek := elem.Kind()
					if ek == value.KindUnknown {
						ek = value.KindString
					}
					fs.elements[ek]++
				}
			}
		}
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	s := &Schema{Collection: collection}
	for _, name := range names {
		fs := stats[name]
		s.Columns = append(s.Columns, Column{
			Name:     name,
			Type:     fs.columnType(),
			Nullable: fs.occurrence < len(docs) || fs.nullSeen,
		})
	}
	return s
}

func (fs *fieldStats) columnType() arrow.DataType {
	// A vector majority wins over plain map observations.
	if fs.vectors > 0 && fs.vectors >= bestCount(fs.kinds) {
		return value.VectorType(fs.vectorDim)
	}

	kind := majority(fs.kinds)
	if kind == value.KindArray {
		return value.ListOf(majority(fs.elements))
	}
	return value.ArrowType(kind)
}

// majority picks the most frequent kind. Empty histograms and ties
// involving string resolve to string; other ties break on the kind
// name so repeated inference over the same sample is stable.
func majority(histogram map[value.Kind]int) value.Kind {
	best := value.KindString
	bestCnt := 0
	for kind, cnt := range histogram {
		switch {
		case cnt > bestCnt:
			best, bestCnt = kind, cnt
		case cnt == bestCnt && kind == value.KindString:
			best = kind
		case cnt == bestCnt && best != value.KindString && kind < best:
			best = kind
		}
	}
	return best
}

func bestCount(histogram map[value.Kind]int) int {
	best := 0
	for _, cnt := range histogram {
		if cnt > best {
			best = cnt
		}
	}
	return best
}
