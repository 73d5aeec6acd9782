// Package scan streams collection documents as Arrow record batches.
// Filters that the index catalog can support run server-side through
// structured queries; everything else is left for the engine to apply
// locally. A rejected filtered query downgrades to an unfiltered fetch
// instead of failing the scan.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/firebridge/client"
	"github.com/hugr-lab/firebridge/filter"
	"github.com/hugr-lab/firebridge/fserr"
	"github.com/hugr-lab/firebridge/pushdown"
	"github.com/hugr-lab/firebridge/schema"
	"github.com/hugr-lab/firebridge/value"
)

// DefaultBatchSize is the emitted record batch size when the caller
// does not set one.
const DefaultBatchSize = 2048

// Options tune a single scan.
type Options struct {
	// Columns projects the output. Empty selects the document id plus
	// every schema column.
	Columns []string

	// Filter is the serialized predicate tree from the engine, may be
	// empty.
	Filter []byte

	// Limit caps emitted rows. Zero means unbounded.
	Limit int64

	// BatchSize caps rows per emitted record batch.
	// OPTIONAL: DefaultBatchSize if zero.
	BatchSize int

	// OrderBy requests server-side ordering. On structured queries the
	// terms become orderBy clauses and the resume cursor carries the
	// last document's values for them.
	OrderBy []pushdown.OrderTerm
}

// Scanner reads one collection using a previously inferred schema and
// its index catalog.
type Scanner struct {
	Client     *client.Client
	Entry      *schema.Entry
	Collection string
}

// column is one projected output column.
type column struct {
	name  string
	typ   arrow.DataType
	docID bool
}

// Scan starts streaming and returns a reader over the result batches.
// The reader owns the request lifecycle; the caller must Release it.
func (s *Scanner) Scan(ctx context.Context, opts Options) (array.RecordReader, error) {
	if s.Collection == "" {
		return nil, fserr.New(fserr.CodeScanCollectionRequired, "collection name is required")
	}
	if opts.Limit < 0 {
		return nil, fserr.New(fserr.CodeScanInvalidLimit,
			fmt.Sprintf("negative limit %d", opts.Limit), fserr.Collection(s.Collection))
	}

	cols, out, err := s.project(opts.Columns)
	if err != nil {
		return nil, err
	}

	preds, err := filter.Parse(opts.Filter)
	if err != nil {
		return nil, err
	}
	pushed := pushdown.Plan(filter.Convert(preds), s.Entry.Catalog)

	pageSize := maxPageSize
	if opts.Limit > 0 && opts.Limit < maxPageSize {
		pageSize = int(opts.Limit)
	}

	groupID, group := strings.CutPrefix(s.Collection, "~")
	src := s.newSource(group, groupID, pushed, opts.OrderBy, pageSize)

	// The first fetch validates the plan: the service rejects queries
	// whose filters it cannot serve even when the catalog said they
	// were indexed. Retry once without the pushed filters.
	page, err := src.next(ctx)
	if err != nil {
		if len(pushed) == 0 {
			return nil, err
		}
		slog.Warn("filtered query rejected, scanning without pushdown",
			"collection", s.Collection, "error", err)
		src = s.newSource(group, groupID, nil, opts.OrderBy, pageSize)
		page, err = src.next(ctx)
		if err != nil {
			return nil, err
		}
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &streamReader{
		refs:   1,
		ctx:    ctx,
		schema: out,
		cols:   cols,
		group:  group,
		src:    src,

		page:      page,
		batchSize: batchSize,
		limit:     opts.Limit,
	}, nil
}

// project resolves the requested columns against the schema. The
// document id column is synthetic and always resolvable.
func (s *Scanner) project(names []string) ([]column, *arrow.Schema, error) {
	var cols []column
	if len(names) == 0 {
		cols = append(cols, column{name: schema.DocumentIDColumn, typ: arrow.BinaryTypes.String, docID: true})
		for _, c := range s.Entry.Schema.Columns {
			cols = append(cols, column{name: c.Name, typ: c.Type})
		}
	} else {
		for _, name := range names {
			if name == schema.DocumentIDColumn {
				cols = append(cols, column{name: name, typ: arrow.BinaryTypes.String, docID: true})
				continue
			}
			c, ok := s.Entry.Schema.Column(name)
			if !ok {
				return nil, nil, fserr.New(fserr.CodeInternalUnexpected,
					fmt.Sprintf("projected column %q is not part of the schema", name),
					fserr.Collection(s.Collection))
			}
			cols = append(cols, column{name: c.Name, typ: c.Type})
		}
	}

	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.name, Type: c.typ, Nullable: !c.docID}
	}
	return cols, arrow.NewSchema(fields, nil), nil
}

func (s *Scanner) newSource(group bool, groupID string, pushed []filter.Candidate, orderBy []pushdown.OrderTerm, pageSize int) source {
	if group || len(pushed) > 0 {
		// A group query runs at the database root; a subcollection
		// query must run under its owning document or the service
		// resolves the id against the top-level collection.
		parent, id := "", groupID
		if !group {
			id = s.Collection
			if i := strings.LastIndexByte(s.Collection, '/'); i >= 0 {
				parent, id = s.Collection[:i], s.Collection[i+1:]
			}
		}
		return &querySource{
			client:   s.Client,
			parent:   parent,
			pageSize: pageSize,
			query: pushdown.Query{
				CollectionID:   id,
				AllDescendants: group,
				Filters:        pushed,
				OrderBy:        orderBy,
			},
		}
	}
	return &listSource{
		client:     s.Client,
		collection: s.Collection,
		pageSize:   pageSize,
		orderBy:    renderOrderBy(orderBy),
	}
}

// renderOrderBy formats order terms as the listing parameter ("field"
// or "field desc", comma separated).
func renderOrderBy(terms []pushdown.OrderTerm) string {
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.Field
		if t.Desc {
			parts[i] += " desc"
		}
	}
	return strings.Join(parts, ", ")
}

// streamReader pulls document pages from its source and assembles them
// into record batches on demand.
type streamReader struct {
	refs   int64
	ctx    context.Context
	schema *arrow.Schema
	cols   []column
	group  bool
	src    source

	page      []client.Document
	pos       int
	batchSize int
	limit     int64
	emitted   int64

	cur  arrow.RecordBatch
	err  error
	done bool
}

func (r *streamReader) Retain() { atomic.AddInt64(&r.refs, 1) }

func (r *streamReader) Release() {
	if atomic.AddInt64(&r.refs, -1) == 0 {
		if r.cur != nil {
			r.cur.Release()
			r.cur = nil
		}
		r.done = true
	}
}

func (r *streamReader) Schema() *arrow.Schema { return r.schema }

func (r *streamReader) Record() arrow.RecordBatch      { return r.cur }
func (r *streamReader) RecordBatch() arrow.RecordBatch { return r.cur }

func (r *streamReader) Err() error { return r.err }

func (r *streamReader) Next() bool {
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	if r.done || r.err != nil {
		return false
	}

	bldr := array.NewRecordBuilder(memory.DefaultAllocator, r.schema)
	defer bldr.Release()

	rows := 0
	for rows < r.batchSize {
		if r.limit > 0 && r.emitted >= r.limit {
			r.done = true
			break
		}
		if r.pos >= len(r.page) {
			page, err := r.src.next(r.ctx)
			if err != nil {
				// Continuation failures are fatal: a partial result
				// must not masquerade as a complete one.
				r.err = err
				r.done = true
				return false
			}
			if page == nil {
				r.done = true
				break
			}
			r.page, r.pos = page, 0
			continue
		}
		r.appendRow(bldr, r.page[r.pos])
		r.pos++
		rows++
		r.emitted++
	}

	if rows == 0 {
		return false
	}
	r.cur = bldr.NewRecordBatch()
	return true
}

func (r *streamReader) appendRow(bldr *array.RecordBuilder, doc client.Document) {
	for i, col := range r.cols {
		b := bldr.Field(i)
		if col.docID {
			id := doc.ID
			if r.group {
				id = doc.Path
			}
			b.(*array.StringBuilder).Append(id)
			continue
		}
		v, ok := doc.Fields[col.name]
		if !ok {
			b.AppendNull()
			continue
		}
		appendValue(b, value.Decode(v, col.typ))
	}
}
