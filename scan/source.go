package scan

import (
	"context"

	"github.com/hugr-lab/firebridge/client"
	"github.com/hugr-lab/firebridge/pushdown"
	"github.com/hugr-lab/firebridge/value"
)

// maxPageSize is the service ceiling on documents per page.
const maxPageSize = 1000

// source streams pages of documents. A nil page marks the end of the
// stream.
type source interface {
	next(ctx context.Context) ([]client.Document, error)
}

// listSource paginates a collection listing by the service-issued page
// token.
type listSource struct {
	client     *client.Client
	collection string
	pageSize   int
	orderBy    string

	token   string
	started bool
	done    bool
}

func (s *listSource) next(ctx context.Context) ([]client.Document, error) {
	if s.done {
		return nil, nil
	}
	resp, err := s.client.List(ctx, s.collection, client.ListQuery{
		PageSize:  s.pageSize,
		PageToken: s.token,
		OrderBy:   s.orderBy,
	})
	if err != nil {
		return nil, err
	}
	s.started = true
	s.token = resp.NextPageToken
	if s.token == "" {
		s.done = true
	}
	if len(resp.Documents) == 0 {
		s.done = true
		return nil, nil
	}
	return resp.Documents, nil
}

// querySource paginates a structured query by reissuing it with a
// cursor after the last document of the previous page. A page shorter
// than the requested size ends the stream without a confirmatory empty
// fetch.
type querySource struct {
	client   *client.Client
	parent   string
	query    pushdown.Query
	pageSize int

	last    *client.Document
	started bool
	done    bool
}

func (s *querySource) next(ctx context.Context) ([]client.Document, error) {
	if s.done {
		return nil, nil
	}

	q := s.query
	q.Limit = s.pageSize
	if s.last != nil {
		q.StartAt = cursorAfter(*s.last, s.query.OrderBy)
	}

	docs, err := s.client.RunQuery(ctx, s.parent, q.JSON())
	if err != nil {
		return nil, err
	}
	s.started = true

	if len(docs) < s.pageSize {
		s.done = true
	}
	if len(docs) == 0 {
		return nil, nil
	}
	s.last = &docs[len(docs)-1]
	return docs, nil
}

// cursorAfter builds the resume cursor for the document: its order-by
// field values in clause order, then its resource path for the
// trailing __name__ clause.
func cursorAfter(doc client.Document, orderBy []pushdown.OrderTerm) *pushdown.Cursor {
	cur := &pushdown.Cursor{Reference: doc.Name}
	for _, term := range orderBy {
		v, ok := doc.Fields[term.Field]
		if !ok {
			v = value.Null()
		}
		cur.Values = append(cur.Values, v)
	}
	return cur
}
