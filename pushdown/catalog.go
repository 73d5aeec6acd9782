// Package pushdown decides which filters can be evaluated remotely.
// The service rejects queries whose filters are not covered by an
// index, so the planner pushes what the index catalog says is covered;
// everything else stays local. Pushdown is an optimization, never a
// correctness substitute: the engine re-applies all predicates.
package pushdown

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hugr-lab/firebridge/client"
)

// Catalog is the index information of one collection group, cached
// alongside the collection's schema.
type Catalog struct {
	Indexes []client.Index

	// DefaultSingleField is true when automatic single-field indexing
	// is enabled, which makes every field range-queryable.
	DefaultSingleField bool

	// FetchSucceeded records whether the admin endpoint answered.
	FetchSucceeded bool
}

// FetchCatalog loads the index catalog for a collection group. Fetch
// failures are expected (emulators have no admin surface); the service
// indexes every field by default, so a failed fetch assumes default
// single-field indexing and pushes optimistically. A wrongly pushed
// filter is recovered by the scan's first-fetch downgrade.
func FetchCatalog(ctx context.Context, c *client.Client, collection string) *Catalog {
	collectionID := collection
	if i := strings.LastIndexByte(collection, '/'); i >= 0 {
		collectionID = collection[i+1:]
	}
	collectionID = strings.TrimPrefix(collectionID, "~")

	indexes, err := c.FetchIndexes(ctx, collectionID)
	if err != nil {
		slog.Debug("index catalog unavailable, assuming default indexing",
			"collection", collection, "error", err)
		return &Catalog{DefaultSingleField: true}
	}
	return &Catalog{
		Indexes:            indexes,
		DefaultSingleField: c.CheckDefaultSingleField(ctx),
		FetchSucceeded:     true,
	}
}

// HasSingleField reports whether the field can serve a single-field
// query: either automatic indexing is on, or an explicit single-field
// index exists.
func (cat *Catalog) HasSingleField(field string) bool {
	if cat.DefaultSingleField {
		return true
	}
	for _, idx := range cat.Indexes {
		if idx.SingleField && idx.Fields[0].FieldPath == field {
			return true
		}
	}
	return false
}

// FindComposite returns a composite index whose fields (ignoring the
// implicit __name__ tail) cover all of required.
func (cat *Catalog) FindComposite(required map[string]bool) *client.Index {
	for i := range cat.Indexes {
		idx := &cat.Indexes[i]
		if idx.SingleField {
			continue
		}
		covered := make(map[string]bool, len(idx.Fields))
		for _, f := range idx.Fields {
			if f.FieldPath == "__name__" {
				continue
			}
			covered[f.FieldPath] = true
		}
		ok := true
		for field := range required {
			if !covered[field] {
				ok = false
				break
			}
		}
		if ok {
			return idx
		}
	}
	return nil
}
