package schema

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hugr-lab/firebridge/client"
	"github.com/hugr-lab/firebridge/fserr"
)

const (
	// DefaultSampleSize bounds the inference sample when the caller
	// does not specify one.
	DefaultSampleSize = 100

	// maxSampleSize is the service's page size ceiling.
	maxSampleSize = 1000
)

// Inferencer samples a collection and infers its schema.
type Inferencer struct {
	Client *client.Client

	// SampleSize caps the number of sampled documents.
	// OPTIONAL: DefaultSampleSize if zero; clamped to 1000.
	SampleSize int
}

// Infer fetches a sample and derives the schema. A leading "~" selects
// a collection-group sample. An empty collection yields
// NOT_FOUND_COLLECTION and must not be cached.
func (inf *Inferencer) Infer(ctx context.Context, collection string) (*Schema, error) {
	size := inf.SampleSize
	if size <= 0 {
		size = DefaultSampleSize
	}
	if size > maxSampleSize {
		size = maxSampleSize
	}

	var docs []client.Document
	if id, ok := strings.CutPrefix(collection, "~"); ok {
		found, err := inf.Client.CollectionGroupQuery(ctx, id, size, "")
		if err != nil {
			return nil, fserr.Wrap(fserr.CodeScanSchemaInference, err,
				"schema sample fetch failed", fserr.Collection(collection))
		}
		docs = found
	} else {
		resp, err := inf.Client.List(ctx, collection, client.ListQuery{PageSize: size})
		if err != nil {
			return nil, fserr.Wrap(fserr.CodeScanSchemaInference, err,
				"schema sample fetch failed", fserr.Collection(collection))
		}
		docs = resp.Documents
	}

	if len(docs) == 0 {
		return nil, fserr.New(fserr.CodeNotFoundCollection,
			"collection is empty or does not exist", fserr.Collection(collection))
	}

	s := Infer(collection, docs)
	slog.Debug("schema inferred",
		"collection", collection, "columns", len(s.Columns), "sampled", len(docs))
	return s, nil
}
