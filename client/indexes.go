package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hugr-lab/firebridge/fserr"
)

// IndexFieldMode is how an index orders or contains a field.
type IndexFieldMode string

const (
	IndexAscending     IndexFieldMode = "ASCENDING"
	IndexDescending    IndexFieldMode = "DESCENDING"
	IndexArrayContains IndexFieldMode = "ARRAY_CONTAINS"
)

// IndexField is one component of an index definition.
type IndexField struct {
	FieldPath string
	Mode      IndexFieldMode
}

// Index is a composite or single-field index definition. Only READY
// indexes are returned; CREATING and NEEDS_REPAIR ones are filtered
// out because the server rejects queries against them.
type Index struct {
	Name            string
	CollectionGroup bool
	Fields          []IndexField
	SingleField     bool
}

type rawIndex struct {
	Name       string `json:"name"`
	QueryScope string `json:"queryScope"`
	State      string `json:"state"`
	Fields     []struct {
		FieldPath   string          `json:"fieldPath"`
		Order       string          `json:"order"`
		ArrayConfig json.RawMessage `json:"arrayConfig"`
	} `json:"fields"`
}

// FetchIndexes lists the READY composite indexes of a collection group
// through the admin API. The endpoint is not implemented by emulators;
// callers treat a failure here as "no index information".
func (c *Client) FetchIndexes(ctx context.Context, collectionID string) ([]Index, error) {
	url := c.adminURL("collectionGroups/" + collectionID + "/indexes")

	data, err := c.doRequest(ctx, http.MethodGet, url, nil,
		fserr.Operation("fetch_indexes"), fserr.Collection(collectionID))
	if err != nil {
		return nil, fserr.Wrap(fserr.CodeIndexFetchFailed, err,
			"cannot fetch indexes", fserr.Collection(collectionID))
	}

	var raw struct {
		Indexes []rawIndex `json:"indexes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fserr.Wrap(fserr.CodeIndexParseFailed, err,
			"cannot parse index listing", fserr.Collection(collectionID))
	}

	var indexes []Index
	for _, ri := range raw.Indexes {
		if ri.State != "" && ri.State != "READY" {
			continue
		}
		idx := Index{
			Name:            ri.Name,
			CollectionGroup: ri.QueryScope == "COLLECTION_GROUP",
		}
		for _, f := range ri.Fields {
			mode := IndexAscending
			switch {
			case f.Order == "DESCENDING":
				mode = IndexDescending
			case len(f.ArrayConfig) > 0:
				mode = IndexArrayContains
			}
			idx.Fields = append(idx.Fields, IndexField{FieldPath: f.FieldPath, Mode: mode})
		}
		idx.SingleField = len(idx.Fields) == 1
		indexes = append(indexes, idx)
	}
	slog.Debug("fetched composite indexes",
		"collection", collectionID, "count", len(indexes))
	return indexes, nil
}

// CheckDefaultSingleField reports whether automatic single-field
// indexing is enabled for the database. When the admin endpoint cannot
// be reached the production default (enabled) is assumed.
func (c *Client) CheckDefaultSingleField(ctx context.Context) bool {
	url := c.adminURL("collectionGroups/__default__/fields/*")

	data, err := c.doRequest(ctx, http.MethodGet, url, nil,
		fserr.Operation("check_default_indexes"))
	if err != nil {
		slog.Debug("default index config unavailable, assuming enabled",
			"error", err)
		return true
	}

	var raw struct {
		IndexConfig struct {
			Indexes []json.RawMessage `json:"indexes"`
		} `json:"indexConfig"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Debug("default index config unparsable, assuming enabled",
			"error", err)
		return true
	}
	return len(raw.IndexConfig.Indexes) > 0
}
