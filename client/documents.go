package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hugr-lab/firebridge/fserr"
	"github.com/hugr-lab/firebridge/value"
)

// Document is one stored document. ID is the final path segment of
// Name; Path is everything after "/documents/", which differs from ID
// for documents found through collection-group queries.
type Document struct {
	Name       string
	ID         string
	Path       string
	Fields     map[string]value.Value
	CreateTime string
	UpdateTime string
}

type rawDocument struct {
	Name       string                 `json:"name"`
	Fields     map[string]value.Value `json:"fields"`
	CreateTime string                 `json:"createTime"`
	UpdateTime string                 `json:"updateTime"`
}

func parseDocument(raw rawDocument) Document {
	doc := Document{
		Name:       raw.Name,
		Fields:     raw.Fields,
		CreateTime: raw.CreateTime,
		UpdateTime: raw.UpdateTime,
	}
	if doc.Fields == nil {
		doc.Fields = map[string]value.Value{}
	}
	if i := strings.LastIndexByte(raw.Name, '/'); i >= 0 {
		doc.ID = raw.Name[i+1:]
	} else {
		doc.ID = raw.Name
	}
	if i := strings.Index(raw.Name, "/documents/"); i >= 0 {
		doc.Path = raw.Name[i+len("/documents/"):]
	} else {
		doc.Path = doc.ID
	}
	return doc
}

// ListQuery are the paging parameters for a collection listing.
type ListQuery struct {
	// PageSize caps documents per page.
	// OPTIONAL: the server default applies when zero.
	PageSize int

	// PageToken continues a previous listing.
	PageToken string

	// OrderBy is the server-side sort, e.g. "created_at desc".
	OrderBy string
}

// ListResponse is one page of documents.
type ListResponse struct {
	Documents     []Document
	NextPageToken string
}

// List fetches one page of a collection. The collection may be a
// subcollection path ("users/alice/orders").
func (c *Client) List(ctx context.Context, collection string, q ListQuery) (*ListResponse, error) {
	params := []param{}
	if q.PageSize > 0 {
		params = append(params, param{"pageSize", strconv.Itoa(q.PageSize)})
	}
	if q.PageToken != "" {
		params = append(params, param{"pageToken", q.PageToken})
	}
	if q.OrderBy != "" {
		params = append(params, param{"orderBy", q.OrderBy})
	}
	url := c.withParams(c.baseURL()+"/"+collection, params)

	data, err := c.doRequest(ctx, http.MethodGet, url, nil,
		fserr.Operation("list_documents"), fserr.Collection(collection))
	if err != nil {
		return nil, err
	}

	var raw struct {
		Documents     []rawDocument `json:"documents"`
		NextPageToken string        `json:"nextPageToken"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fserr.Wrap(fserr.CodeRequestResponseParse, err,
			"cannot parse list response",
			fserr.Operation("list_documents"), fserr.Collection(collection))
	}

	resp := &ListResponse{NextPageToken: raw.NextPageToken}
	for _, rd := range raw.Documents {
		resp.Documents = append(resp.Documents, parseDocument(rd))
	}
	return resp, nil
}

// Get fetches a single document.
func (c *Client) Get(ctx context.Context, collection, id string) (*Document, error) {
	url := c.withParams(c.baseURL()+"/"+collection+"/"+id, nil)

	data, err := c.doRequest(ctx, http.MethodGet, url, nil,
		fserr.Operation("get_document"), fserr.Collection(collection), fserr.Document(id))
	if err != nil {
		return nil, err
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fserr.Wrap(fserr.CodeRequestResponseParse, err,
			"cannot parse document",
			fserr.Operation("get_document"), fserr.Collection(collection), fserr.Document(id))
	}
	doc := parseDocument(raw)
	return &doc, nil
}

// Create inserts a new document. With an empty id the server assigns
// one; otherwise the id is passed as the documentId parameter and the
// call fails if the document already exists.
func (c *Client) Create(ctx context.Context, collection, id string, fields map[string]value.Value) (*Document, error) {
	params := []param{}
	if id != "" {
		params = append(params, param{"documentId", id})
	}
	url := c.withParams(c.baseURL()+"/"+collection, params)

	body := struct {
		Fields map[string]value.Value `json:"fields"`
	}{Fields: fields}

	data, err := c.doRequest(ctx, http.MethodPost, url, body,
		fserr.Operation("create_document"), fserr.Collection(collection), fserr.Document(id))
	if err != nil {
		return nil, err
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fserr.Wrap(fserr.CodeRequestResponseParse, err,
			"cannot parse created document",
			fserr.Operation("create_document"), fserr.Collection(collection))
	}
	doc := parseDocument(raw)
	return &doc, nil
}

// Update patches the named fields of a document. The update mask lists
// exactly the fields present, so omitted fields keep their stored
// values.
func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]value.Value) (*Document, error) {
	if len(fields) == 0 {
		return nil, fserr.New(fserr.CodeWriteUpdateNoFields, "update without fields",
			fserr.Collection(collection), fserr.Document(id))
	}

	params := make([]param, 0, len(fields))
	for name := range fields {
		params = append(params, param{"updateMask.fieldPaths", name})
	}
	url := c.withParams(c.baseURL()+"/"+collection+"/"+id, params)

	body := struct {
		Fields map[string]value.Value `json:"fields"`
	}{Fields: fields}

	data, err := c.doRequest(ctx, http.MethodPatch, url, body,
		fserr.Operation("update_document"), fserr.Collection(collection), fserr.Document(id))
	if err != nil {
		return nil, err
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fserr.Wrap(fserr.CodeRequestResponseParse, err,
			"cannot parse updated document",
			fserr.Operation("update_document"), fserr.Collection(collection), fserr.Document(id))
	}
	doc := parseDocument(raw)
	return &doc, nil
}

// Delete removes a document. Deleting a missing document succeeds.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	url := c.withParams(c.baseURL()+"/"+collection+"/"+id, nil)
	_, err := c.doRequest(ctx, http.MethodDelete, url, nil,
		fserr.Operation("delete_document"), fserr.Collection(collection), fserr.Document(id))
	return err
}

// Write is one entry of a batchWrite request. Without an update mask
// an update write replaces the whole document.
type Write struct {
	Update     *WriteDocument `json:"update,omitempty"`
	UpdateMask *WriteMask     `json:"updateMask,omitempty"`
	Delete     string         `json:"delete,omitempty"`
}

// WriteMask limits an update write to the listed fields.
type WriteMask struct {
	FieldPaths []string `json:"fieldPaths"`
}

// WriteDocument is the document payload of an upsert write.
type WriteDocument struct {
	Name   string                 `json:"name"`
	Fields map[string]value.Value `json:"fields"`
}

// WriteStatus is the per-write outcome of a batch. Code zero is
// success; the values follow the RPC status space (5 = not found,
// 7 = permission denied).
type WriteStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// BatchWriteResponse reports the per-write statuses in request order.
type BatchWriteResponse struct {
	Status []WriteStatus `json:"status"`
}

// BatchWrite applies up to 500 writes non-atomically. An empty batch
// is a no-op.
func (c *Client) BatchWrite(ctx context.Context, writes []Write) (*BatchWriteResponse, error) {
	if len(writes) == 0 {
		return &BatchWriteResponse{}, nil
	}

	url := c.withParams(c.baseURL()+":batchWrite", nil)
	body := struct {
		Writes []Write `json:"writes"`
	}{Writes: writes}

	data, err := c.doRequest(ctx, http.MethodPost, url, body,
		fserr.Operation("batch_write"))
	if err != nil {
		return nil, err
	}

	var resp BatchWriteResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fserr.Wrap(fserr.CodeRequestResponseParse, err,
			"cannot parse batchWrite response", fserr.Operation("batch_write"))
	}
	return &resp, nil
}

// ArrayOp selects the array mutation applied by ArrayTransform.
type ArrayOp string

const (
	// ArrayUnion adds elements not already present.
	ArrayUnion ArrayOp = "union"
	// ArrayRemove removes all occurrences of the elements.
	ArrayRemove ArrayOp = "remove"
	// ArrayAppend appends unconditionally via read-modify-write. Not
	// atomic: a concurrent writer between the read and the update wins.
	ArrayAppend ArrayOp = "append"
)

type fieldTransform struct {
	FieldPath             string               `json:"fieldPath"`
	AppendMissingElements *value.ArrayPayload  `json:"appendMissingElements,omitempty"`
	RemoveAllFromArray    *value.ArrayPayload  `json:"removeAllFromArray,omitempty"`
}

type transformWrite struct {
	Transform struct {
		Document        string           `json:"document"`
		FieldTransforms []fieldTransform `json:"fieldTransforms"`
	} `json:"transform"`
}

// ArrayTransform mutates an array field of one document. Union and
// remove are server-side atomic transforms through the commit endpoint;
// append reads the current elements and rewrites the field.
func (c *Client) ArrayTransform(ctx context.Context, collection, id, field string, op ArrayOp, elements []value.Value) error {
	if op == ArrayAppend {
		return c.arrayAppend(ctx, collection, id, field, elements)
	}

	ft := fieldTransform{FieldPath: field}
	payload := &value.ArrayPayload{Values: elements}
	switch op {
	case ArrayUnion:
		ft.AppendMissingElements = payload
	case ArrayRemove:
		ft.RemoveAllFromArray = payload
	default:
		return fserr.New(fserr.CodeWriteFieldValueInvalid, "unknown array operation",
			fserr.Operation("array_transform"), fserr.Collection(collection), fserr.Document(id))
	}

	var w transformWrite
	w.Transform.Document = c.DocumentPath(collection, id)
	w.Transform.FieldTransforms = []fieldTransform{ft}

	url := c.withParams(c.baseURL()+":commit", nil)
	body := struct {
		Writes []transformWrite `json:"writes"`
	}{Writes: []transformWrite{w}}

	_, err := c.doRequest(ctx, http.MethodPost, url, body,
		fserr.Operation("array_transform"), fserr.Collection(collection), fserr.Document(id))
	return err
}

func (c *Client) arrayAppend(ctx context.Context, collection, id, field string, elements []value.Value) error {
	doc, err := c.Get(ctx, collection, id)
	if err != nil {
		return err
	}

	current := []value.Value{}
	if v, ok := doc.Fields[field]; ok && v.ArrayValue != nil {
		current = v.ArrayValue.Values
	}
	current = append(current, elements...)

	_, err = c.Update(ctx, collection, id, map[string]value.Value{
		field: value.Array(current...),
	})
	return err
}

// RunQuery executes a structured query under the given parent document
// path, relative to the documents root. An empty parent queries at the
// database root; a subcollection's query must name the owning document
// ("users/alice") or it resolves against the top-level collection of
// the same id. The response is a stream of result items; items without
// a document (progress markers, final read time) are skipped.
func (c *Client) RunQuery(ctx context.Context, parent string, structuredQuery any) ([]Document, error) {
	target := c.baseURL()
	if parent != "" {
		target += "/" + parent
	}
	url := c.withParams(target+":runQuery", nil)
	body := map[string]any{"structuredQuery": structuredQuery}

	data, err := c.doRequest(ctx, http.MethodPost, url, body,
		fserr.Operation("run_query"), fserr.Document(parent))
	if err != nil {
		return nil, err
	}

	var items []struct {
		Document *rawDocument `json:"document"`
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fserr.Wrap(fserr.CodeRequestResponseParse, err,
			"cannot parse runQuery response",
			fserr.Operation("run_query"), fserr.Document(parent))
	}

	var docs []Document
	for _, item := range items {
		if item.Document == nil {
			continue
		}
		docs = append(docs, parseDocument(*item.Document))
	}
	slog.Debug("runQuery finished", "parent", parent, "documents", len(docs))
	return docs, nil
}

// CollectionGroupQuery lists documents across every collection with the
// given id, regardless of nesting depth. Order is "field" or
// "field desc"; the limit caps the result size.
func (c *Client) CollectionGroupQuery(ctx context.Context, collectionID string, limit int, orderBy string) ([]Document, error) {
	sq := map[string]any{
		"from": []map[string]any{{
			"collectionId":   collectionID,
			"allDescendants": true,
		}},
	}
	if limit > 0 {
		sq["limit"] = limit
	}
	if orderBy != "" {
		field := orderBy
		direction := "ASCENDING"
		if i := strings.IndexByte(orderBy, ' '); i >= 0 {
			field = orderBy[:i]
			if strings.EqualFold(strings.TrimSpace(orderBy[i+1:]), "desc") {
				direction = "DESCENDING"
			}
		}
		sq["orderBy"] = []map[string]any{{
			"field":     map[string]any{"fieldPath": field},
			"direction": direction,
		}}
	}
	return c.RunQuery(ctx, "", sq)
}
