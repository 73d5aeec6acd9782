// Package write plans document mutations. Multi-document operations go
// through the non-atomic batch endpoint in chunks of 500; when the
// service denies a batch (security rules are not evaluated for batch
// writes under non-admin credentials) the planner falls back to
// per-document requests for the rest of its lifetime.
package write

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hugr-lab/firebridge/client"
	"github.com/hugr-lab/firebridge/fserr"
	"github.com/hugr-lab/firebridge/value"
)

// maxBatchSize is the service limit on writes per batch request.
const maxBatchSize = 500

// RPC status codes surfaced in per-write batch statuses.
const (
	rpcNotFound         = 5
	rpcPermissionDenied = 7
)

// Row is one document payload. An empty ID asks the server to assign
// one on insert.
type Row struct {
	ID     string
	Fields map[string]value.Value
}

// Planner executes mutations against one collection. A leading "~"
// marks a collection group; its document ids are full relative paths
// under the database's documents root.
type Planner struct {
	Client     *client.Client
	Collection string

	mu    sync.Mutex
	perOp bool
}

// Insert writes the given rows and returns the number created. Rows
// without an id are created one by one so the server can assign ids;
// rows with an id are buffered into batch upserts.
func (p *Planner) Insert(ctx context.Context, rows []Row) (int64, error) {
	var count int64
	var batch []client.Write

	for _, row := range rows {
		if row.ID == "" {
			if strings.HasPrefix(p.Collection, "~") {
				return count, fserr.New(fserr.CodeWriteDocIDInvalid,
					"collection group inserts need explicit document ids",
					fserr.Collection(p.Collection))
			}
			if _, err := p.Client.Create(ctx, p.Collection, "", row.Fields); err != nil {
				return count, err
			}
			count++
			continue
		}

		collection, id, err := p.resolve(row.ID)
		if err != nil {
			return count, err
		}
		if p.usePerOp() {
			if _, err := p.Client.Create(ctx, collection, id, row.Fields); err != nil {
				return count, err
			}
			count++
			continue
		}

		batch = append(batch, client.Write{
			Update: &client.WriteDocument{
				Name:   p.Client.DocumentPath(collection, id),
				Fields: row.Fields,
			},
		})
		if len(batch) == maxBatchSize {
			n, err := p.flush(ctx, batch)
			count += n
			if err != nil {
				return count, err
			}
			batch = batch[:0]
		}
	}

	n, err := p.flush(ctx, batch)
	count += n
	return count, err
}

// Update patches one document and reports 1 on success, 0 when the
// document does not exist.
func (p *Planner) Update(ctx context.Context, id string, fields map[string]value.Value) (int64, error) {
	collection, docID, err := p.resolve(id)
	if err != nil {
		return 0, err
	}
	if _, err := p.Client.Update(ctx, collection, docID, fields); err != nil {
		if fserr.IsNotFound(err) {
			return 0, nil
		}
		return 0, fserr.Wrap(fserr.CodeWriteUpdateFailed, err, "update failed",
			fserr.Collection(p.Collection), fserr.Document(id))
	}
	return 1, nil
}

// Delete removes one document and reports 1 on success, 0 when the
// document does not exist.
func (p *Planner) Delete(ctx context.Context, id string) (int64, error) {
	collection, docID, err := p.resolve(id)
	if err != nil {
		return 0, err
	}
	if err := p.Client.Delete(ctx, collection, docID); err != nil {
		if fserr.IsNotFound(err) {
			return 0, nil
		}
		return 0, fserr.Wrap(fserr.CodeWriteDeleteFailed, err, "delete failed",
			fserr.Collection(p.Collection), fserr.Document(id))
	}
	return 1, nil
}

// UpdateBatch applies the same field patch to every listed document and
// returns the number updated. Missing documents are skipped.
func (p *Planner) UpdateBatch(ctx context.Context, ids []string, fields map[string]value.Value) (int64, error) {
	mask := &client.WriteMask{FieldPaths: make([]string, 0, len(fields))}
	for name := range fields {
		mask.FieldPaths = append(mask.FieldPaths, name)
	}

	var count int64
	var batch []client.Write
	for _, id := range ids {
		collection, docID, err := p.resolve(id)
		if err != nil {
			return count, err
		}
		if p.usePerOp() {
			n, err := p.Update(ctx, id, fields)
			count += n
			if err != nil {
				return count, err
			}
			continue
		}
		batch = append(batch, client.Write{
			Update: &client.WriteDocument{
				Name:   p.Client.DocumentPath(collection, docID),
				Fields: fields,
			},
			UpdateMask: mask,
		})
		if len(batch) == maxBatchSize {
			n, err := p.flush(ctx, batch)
			count += n
			if err != nil {
				return count, err
			}
			batch = batch[:0]
		}
	}

	n, err := p.flush(ctx, batch)
	count += n
	return count, err
}

// DeleteBatch removes the listed documents and returns the number
// deleted. Missing documents are skipped.
func (p *Planner) DeleteBatch(ctx context.Context, ids []string) (int64, error) {
	var count int64
	var batch []client.Write
	for _, id := range ids {
		collection, docID, err := p.resolve(id)
		if err != nil {
			return count, err
		}
		if p.usePerOp() {
			n, err := p.Delete(ctx, id)
			count += n
			if err != nil {
				return count, err
			}
			continue
		}
		batch = append(batch, client.Write{
			Delete: p.Client.DocumentPath(collection, docID),
		})
		if len(batch) == maxBatchSize {
			n, err := p.flush(ctx, batch)
			count += n
			if err != nil {
				return count, err
			}
			batch = batch[:0]
		}
	}

	n, err := p.flush(ctx, batch)
	count += n
	return count, err
}

// ArrayTransform mutates an array field of one document.
func (p *Planner) ArrayTransform(ctx context.Context, id, field string, op client.ArrayOp, elements []value.Value) error {
	collection, docID, err := p.resolve(id)
	if err != nil {
		return err
	}
	return p.Client.ArrayTransform(ctx, collection, docID, field, op, elements)
}

// resolve maps a document id to the collection path and final id the
// client addresses. For collection groups the id is the document's
// full relative path.
func (p *Planner) resolve(id string) (string, string, error) {
	if !strings.HasPrefix(p.Collection, "~") {
		return p.Collection, id, nil
	}
	i := strings.LastIndexByte(id, '/')
	if i <= 0 || i == len(id)-1 {
		return "", "", fserr.New(fserr.CodeWriteDocIDInvalid,
			"collection group writes address documents by full path",
			fserr.Collection(p.Collection), fserr.Document(id))
	}
	return id[:i], id[i+1:], nil
}

func (p *Planner) usePerOp() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.perOp
}

func (p *Planner) downgrade() {
	p.mu.Lock()
	if !p.perOp {
		p.perOp = true
		slog.Warn("batch write denied, switching to per-document requests",
			"collection", p.Collection)
	}
	p.mu.Unlock()
}

// flush sends one batch and counts successful writes. A denied batch
// triggers the per-document fallback; per-write NOT_FOUND statuses are
// skipped, any other failure status aborts.
func (p *Planner) flush(ctx context.Context, batch []client.Write) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	resp, err := p.Client.BatchWrite(ctx, batch)
	if err != nil {
		if !fserr.IsPermission(err) {
			return 0, err
		}
		p.downgrade()
		return p.applyPerOp(ctx, batch)
	}

	var count int64
	for i, st := range resp.Status {
		switch st.Code {
		case 0:
			count++
		case rpcNotFound:
			slog.Warn("document not found during batch write",
				"collection", p.Collection, "index", i)
		case rpcPermissionDenied:
			p.downgrade()
			n, err := p.applyPerOp(ctx, batch[i:i+1])
			count += n
			if err != nil {
				return count, err
			}
		default:
			return count, fserr.New(fserr.CodeWriteBatchPartialFailure,
				fmt.Sprintf("write %d failed: %s", i, st.Message),
				fserr.Collection(p.Collection), fserr.BatchIndex(i))
		}
	}
	return count, nil
}

// applyPerOp replays batch entries as individual requests.
func (p *Planner) applyPerOp(ctx context.Context, batch []client.Write) (int64, error) {
	var count int64
	for _, w := range batch {
		name := w.Delete
		if w.Update != nil {
			name = w.Update.Name
		}
		collection, id, err := splitName(name)
		if err != nil {
			return count, err
		}

		if w.Update != nil {
			_, err = p.Client.Update(ctx, collection, id, w.Update.Fields)
		} else {
			err = p.Client.Delete(ctx, collection, id)
		}
		if err != nil {
			if fserr.IsNotFound(err) {
				slog.Warn("document not found during batch fallback",
					"collection", collection, "document", id)
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}

// splitName turns a fully qualified document name back into the
// collection path and document id.
func splitName(name string) (string, string, error) {
	rel := name
	if i := strings.Index(name, "/documents/"); i >= 0 {
		rel = name[i+len("/documents/"):]
	}
	i := strings.LastIndexByte(rel, '/')
	if i <= 0 {
		return "", "", fserr.New(fserr.CodeWriteDocIDInvalid,
			"malformed document name", fserr.Document(name))
	}
	return rel[:i], rel[i+1:], nil
}
