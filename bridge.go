package firebridge

import (
	"context"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/hugr-lab/firebridge/auth"
	"github.com/hugr-lab/firebridge/client"
	"github.com/hugr-lab/firebridge/fserr"
	"github.com/hugr-lab/firebridge/internal/recovery"
	"github.com/hugr-lab/firebridge/internal/serialize"
	"github.com/hugr-lab/firebridge/pushdown"
	"github.com/hugr-lab/firebridge/scan"
	"github.com/hugr-lab/firebridge/schema"
	"github.com/hugr-lab/firebridge/value"
	"github.com/hugr-lab/firebridge/write"
)

// Bridge is the host-facing facade. It owns the process-wide caches
// (schemas with their index catalogs, resolved credentials) and the
// per-session connected-database state. Safe for concurrent use.
type Bridge struct {
	cfg     Config
	schemas *schema.Cache
	creds   *auth.Cache

	mu       sync.Mutex
	sessions map[string]string
}

// New creates a Bridge with empty caches.
func New(cfg Config) *Bridge {
	ttl := cfg.SchemaCacheTTL
	switch {
	case ttl == 0:
		ttl = schema.DefaultTTL
	case ttl < 0:
		ttl = 0
	}
	return &Bridge{
		cfg:      cfg,
		schemas:  schema.NewCache(ttl),
		creds:    auth.NewCache(),
		sessions: make(map[string]string),
	}
}

// Connect pins a database for the session; later operations without an
// explicit database parameter use it.
func (b *Bridge) Connect(sessionID, database string) {
	b.mu.Lock()
	b.sessions[sessionID] = database
	b.mu.Unlock()
}

// Disconnect drops the session's connected database.
func (b *Bridge) Disconnect(sessionID string) {
	b.mu.Lock()
	delete(b.sessions, sessionID)
	b.mu.Unlock()
}

func (b *Bridge) sessionDatabase(sessionID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[sessionID]
}

// ClearCache purges cached schemas for the collection, or, with an
// empty collection, every cached schema and credential.
func (b *Bridge) ClearCache(collection string) {
	b.schemas.Purge(collection)
	if collection == "" {
		b.creds.Purge()
	}
}

// ScanOptions tune one scan call.
type ScanOptions struct {
	// Credentials select the project and auth material.
	Credentials auth.Options

	// Columns projects the output; empty means document id plus every
	// inferred column.
	Columns []string

	// Filter is the host's serialized predicate tree, may be empty.
	Filter []byte

	// Limit caps emitted rows. Zero means unbounded.
	Limit int64

	// BatchSize caps rows per emitted record batch.
	BatchSize int

	// OrderBy is a comma-separated list of "field" or "field desc"
	// terms applied server-side.
	OrderBy string
}

// Scan streams the collection as Arrow record batches. The first scan
// of a collection samples it to infer the schema and fetches the index
// catalog; both are cached.
func (b *Bridge) Scan(ctx context.Context, sessionID, collection string, opts ScanOptions) (array.RecordReader, error) {
	return recovery.ToValue("scan", func() (array.RecordReader, error) {
		c, err := b.connect(sessionID, opts.Credentials)
		if err != nil {
			return nil, err
		}
		entry, err := b.entry(ctx, c, collection)
		if err != nil {
			return nil, err
		}
		order, err := parseOrderBy(opts.OrderBy)
		if err != nil {
			return nil, err
		}
		s := &scan.Scanner{Client: c, Entry: entry, Collection: collection}
		return s.Scan(ctx, scan.Options{
			Columns:   opts.Columns,
			Filter:    opts.Filter,
			Limit:     opts.Limit,
			BatchSize: opts.BatchSize,
			OrderBy:   order,
		})
	})
}

// Schema returns the collection's Arrow schema, inferring and caching
// it when absent.
func (b *Bridge) Schema(ctx context.Context, sessionID, collection string, creds auth.Options) (*schema.Schema, error) {
	return recovery.ToValue("schema", func() (*schema.Schema, error) {
		c, err := b.connect(sessionID, creds)
		if err != nil {
			return nil, err
		}
		entry, err := b.entry(ctx, c, collection)
		if err != nil {
			return nil, err
		}
		return entry.Schema, nil
	})
}

// PlanScan binds the collection (warming the schema cache) and returns
// an opaque ticket that ScanTicket can execute later, possibly in
// another process.
func (b *Bridge) PlanScan(ctx context.Context, sessionID, collection string, opts ScanOptions) ([]byte, error) {
	return recovery.ToValue("plan_scan", func() ([]byte, error) {
		c, err := b.connect(sessionID, opts.Credentials)
		if err != nil {
			return nil, err
		}
		if _, err := b.entry(ctx, c, collection); err != nil {
			return nil, err
		}
		return serialize.EncodeTicket(&serialize.Ticket{
			Project:    c.Credentials().ProjectID,
			Database:   c.Credentials().Database(),
			Collection: collection,
			Columns:    opts.Columns,
			Filter:     opts.Filter,
			Limit:      opts.Limit,
			BatchSize:  opts.BatchSize,
		})
	})
}

// ScanTicket executes a scan planned by PlanScan. The credential
// options still select the auth material; project and database default
// to the ticket's.
func (b *Bridge) ScanTicket(ctx context.Context, sessionID string, ticket []byte, creds auth.Options) (array.RecordReader, error) {
	t, err := serialize.DecodeTicket(ticket)
	if err != nil {
		return nil, fserr.Wrap(fserr.CodeRequestResponseParse, err, "malformed scan ticket")
	}
	if creds.ProjectID == "" {
		creds.ProjectID = t.Project
	}
	if creds.Database == "" {
		creds.Database = t.Database
	}
	return b.Scan(ctx, sessionID, t.Collection, ScanOptions{
		Credentials: creds,
		Columns:     t.Columns,
		Filter:      t.Filter,
		Limit:       t.Limit,
		BatchSize:   t.BatchSize,
	})
}

// Insert writes rows into the collection and returns the number
// created.
func (b *Bridge) Insert(ctx context.Context, sessionID, collection string, creds auth.Options, rows []write.Row) (int64, error) {
	return recovery.ToValue("insert", func() (int64, error) {
		p, err := b.planner(sessionID, collection, creds)
		if err != nil {
			return 0, err
		}
		return p.Insert(ctx, rows)
	})
}

// Update patches one document; the count is 1, or 0 when the document
// does not exist.
func (b *Bridge) Update(ctx context.Context, sessionID, collection string, creds auth.Options, id string, fields map[string]value.Value) (int64, error) {
	return recovery.ToValue("update", func() (int64, error) {
		p, err := b.planner(sessionID, collection, creds)
		if err != nil {
			return 0, err
		}
		return p.Update(ctx, id, fields)
	})
}

// Delete removes one document; the count is 1, or 0 when the document
// does not exist.
func (b *Bridge) Delete(ctx context.Context, sessionID, collection string, creds auth.Options, id string) (int64, error) {
	return recovery.ToValue("delete", func() (int64, error) {
		p, err := b.planner(sessionID, collection, creds)
		if err != nil {
			return 0, err
		}
		return p.Delete(ctx, id)
	})
}

// UpdateBatch applies one field patch to many documents.
func (b *Bridge) UpdateBatch(ctx context.Context, sessionID, collection string, creds auth.Options, ids []string, fields map[string]value.Value) (int64, error) {
	return recovery.ToValue("update_batch", func() (int64, error) {
		p, err := b.planner(sessionID, collection, creds)
		if err != nil {
			return 0, err
		}
		return p.UpdateBatch(ctx, ids, fields)
	})
}

// DeleteBatch removes many documents.
func (b *Bridge) DeleteBatch(ctx context.Context, sessionID, collection string, creds auth.Options, ids []string) (int64, error) {
	return recovery.ToValue("delete_batch", func() (int64, error) {
		p, err := b.planner(sessionID, collection, creds)
		if err != nil {
			return 0, err
		}
		return p.DeleteBatch(ctx, ids)
	})
}

// ArrayTransform mutates an array field of one document and returns 1
// on success.
func (b *Bridge) ArrayTransform(ctx context.Context, sessionID, collection string, creds auth.Options, id, field string, op client.ArrayOp, elements []value.Value) (int64, error) {
	return recovery.ToValue("array_transform", func() (int64, error) {
		p, err := b.planner(sessionID, collection, creds)
		if err != nil {
			return 0, err
		}
		if err := p.ArrayTransform(ctx, id, field, op, elements); err != nil {
			return 0, err
		}
		return 1, nil
	})
}

// connect resolves credentials for the session and builds a client.
func (b *Bridge) connect(sessionID string, opts auth.Options) (*client.Client, error) {
	creds, err := b.creds.Resolve(opts, b.cfg.SecretStore, b.sessionDatabase(sessionID))
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, fserr.New(fserr.CodeConfigMissingCredentials,
			"no credentials: pass credentials/api_key, define a secret, or set GOOGLE_APPLICATION_CREDENTIALS")
	}
	var copts []client.Option
	if b.cfg.HTTPClient != nil {
		copts = append(copts, client.WithHTTPClient(b.cfg.HTTPClient))
	}
	return client.New(creds, copts...), nil
}

// entry returns the cached schema entry for the collection, inferring
// the schema and fetching the index catalog on a miss. Empty
// collections fail with NOT_FOUND and are never cached.
func (b *Bridge) entry(ctx context.Context, c *client.Client, collection string) (*schema.Entry, error) {
	key := schema.Key{
		Project:    c.Credentials().ProjectID,
		Database:   c.Credentials().Database(),
		Collection: collection,
	}
	if entry, ok := b.schemas.Get(key); ok {
		return entry, nil
	}

	inf := &schema.Inferencer{Client: c, SampleSize: b.cfg.SampleSize}
	s, err := inf.Infer(ctx, collection)
	if err != nil {
		return nil, err
	}
	entry := &schema.Entry{
		Schema:  s,
		Catalog: pushdown.FetchCatalog(ctx, c, collection),
	}
	b.schemas.Put(key, entry)
	return entry, nil
}

func (b *Bridge) planner(sessionID, collection string, creds auth.Options) (*write.Planner, error) {
	c, err := b.connect(sessionID, creds)
	if err != nil {
		return nil, err
	}
	return &write.Planner{Client: c, Collection: collection}, nil
}

// parseOrderBy parses "field [desc], field [asc], ..." into order
// terms.
func parseOrderBy(s string) ([]pushdown.OrderTerm, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var terms []pushdown.OrderTerm
	for _, part := range strings.Split(s, ",") {
		tokens := strings.Fields(part)
		switch len(tokens) {
		case 1:
			terms = append(terms, pushdown.OrderTerm{Field: tokens[0]})
		case 2:
			switch strings.ToLower(tokens[1]) {
			case "asc":
				terms = append(terms, pushdown.OrderTerm{Field: tokens[0]})
			case "desc":
				terms = append(terms, pushdown.OrderTerm{Field: tokens[0], Desc: true})
			default:
				return nil, fserr.New(fserr.CodeScanInvalidOrderBy,
					"order direction must be asc or desc: "+part)
			}
		default:
			return nil, fserr.New(fserr.CodeScanInvalidOrderBy,
				"malformed order term: "+part)
		}
	}
	return terms, nil
}
