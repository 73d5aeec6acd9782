package schema

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/firebridge/auth"
	"github.com/hugr-lab/firebridge/client"
	"github.com/hugr-lab/firebridge/fserr"
	"github.com/hugr-lab/firebridge/pushdown"
	"github.com/hugr-lab/firebridge/value"
)

func doc(fields map[string]value.Value) client.Document {
	return client.Document{Fields: fields}
}

func TestInferMajorityVote(t *testing.T) {
	docs := []client.Document{
		doc(map[string]value.Value{"n": value.Int(1)}),
		doc(map[string]value.Value{"n": value.Int(2)}),
		doc(map[string]value.Value{"n": value.String("three")}),
	}

	s := Infer("c", docs)
	col, ok := s.Column("n")
	if !ok {
		t.Fatal("column n missing")
	}
	if col.Type.ID() != arrow.INT64 {
		t.Errorf("type = %v, want int64 (majority)", col.Type)
	}
	if col.Nullable {
		t.Error("field present in every document must not be nullable")
	}
}

func TestInferTieGoesToString(t *testing.T) {
	docs := []client.Document{
		doc(map[string]value.Value{"x": value.Int(1)}),
		doc(map[string]value.Value{"x": value.String("a")}),
	}
	s := Infer("c", docs)
	col, _ := s.Column("x")
	if col.Type.ID() != arrow.STRING {
		t.Errorf("type = %v, want string on tie", col.Type)
	}
}

func TestInferTieWithoutStringIsStable(t *testing.T) {
	docs := []client.Document{
		doc(map[string]value.Value{"y": value.Int(1)}),
		doc(map[string]value.Value{"y": value.Double(1.5)}),
		doc(map[string]value.Value{"y": value.Int(2)}),
		doc(map[string]value.Value{"y": value.Double(2.5)}),
	}
	for range 10 {
		s := Infer("c", docs)
		col, _ := s.Column("y")
		if col.Type.ID() != arrow.FLOAT64 {
			t.Fatalf("type = %v, want float64 on every run", col.Type)
		}
	}
}

func TestInferNullability(t *testing.T) {
	docs := []client.Document{
		doc(map[string]value.Value{"a": value.Int(1), "b": value.Int(1)}),
		doc(map[string]value.Value{"a": value.Int(2)}),
		doc(map[string]value.Value{"a": value.Null(), "b": value.Int(3)}),
	}
	s := Infer("c", docs)

	a, _ := s.Column("a")
	if !a.Nullable {
		t.Error("field with an explicit null must be nullable")
	}
	b, _ := s.Column("b")
	if !b.Nullable {
		t.Error("field missing from a document must be nullable")
	}
	if a.Type.ID() != arrow.INT64 {
		t.Errorf("nulls must not vote: type = %v", a.Type)
	}
}

func TestInferArrayElementVote(t *testing.T) {
	docs := []client.Document{
		doc(map[string]value.Value{
			"nums":  value.Array(value.Int(1), value.Int(2), value.String("x")),
			"empty": value.Array(value.Null(), value.Null()),
		}),
		doc(map[string]value.Value{
			"nums": value.Array(value.Int(3)),
		}),
	}
	s := Infer("c", docs)

	nums, _ := s.Column("nums")
	lt, ok := nums.Type.(*arrow.ListType)
	if !ok || lt.Elem().ID() != arrow.INT64 {
		t.Errorf("nums type = %v, want list<int64>", nums.Type)
	}

	empty, _ := s.Column("empty")
	lt, ok = empty.Type.(*arrow.ListType)
	if !ok || lt.Elem().ID() != arrow.STRING {
		t.Errorf("all-null elements must default to list<string>, got %v", empty.Type)
	}
}

func TestInferVector(t *testing.T) {
	docs := []client.Document{
		doc(map[string]value.Value{"emb": value.Vector([]float64{1, 2, 3})}),
		doc(map[string]value.Value{"emb": value.Vector([]float64{4, 5, 6})}),
		doc(map[string]value.Value{"zero": value.Vector(nil)}),
	}
	s := Infer("c", docs)

	emb, _ := s.Column("emb")
	fsl, ok := emb.Type.(*arrow.FixedSizeListType)
	if !ok || fsl.Len() != 3 {
		t.Errorf("emb type = %v, want fixed_size_list[3]", emb.Type)
	}

	zero, _ := s.Column("zero")
	if _, ok := zero.Type.(*arrow.ListType); !ok {
		t.Errorf("zero-dimension vector must degrade to list<float64>, got %v", zero.Type)
	}
}

func TestInferMapAndOrder(t *testing.T) {
	docs := []client.Document{
		doc(map[string]value.Value{
			"zeta": value.Map(map[string]value.Value{"k": value.Int(1)}),
			"alpha": value.Bool(true),
		}),
	}
	s := Infer("c", docs)

	if s.Columns[0].Name != "alpha" || s.Columns[1].Name != "zeta" {
		t.Errorf("columns must be name-sorted: %+v", s.Columns)
	}
	zeta, _ := s.Column("zeta")
	if zeta.Type.ID() != arrow.STRING {
		t.Errorf("map column surfaces as string, got %v", zeta.Type)
	}
}

func TestArrowSchemaDocumentIDFirst(t *testing.T) {
	s := Infer("c", []client.Document{
		doc(map[string]value.Value{"age": value.Int(1)}),
	})
	as := s.Arrow()
	if as.Field(0).Name != DocumentIDColumn {
		t.Errorf("first field = %q", as.Field(0).Name)
	}
	if as.Field(0).Nullable {
		t.Error("document id must not be nullable")
	}
	if as.NumFields() != 2 {
		t.Errorf("NumFields() = %d", as.NumFields())
	}
}

func testInferencer(t *testing.T, srv *httptest.Server) *Inferencer {
	t.Helper()
	creds, err := auth.NewAPIKey("p1", "k1")
	if err != nil {
		t.Fatal(err)
	}
	c := client.New(creds, client.WithEmulator(strings.TrimPrefix(srv.URL, "http://")))
	return &Inferencer{Client: c}
}

func TestInferencerEmptyCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := testInferencer(t, srv).Infer(context.Background(), "ghosts")
	if got := fserr.CodeOf(err); got != fserr.CodeNotFoundCollection {
		t.Errorf("CodeOf() = %v, want %v", got, fserr.CodeNotFoundCollection)
	}
}

func TestInferencerCollectionGroup(t *testing.T) {
	var sawRunQuery bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ":runQuery") {
			sawRunQuery = true
			w.Write([]byte(`[
				{"document": {"name": "projects/p1/databases/(default)/documents/u/a/orders/o1",
				              "fields": {"total": {"doubleValue": 9.5}}}}
			]`))
			return
		}
		t.Errorf("unexpected path %q", r.URL.Path)
	}))
	defer srv.Close()

	s, err := testInferencer(t, srv).Infer(context.Background(), "~orders")
	if err != nil {
		t.Fatalf("Infer() error: %v", err)
	}
	if !sawRunQuery {
		t.Error("collection group inference must use runQuery")
	}
	col, ok := s.Column("total")
	if !ok || col.Type.ID() != arrow.FLOAT64 {
		t.Errorf("total column = %+v", col)
	}
}

func TestCacheTTL(t *testing.T) {
	c := NewCache(time.Hour)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	key := Key{Project: "p", Database: "(default)", Collection: "users"}
	entry := &Entry{Schema: &Schema{Collection: "users"}, Catalog: &pushdown.Catalog{}}

	if _, ok := c.Get(key); ok {
		t.Error("empty cache must miss")
	}
	c.Put(key, entry)
	if got, ok := c.Get(key); !ok || got != entry {
		t.Error("cached entry must be returned")
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(key); ok {
		t.Error("expired entry must miss")
	}
}

func TestCacheDisabled(t *testing.T) {
	c := NewCache(0)
	key := Key{Collection: "users"}
	c.Put(key, &Entry{})
	if _, ok := c.Get(key); ok {
		t.Error("zero TTL must disable caching")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d", c.Len())
	}
}

func TestCachePurge(t *testing.T) {
	c := NewCache(time.Hour)
	c.Put(Key{Project: "p1", Collection: "users"}, &Entry{})
	c.Put(Key{Project: "p2", Collection: "users"}, &Entry{})
	c.Put(Key{Project: "p1", Collection: "orders"}, &Entry{})

	c.Purge("users")
	if c.Len() != 1 {
		t.Errorf("Len() = %d after purging users", c.Len())
	}
	c.Purge("")
	if c.Len() != 0 {
		t.Errorf("Len() = %d after full purge", c.Len())
	}
}
