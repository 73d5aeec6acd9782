package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hugr-lab/firebridge/fserr"
)

func testPrivateKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey() error: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestParseServiceAccount(t *testing.T) {
	pemKey := testPrivateKeyPEM(t)
	data := `{"project_id":"p1","private_key_id":"kid1","private_key":` +
		jsonString(pemKey) + `,"client_email":"sa@p1.iam.gserviceaccount.com"}`

	creds, err := ParseServiceAccount([]byte(data))
	if err != nil {
		t.Fatalf("ParseServiceAccount() error: %v", err)
	}
	if creds.Type != TypeServiceAccount {
		t.Errorf("Type = %v", creds.Type)
	}
	if creds.ProjectID != "p1" || creds.ClientEmail != "sa@p1.iam.gserviceaccount.com" {
		t.Errorf("fields = %q %q", creds.ProjectID, creds.ClientEmail)
	}
	if creds.Database() != DefaultDatabase {
		t.Errorf("Database() = %q, want %q", creds.Database(), DefaultDatabase)
	}
}

func TestParseServiceAccountMissingFields(t *testing.T) {
	_, err := ParseServiceAccount([]byte(`{"project_id":"p1"}`))
	if err == nil {
		t.Fatal("expected error for missing fields")
	}
	if got := fserr.CodeOf(err); got != fserr.CodeAuthServiceAccountFields {
		t.Errorf("CodeOf() = %v, want %v", got, fserr.CodeAuthServiceAccountFields)
	}

	_, err = ParseServiceAccount([]byte(`not json`))
	if got := fserr.CodeOf(err); got != fserr.CodeAuthServiceAccountParse {
		t.Errorf("CodeOf() = %v, want %v", got, fserr.CodeAuthServiceAccountParse)
	}
}

func TestNewAPIKey(t *testing.T) {
	creds, err := NewAPIKey("p1", "key123")
	if err != nil {
		t.Fatalf("NewAPIKey() error: %v", err)
	}
	if !creds.TokenValid() {
		t.Error("API key credentials must always report a valid token")
	}
	tok, err := creds.Token(context.Background())
	if err != nil || tok != "" {
		t.Errorf("Token() = %q, %v; want empty, nil", tok, err)
	}

	if _, err := NewAPIKey("", "key123"); fserr.CodeOf(err) != fserr.CodeConfigMissingProjectID {
		t.Errorf("missing project: CodeOf() = %v", fserr.CodeOf(err))
	}
	if _, err := NewAPIKey("p1", ""); fserr.CodeOf(err) != fserr.CodeConfigMissingAPIKey {
		t.Errorf("missing key: CodeOf() = %v", fserr.CodeOf(err))
	}
}

func TestTokenExchange(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			t.Errorf("grant_type = %q", got)
		}
		if r.PostForm.Get("assertion") == "" {
			t.Error("assertion is empty")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	creds := &Credentials{
		Type:        TypeServiceAccount,
		ProjectID:   "p1",
		ClientEmail: "sa@p1.iam.gserviceaccount.com",
		PrivateKey:  testPrivateKeyPEM(t),
		TokenURL:    srv.URL,
	}

	tok, err := creds.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("Token() = %q, want tok-1", tok)
	}

	// Cached token: no second exchange.
	if _, err := creds.Token(context.Background()); err != nil {
		t.Fatalf("Token() second call error: %v", err)
	}
	if calls != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls)
	}

	// Invalidate forces a refresh on next call.
	creds.Invalidate()
	if creds.TokenValid() {
		t.Error("TokenValid() = true after Invalidate()")
	}
	if _, err := creds.Token(context.Background()); err != nil {
		t.Fatalf("Token() after invalidate error: %v", err)
	}
	if calls != 2 {
		t.Errorf("token endpoint called %d times, want 2", calls)
	}
}

func TestTokenExchangeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	creds := &Credentials{
		Type:        TypeServiceAccount,
		ProjectID:   "p1",
		ClientEmail: "sa@p1.iam.gserviceaccount.com",
		PrivateKey:  testPrivateKeyPEM(t),
		TokenURL:    srv.URL,
	}
	_, err := creds.Token(context.Background())
	if got := fserr.CodeOf(err); got != fserr.CodeAuthTokenExchangeFailed {
		t.Errorf("CodeOf() = %v, want %v", got, fserr.CodeAuthTokenExchangeFailed)
	}
}

func TestConcurrentRefreshSingleExchange(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"access_token":"tok-concurrent"}`))
	}))
	defer srv.Close()

	creds := &Credentials{
		Type:        TypeServiceAccount,
		ProjectID:   "p1",
		ClientEmail: "sa@p1.iam.gserviceaccount.com",
		PrivateKey:  testPrivateKeyPEM(t),
		TokenURL:    srv.URL,
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := creds.Token(context.Background()); err != nil {
				t.Errorf("Token() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls)
	}
}

func TestSecretMatchesDatabase(t *testing.T) {
	tests := []struct {
		name      string
		databases []string
		database  string
		want      bool
	}{
		{"empty matches default", nil, DefaultDatabase, true},
		{"empty rejects named", nil, "analytics", false},
		{"wildcard", []string{"*"}, "anything", true},
		{"list hit", []string{"a", "b"}, "b", true},
		{"list miss", []string{"a", "b"}, "c", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Secret{Databases: tt.databases}
			if got := s.MatchesDatabase(tt.database); got != tt.want {
				t.Errorf("MatchesDatabase(%q) = %v, want %v", tt.database, got, tt.want)
			}
		})
	}
}

type staticStore struct{ secret *Secret }

func (s *staticStore) Lookup(database string) (*Secret, bool) {
	if s.secret != nil && s.secret.MatchesDatabase(database) {
		return s.secret, true
	}
	return nil, false
}

func TestResolvePriority(t *testing.T) {
	dir := t.TempDir()
	pemKey := testPrivateKeyPEM(t)
	saPath := filepath.Join(dir, "sa.json")
	saJSON := `{"project_id":"file-project","private_key":` + jsonString(pemKey) +
		`,"client_email":"sa@file.iam.gserviceaccount.com"}`
	if err := os.WriteFile(saPath, []byte(saJSON), 0o600); err != nil {
		t.Fatal(err)
	}

	store := &staticStore{secret: &Secret{
		ProjectID: "secret-project",
		AuthType:  TypeAPIKey,
		APIKey:    "secret-key",
		Databases: []string{"*"},
	}}

	cache := NewCache()

	// Explicit credentials path wins over everything.
	creds, err := cache.Resolve(Options{CredentialsPath: saPath, APIKey: "k", ProjectID: "p"}, store, "")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if creds.ProjectID != "file-project" {
		t.Errorf("ProjectID = %q, want file-project", creds.ProjectID)
	}

	// Then api_key + project_id.
	creds, err = cache.Resolve(Options{APIKey: "k", ProjectID: "p"}, store, "")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if creds.Type != TypeAPIKey || creds.ProjectID != "p" {
		t.Errorf("creds = %+v", creds)
	}

	// Then the secret store.
	creds, err = cache.Resolve(Options{}, store, "analytics")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if creds.ProjectID != "secret-project" {
		t.Errorf("ProjectID = %q, want secret-project", creds.ProjectID)
	}
	if creds.Database() != "analytics" {
		t.Errorf("Database() = %q, want analytics", creds.Database())
	}

	// No source at all: nil without error.
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	creds, err = cache.Resolve(Options{}, nil, "")
	if err != nil || creds != nil {
		t.Errorf("Resolve(empty) = %v, %v; want nil, nil", creds, err)
	}

	// Environment fallback.
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", saPath)
	creds, err = cache.Resolve(Options{}, nil, "")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if creds.ProjectID != "file-project" {
		t.Errorf("ProjectID = %q, want file-project", creds.ProjectID)
	}
}

func TestResolveCachesBySourceAndDatabase(t *testing.T) {
	cache := NewCache()
	a, err := cache.Resolve(Options{APIKey: "k", ProjectID: "p", Database: "db1"}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := cache.Resolve(Options{APIKey: "k", ProjectID: "p", Database: "db1"}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same source+database must return the shared cached entry")
	}

	c, err := cache.Resolve(Options{APIKey: "k", ProjectID: "p", Database: "db2"}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if a == c {
		t.Error("different database must not share the cache entry")
	}

	cache.Purge()
	d, err := cache.Resolve(Options{APIKey: "k", ProjectID: "p", Database: "db1"}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if a == d {
		t.Error("Purge() must drop cached entries")
	}
}

// jsonString quotes s as a JSON string literal.
func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
