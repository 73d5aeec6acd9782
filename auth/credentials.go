// Package auth manages remote datastore credentials: service accounts
// with OAuth2 JWT-bearer token exchange, and non-expiring API keys.
//
// A Credentials value is shared between concurrent scans; the token
// refresh path is serialized by a per-credential lock so concurrent
// callers observing an expired token trigger at most one refresh.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/hugr-lab/firebridge/fserr"
)

// Type discriminates credential kinds.
type Type string

const (
	TypeServiceAccount Type = "service_account"
	TypeAPIKey         Type = "api_key"
)

const (
	// GoogleTokenURL is the OAuth2 token exchange endpoint.
	GoogleTokenURL = "https://oauth2.googleapis.com/token"

	// DatastoreScope is the OAuth2 scope requested for all tokens.
	DatastoreScope = "https://www.googleapis.com/auth/datastore"

	// DefaultDatabase is the database id used when none is given.
	DefaultDatabase = "(default)"

	// tokenRefreshBuffer refreshes tokens this long before expiry.
	tokenRefreshBuffer = 5 * time.Minute

	tokenLifetime = time.Hour
)

// Credentials identifies a project and how to authenticate against it.
// Safe for concurrent shared use.
type Credentials struct {
	// Type is the credential kind.
	// REQUIRED: TypeServiceAccount or TypeAPIKey.
	Type Type

	// ProjectID is the cloud project.
	// REQUIRED.
	ProjectID string

	// DatabaseID is the target database.
	// OPTIONAL: DefaultDatabase if empty.
	DatabaseID string

	// Service account fields. PrivateKey is the PEM-encoded RSA key.
	ClientEmail  string
	PrivateKeyID string
	PrivateKey   string

	// APIKey authenticates via a ?key= URL parameter instead of a
	// bearer token.
	APIKey string

	// TokenURL overrides the OAuth2 token endpoint.
	// OPTIONAL: GoogleTokenURL if empty. Used by tests and emulators.
	TokenURL string

	// HTTPClient performs the token exchange.
	// OPTIONAL: a 30s-timeout client if nil.
	HTTPClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Database returns the effective database id.
func (c *Credentials) Database() string {
	if c.DatabaseID == "" {
		return DefaultDatabase
	}
	return c.DatabaseID
}

// TokenValid reports whether the cached token can still be used. API
// keys never expire; service-account tokens expire five minutes early
// so in-flight requests do not race the real expiry.
func (c *Credentials) TokenValid() bool {
	if c.Type == TypeAPIKey {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenValidLocked()
}

func (c *Credentials) tokenValidLocked() bool {
	if c.accessToken == "" {
		return false
	}
	return time.Now().Before(c.tokenExpiry.Add(-tokenRefreshBuffer))
}

// Invalidate discards the cached token so the next call refreshes.
// Called after a 401 response.
func (c *Credentials) Invalidate() {
	if c.Type != TypeServiceAccount {
		return
	}
	c.mu.Lock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// Token returns a valid bearer token, refreshing it if needed. Returns
// an empty string for API-key credentials, which authenticate via URL.
// The lock is held across the refresh so concurrent callers observe a
// single exchange.
func (c *Credentials) Token(ctx context.Context) (string, error) {
	if c.Type == TypeAPIKey {
		return "", nil
	}
	if c.Type != TypeServiceAccount {
		return "", fserr.New(fserr.CodeAuthInvalidType, "unknown credential type",
			goerr.V("type", string(c.Type)))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokenValidLocked() {
		return c.accessToken, nil
	}

	token, err := c.exchange(ctx)
	if err != nil {
		return "", err
	}
	c.accessToken = token
	c.tokenExpiry = time.Now().Add(tokenLifetime)
	return token, nil
}

// serviceAccountFile is the subset of the key file this package reads.
type serviceAccountFile struct {
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
}

// ParseServiceAccount builds credentials from service account key JSON.
func ParseServiceAccount(data []byte) (*Credentials, error) {
	var sa serviceAccountFile
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fserr.Wrap(fserr.CodeAuthServiceAccountParse, err,
			"cannot parse service account JSON")
	}
	if sa.ProjectID == "" || sa.PrivateKey == "" || sa.ClientEmail == "" {
		return nil, fserr.New(fserr.CodeAuthServiceAccountFields,
			"service account JSON missing required fields (project_id, private_key, client_email)")
	}
	return &Credentials{
		Type:         TypeServiceAccount,
		ProjectID:    sa.ProjectID,
		PrivateKeyID: sa.PrivateKeyID,
		PrivateKey:   sa.PrivateKey,
		ClientEmail:  sa.ClientEmail,
	}, nil
}

// LoadServiceAccount reads and parses a service account key file.
func LoadServiceAccount(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fserr.Wrap(fserr.CodeAuthServiceAccountFile, err,
			"cannot open service account file", goerr.V("path", path))
	}
	return ParseServiceAccount(data)
}

// NewAPIKey builds API-key credentials.
func NewAPIKey(projectID, apiKey string) (*Credentials, error) {
	if projectID == "" {
		return nil, fserr.New(fserr.CodeConfigMissingProjectID,
			"project_id is required with api_key")
	}
	if apiKey == "" {
		return nil, fserr.New(fserr.CodeConfigMissingAPIKey, "api_key is empty")
	}
	return &Credentials{
		Type:      TypeAPIKey,
		ProjectID: projectID,
		APIKey:    apiKey,
	}, nil
}
