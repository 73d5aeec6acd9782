package auth

import (
	"os"
	"sync"
)

// Options are the credential-selection parameters accepted by every
// scan and write operation.
type Options struct {
	ProjectID       string
	CredentialsPath string
	APIKey          string
	Database        string
}

// Cache is a process-wide credential cache keyed by source path (or
// api-key/project pair) plus database. Entries are shared and refreshed
// in place; Purge drops them all.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Credentials
}

// NewCache creates an empty credential cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Credentials)}
}

// getOrCreate returns the cached entry for key or stores a new one.
func (c *Cache) getOrCreate(key string, create func() (*Credentials, error)) (*Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if creds, ok := c.entries[key]; ok {
		return creds, nil
	}
	creds, err := create()
	if err != nil {
		return nil, err
	}
	c.entries[key] = creds
	return creds, nil
}

// Purge drops all cached credentials.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]*Credentials)
	c.mu.Unlock()
}

// Resolve finds credentials for an operation. Priority, first match
// wins: explicit credentials path, explicit api_key+project_id, the
// host secret store, the GOOGLE_APPLICATION_CREDENTIALS environment
// variable. The effective database is the explicit parameter, else the
// session-connected database, else the default.
//
// Returns nil (no error) when no source matches; the caller raises the
// configuration error with its own context.
func (c *Cache) Resolve(opts Options, store SecretStore, sessionDB string) (*Credentials, error) {
	database := opts.Database
	if database == "" {
		database = sessionDB
	}
	if database == "" {
		database = DefaultDatabase
	}

	if opts.CredentialsPath != "" {
		return c.getOrCreate("file:"+opts.CredentialsPath+"#"+database, func() (*Credentials, error) {
			creds, err := LoadServiceAccount(opts.CredentialsPath)
			if err != nil {
				return nil, err
			}
			creds.DatabaseID = database
			return creds, nil
		})
	}

	if opts.APIKey != "" {
		return c.getOrCreate("apikey:"+opts.ProjectID+"#"+database, func() (*Credentials, error) {
			creds, err := NewAPIKey(opts.ProjectID, opts.APIKey)
			if err != nil {
				return nil, err
			}
			creds.DatabaseID = database
			return creds, nil
		})
	}

	if store != nil {
		if secret, ok := store.Lookup(database); ok {
			return c.getOrCreate("secret:"+secret.ProjectID+"#"+database, func() (*Credentials, error) {
				return secret.Credentials(database)
			})
		}
	}

	if path := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); path != "" {
		return c.getOrCreate("file:"+path+"#"+database, func() (*Credentials, error) {
			creds, err := LoadServiceAccount(path)
			if err != nil {
				return nil, err
			}
			creds.DatabaseID = database
			return creds, nil
		})
	}

	return nil, nil
}
