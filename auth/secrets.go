package auth

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/hugr-lab/firebridge/fserr"
)

// Secret is a stored credential record provided by the host's secret
// store. Database may list explicit ids or contain the "*" wildcard.
type Secret struct {
	ProjectID          string
	AuthType           Type
	ServiceAccountJSON string
	APIKey             string
	Databases          []string
}

// MatchesDatabase reports whether the secret applies to the database.
// An empty list matches only the default database.
func (s *Secret) MatchesDatabase(database string) bool {
	if len(s.Databases) == 0 {
		return database == DefaultDatabase
	}
	for _, db := range s.Databases {
		if db == "*" || db == database {
			return true
		}
	}
	return false
}

// Credentials materializes the secret into a credential record.
func (s *Secret) Credentials(database string) (*Credentials, error) {
	switch s.AuthType {
	case TypeServiceAccount:
		if s.ServiceAccountJSON == "" {
			return nil, fserr.New(fserr.CodeConfigSecretInvalid,
				"secret missing service_account_json")
		}
		creds, err := ParseServiceAccount([]byte(s.ServiceAccountJSON))
		if err != nil {
			return nil, err
		}
		if s.ProjectID != "" {
			creds.ProjectID = s.ProjectID
		}
		creds.DatabaseID = database
		return creds, nil

	case TypeAPIKey:
		if s.ProjectID == "" {
			return nil, fserr.New(fserr.CodeConfigSecretInvalid,
				"secret missing project_id")
		}
		creds, err := NewAPIKey(s.ProjectID, s.APIKey)
		if err != nil {
			return nil, err
		}
		creds.DatabaseID = database
		return creds, nil
	}
	return nil, fserr.New(fserr.CodeConfigSecretAuthType, "unknown auth_type in secret",
		goerr.V("auth_type", string(s.AuthType)))
}

// SecretStore is the host-provided lookup for stored secrets.
type SecretStore interface {
	// Lookup returns the first secret applicable to the database.
	Lookup(database string) (*Secret, bool)
}
