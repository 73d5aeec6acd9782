package firebridge

import (
	"net/http"
	"time"

	"github.com/hugr-lab/firebridge/auth"
)

// Config contains configuration for a Bridge.
type Config struct {
	// SecretStore supplies host-managed credentials, consulted when no
	// explicit credentials accompany an operation.
	// OPTIONAL: If nil, secret lookup is skipped.
	SecretStore auth.SecretStore

	// SchemaCacheTTL bounds how long an inferred schema (and the index
	// catalog fetched with it) is reused before re-sampling. Note that
	// zero is the unset default, not "no caching": pass any negative
	// duration to infer a fresh schema on every bind.
	// OPTIONAL: If 0, one hour. Negative disables schema caching.
	SchemaCacheTTL time.Duration

	// SampleSize caps the documents sampled for schema inference.
	// OPTIONAL: If 0, 100. Clamped to 1000 (the service page limit).
	SampleSize int

	// HTTPClient performs all REST calls.
	// OPTIONAL: If nil, a client with a 30s timeout.
	HTTPClient *http.Client
}
