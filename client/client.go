// Package client implements the REST document API: CRUD, batched
// writes, structured queries and the index admin endpoints. All calls
// go through a single request path that attaches auth, classifies
// failures and retries exactly once after a token rejection.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/hugr-lab/firebridge/auth"
	"github.com/hugr-lab/firebridge/fserr"
)

const (
	productionHost = "https://firestore.googleapis.com"

	// emulatorHostEnv points requests at a local emulator over plain
	// HTTP instead of the production endpoint.
	emulatorHostEnv = "FIRESTORE_EMULATOR_HOST"

	requestTimeout = 30 * time.Second
)

// Client talks to one project/database pair. Safe for concurrent use.
type Client struct {
	creds      *auth.Credentials
	httpClient *http.Client
	emulator   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEmulator points the client at an emulator host ("host:port").
// Overrides the environment variable.
func WithEmulator(host string) Option {
	return func(c *Client) { c.emulator = host }
}

// New creates a client over the given credentials. The emulator host is
// read from the environment at construction time.
func New(creds *auth.Credentials, opts ...Option) *Client {
	c := &Client{
		creds:      creds,
		httpClient: &http.Client{Timeout: requestTimeout},
		emulator:   os.Getenv(emulatorHostEnv),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Credentials exposes the client's credential record.
func (c *Client) Credentials() *auth.Credentials { return c.creds }

// databaseRoot returns ".../v1/projects/{P}/databases/{D}" without a
// trailing slash.
func (c *Client) databaseRoot() string {
	host := productionHost
	if c.emulator != "" {
		host = "http://" + c.emulator
	}
	return host + "/v1/projects/" + c.creds.ProjectID + "/databases/" + c.creds.Database()
}

// baseURL returns the documents root for the configured database.
func (c *Client) baseURL() string {
	return c.databaseRoot() + "/documents"
}

// adminURL returns an admin endpoint URL ("collectionGroups/...").
func (c *Client) adminURL(path string) string {
	u := c.databaseRoot() + "/" + path
	return c.withParams(u, nil)
}

// DocumentPath returns the fully qualified resource name of a document.
func (c *Client) DocumentPath(collection, id string) string {
	return "projects/" + c.creds.ProjectID + "/databases/" + c.creds.Database() +
		"/documents/" + collection + "/" + id
}

// param is an ordered query parameter. A slice keeps repeated keys
// (updateMask.fieldPaths) in insertion order.
type param struct {
	key, value string
}

// withParams appends the query string, putting the API key (when the
// credentials use one) before the other parameters.
func (c *Client) withParams(u string, params []param) string {
	var sb strings.Builder
	sb.WriteString(u)
	sep := byte('?')
	if c.creds.Type == auth.TypeAPIKey {
		sb.WriteByte(sep)
		sb.WriteString("key=")
		sb.WriteString(escapeParam(c.creds.APIKey))
		sep = '&'
	}
	for _, p := range params {
		sb.WriteByte(sep)
		sep = '&'
		sb.WriteString(p.key)
		sb.WriteByte('=')
		sb.WriteString(escapeParam(p.value))
	}
	return sb.String()
}

func escapeParam(s string) string {
	// Conservative escaping for the few characters that appear in
	// page tokens and document ids.
	r := strings.NewReplacer("%", "%25", "&", "%26", "+", "%2B", "=", "%3D", "#", "%23", " ", "%20")
	return r.Replace(s)
}

// doRequest performs one authenticated request and returns the raw
// response body. A 401 invalidates the cached token and retries the
// request once with a fresh one.
func (c *Client) doRequest(ctx context.Context, method, url string, body any, opts ...goerr.Option) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fserr.Wrap(fserr.CodeInternalUnexpected, err,
				"cannot encode request body", c.errCtx(method, url, opts)...)
		}
	}

	data, err := c.doOnce(ctx, method, url, payload, opts)
	if err != nil && fserr.CodeOf(err) == fserr.CodeAuthTokenExpired &&
		c.creds.Type == auth.TypeServiceAccount {
		slog.Debug("token rejected, refreshing and retrying once",
			"method", method, "url", url)
		c.creds.Invalidate()
		data, err = c.doOnce(ctx, method, url, payload, opts)
	}
	return data, err
}

func (c *Client) doOnce(ctx context.Context, method, url string, payload []byte, opts []goerr.Option) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fserr.Wrap(fserr.CodeRequestInvalidURL, err,
			"cannot build request", c.errCtx(method, url, opts)...)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fserr.Wrap(fserr.FromTransport(err), err,
			"request failed", c.errCtx(method, url, opts)...)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fserr.Wrap(fserr.FromTransport(err), err,
			"cannot read response", c.errCtx(method, url, opts)...)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ctxOpts := append(c.errCtx(method, url, opts),
			fserr.Status(resp.StatusCode), fserr.Body(string(data)))
		return nil, fserr.New(fserr.FromStatus(resp.StatusCode),
			httpErrorText(resp.StatusCode), ctxOpts...)
	}
	return data, nil
}

// errCtx assembles the standard error context for a request.
func (c *Client) errCtx(method, url string, opts []goerr.Option) []goerr.Option {
	base := []goerr.Option{
		fserr.Method(method),
		fserr.URL(url),
		fserr.Project(c.creds.ProjectID),
		fserr.Database(c.creds.Database()),
	}
	return append(base, opts...)
}

func httpErrorText(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "authentication token rejected"
	case http.StatusForbidden:
		return "permission denied"
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusTooManyRequests:
		return "request rate limited"
	}
	if status >= 500 {
		return "server error"
	}
	return "unexpected response status"
}
