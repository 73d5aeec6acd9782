// Package fserr defines the error taxonomy shared by every component of
// the bridge. Errors carry a stable numeric code plus a structured
// context (operation, collection, HTTP status, ...) so that callers and
// logs can identify a failure without parsing message text.
package fserr

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// Category tags. Attached to every error so callers can branch on the
// failure class without enumerating codes.
var (
	TagAuth       = goerr.NewTag("auth")
	TagPermission = goerr.NewTag("permission")
	TagNotFound   = goerr.NewTag("not_found")
	TagNetwork    = goerr.NewTag("network")
	TagRequest    = goerr.NewTag("request")
	TagConfig     = goerr.NewTag("config")
	TagType       = goerr.NewTag("type")
	TagWrite      = goerr.NewTag("write")
	TagScan       = goerr.NewTag("scan")
	TagIndex      = goerr.NewTag("index")
	TagInternal   = goerr.NewTag("internal")
)

const codeKey = "code"

func categoryTag(c Code) goerr.Option {
	switch c.Category() {
	case CategoryAuth:
		return goerr.Tag(TagAuth)
	case CategoryPermission:
		return goerr.Tag(TagPermission)
	case CategoryNotFound:
		return goerr.Tag(TagNotFound)
	case CategoryNetwork:
		return goerr.Tag(TagNetwork)
	case CategoryRequest:
		return goerr.Tag(TagRequest)
	case CategoryConfig:
		return goerr.Tag(TagConfig)
	case CategoryType:
		return goerr.Tag(TagType)
	case CategoryWrite:
		return goerr.Tag(TagWrite)
	case CategoryScan:
		return goerr.Tag(TagScan)
	case CategoryIndex:
		return goerr.Tag(TagIndex)
	default:
		return goerr.Tag(TagInternal)
	}
}

// New creates an error with the given code. The formatted message is
// "[FS_XXXXXXXX] msg"; extra options attach context values.
func New(code Code, msg string, options ...goerr.Option) error {
	opts := append([]goerr.Option{
		goerr.V(codeKey, code),
		categoryTag(code),
	}, options...)
	return goerr.New("["+code.String()+"] "+msg, opts...)
}

// Wrap wraps a cause with the given code, preserving the cause chain.
func Wrap(code Code, cause error, msg string, options ...goerr.Option) error {
	opts := append([]goerr.Option{
		goerr.V(codeKey, code),
		categoryTag(code),
	}, options...)
	return goerr.Wrap(cause, "["+code.String()+"] "+msg, opts...)
}

// CodeOf extracts the taxonomy code from an error chain. Returns
// CodeInternalUnexpected for errors raised outside this taxonomy.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var ge *goerr.Error
	if errors.As(err, &ge) {
		if c, ok := goerr.Values(err)[codeKey].(Code); ok {
			return c
		}
	}
	return CodeInternalUnexpected
}

// HasCategory reports whether the error belongs to the given category.
func HasCategory(err error, category uint8) bool {
	return CodeOf(err).Category() == category
}

// IsAuth reports an authentication failure (invalid credentials, token
// exchange failure, 401).
func IsAuth(err error) bool { return goerr.HasTag(err, TagAuth) }

// IsPermission reports a 403-class failure.
func IsPermission(err error) bool { return goerr.HasTag(err, TagPermission) }

// IsNotFound reports a 404-class failure.
func IsNotFound(err error) bool { return goerr.HasTag(err, TagNotFound) }

// IsNetwork reports a transport-level failure.
func IsNetwork(err error) bool { return goerr.HasTag(err, TagNetwork) }

// IsTransient reports whether the error's code is in the retryable set.
func IsTransient(err error) bool { return CodeOf(err).Transient() }

// Context value constructors. Every remote call records these on any
// error it raises so a failure can be traced to the exact request.

// Operation records the high-level operation name ("scan", "insert", ...).
func Operation(name string) goerr.Option { return goerr.V("operation", name) }

// Collection records the collection path.
func Collection(path string) goerr.Option { return goerr.V("collection", path) }

// Document records the document id.
func Document(id string) goerr.Option { return goerr.V("document", id) }

// Project records the project id.
func Project(id string) goerr.Option { return goerr.V("project", id) }

// Database records the database id.
func Database(id string) goerr.Option { return goerr.V("database", id) }

// Method records the HTTP method.
func Method(m string) goerr.Option { return goerr.V("method", m) }

// URL records the request URL.
func URL(u string) goerr.Option { return goerr.V("url", u) }

// Status records the HTTP status code.
func Status(code int) goerr.Option { return goerr.V("status", code) }

// BatchIndex records the index of the failing operation within a batch.
func BatchIndex(i int) goerr.Option { return goerr.V("batch_index", i) }

// Body records a response body, truncated to 1KB.
func Body(b string) goerr.Option {
	if len(b) > 1024 {
		b = b[:1024]
	}
	return goerr.V("body", b)
}
