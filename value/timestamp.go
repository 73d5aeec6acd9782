package value

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/hugr-lab/firebridge/fserr"
)

// timestampLayouts covers the wire format (RFC 3339 with Z) plus the
// tolerated variants: space separator, missing zone, sub-second digits.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses a wire timestamp, truncating to microseconds.
func ParseTimestamp(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, fserr.New(fserr.CodeTypeTimestampParse,
		"cannot parse timestamp", goerr.V("input", s))
}

// FormatTimestamp renders a timestamp in the canonical wire format:
// RFC 3339 UTC with a trailing Z, microsecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format("2006-01-02T15:04:05.999999Z07:00")
}
