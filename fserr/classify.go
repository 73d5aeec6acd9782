package fserr

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"syscall"
)

// FromStatus maps an HTTP status to a taxonomy code. Statuses outside
// the table collapse to CodeRequestUnexpectedFormat so a new remote
// status never produces an uncategorized error.
func FromStatus(status int) Code {
	switch status {
	case http.StatusUnauthorized:
		return CodeAuthTokenExpired
	case http.StatusForbidden:
		return CodePermissionDenied
	case http.StatusNotFound:
		return CodeNotFoundDocument
	case http.StatusTooManyRequests:
		return CodeRequestRateLimited
	}
	if status >= 500 {
		return CodeRequestServerError
	}
	return CodeRequestUnexpectedFormat
}

// FromTransport maps a transport-level error (no HTTP response) to a
// network taxonomy code.
func FromTransport(err error) Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeNetworkTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeNetworkConnectionRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeNetworkTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CodeNetworkDNSResolution
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return CodeNetworkTLS
	}
	var recErr tls.RecordHeaderError
	if errors.As(err, &recErr) {
		return CodeNetworkTLS
	}
	return CodeNetworkTransport
}
