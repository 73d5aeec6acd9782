package fserr

import "fmt"

// Code is a stable 32-bit error code:
//
//	bits 24-31: category
//	bits 16-23: subcategory
//	bits 0-15:  specific error
//
// Codes are assigned once and never reused, so callers can match on them
// across versions.
type Code uint32

const (
	CodeSuccess Code = 0x00000000

	// Authentication (category 0x01).
	CodeAuthCredentialsNil       Code = 0x01010001
	CodeAuthServiceAccountFile   Code = 0x01010002
	CodeAuthServiceAccountParse  Code = 0x01010003
	CodeAuthServiceAccountFields Code = 0x01010004
	CodeAuthPrivateKeyInvalid    Code = 0x01020001
	CodeAuthJWTCreationFailed    Code = 0x01020002
	CodeAuthSigningFailed        Code = 0x01020003
	CodeAuthTokenExchangeFailed  Code = 0x01030001
	CodeAuthTokenParseFailed     Code = 0x01030002
	CodeAuthTokenMissing         Code = 0x01030003
	CodeAuthTokenExpired         Code = 0x01030004
	CodeAuthAPIKeyInvalid        Code = 0x01040001
	CodeAuthInvalidType          Code = 0x01040002

	// Permission (category 0x02).
	CodePermissionDenied        Code = 0x02010001
	CodePermissionInsufficient  Code = 0x02010002
	CodePermissionSecurityRules Code = 0x02010003

	// Not found (category 0x03).
	CodeNotFoundDocument   Code = 0x03010001
	CodeNotFoundCollection Code = 0x03010002
	CodeNotFoundProject    Code = 0x03010003
	CodeNotFoundDatabase   Code = 0x03010004

	// Network (category 0x04).
	CodeNetworkTransport         Code = 0x04010002
	CodeNetworkTimeout           Code = 0x04010003
	CodeNetworkDNSResolution     Code = 0x04010004
	CodeNetworkConnectionRefused Code = 0x04010005
	CodeNetworkTLS               Code = 0x04020001

	// Request/response (category 0x05).
	CodeRequestInvalidURL       Code = 0x05010001
	CodeRequestResponseParse    Code = 0x05020001
	CodeRequestUnexpectedFormat Code = 0x05020002
	CodeRequestRateLimited      Code = 0x05030001
	CodeRequestQuotaExceeded    Code = 0x05030002
	CodeRequestServerError      Code = 0x05040001

	// Configuration (category 0x06).
	CodeConfigMissingProjectID   Code = 0x06010001
	CodeConfigMissingCredentials Code = 0x06010002
	CodeConfigMissingAPIKey      Code = 0x06010003
	CodeConfigSecretInvalid      Code = 0x06020001
	CodeConfigSecretAuthType     Code = 0x06020002

	// Type conversion (category 0x07).
	CodeTypeConversionFailed Code = 0x07010001
	CodeTypeTimestampParse   Code = 0x07010002
	CodeTypeIntegerOverflow  Code = 0x07010003
	CodeTypeDoubleParse      Code = 0x07010004
	CodeTypeUnknownEnvelope  Code = 0x07020001
	CodeTypeUnsupported      Code = 0x07020002

	// Write operations (category 0x08).
	CodeWriteFieldNameInvalid    Code = 0x08010001
	CodeWriteFieldValueInvalid   Code = 0x08010002
	CodeWriteDocIDInvalid        Code = 0x08010003
	CodeWriteBatchEmpty          Code = 0x08020001
	CodeWriteBatchTooLarge       Code = 0x08020002
	CodeWriteBatchPartialFailure Code = 0x08020003
	CodeWriteUpdateNoFields      Code = 0x08030001
	CodeWriteInsertFailed        Code = 0x08040001
	CodeWriteUpdateFailed        Code = 0x08040002
	CodeWriteDeleteFailed        Code = 0x08040003

	// Query/scan (category 0x09).
	CodeScanCollectionRequired Code = 0x09010001
	CodeScanSchemaInference    Code = 0x09010002
	CodeScanInvalidLimit       Code = 0x09010003
	CodeScanInvalidOrderBy     Code = 0x09010004

	// Index/pushdown (category 0x0A).
	CodeIndexFetchFailed        Code = 0x0A010001
	CodeIndexParseFailed        Code = 0x0A010002
	CodeIndexAdminUnavailable   Code = 0x0A010003
	CodeIndexQueryRejected      Code = 0x0A020001

	// Internal (category 0xFF).
	CodeInternalUnexpected Code = 0xFF000001
)

// Category constants (high byte of a Code).
const (
	CategoryAuth       = 0x01
	CategoryPermission = 0x02
	CategoryNotFound   = 0x03
	CategoryNetwork    = 0x04
	CategoryRequest    = 0x05
	CategoryConfig     = 0x06
	CategoryType       = 0x07
	CategoryWrite      = 0x08
	CategoryScan       = 0x09
	CategoryIndex      = 0x0A
	CategoryInternal   = 0xFF
)

// Category returns the category byte of the code.
func (c Code) Category() uint8 { return uint8(c >> 24) }

// String formats the code as "FS_XXXXXXXX".
func (c Code) String() string { return fmt.Sprintf("FS_%08X", uint32(c)) }

// Transient reports whether a caller may reasonably retry the operation
// with backoff. Nothing in this module retries implicitly except the
// one-shot token refresh on 401.
func (c Code) Transient() bool {
	switch c {
	case CodeNetworkTimeout, CodeNetworkConnectionRefused,
		CodeRequestRateLimited, CodeRequestServerError:
		return true
	}
	return false
}
