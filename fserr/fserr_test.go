package fserr

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCodeString(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CodeAuthTokenExpired, "FS_01030004"},
		{CodePermissionDenied, "FS_02010001"},
		{CodeNotFoundCollection, "FS_03010002"},
		{CodeInternalUnexpected, "FS_FF000001"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("Code(%#x).String() = %q, want %q", uint32(tt.code), got, tt.want)
		}
	}
}

func TestNewCarriesCodeAndCategory(t *testing.T) {
	err := New(CodeNotFoundCollection, "collection is empty",
		Collection("users"), Operation("scan"))

	if got := CodeOf(err); got != CodeNotFoundCollection {
		t.Errorf("CodeOf() = %v, want %v", got, CodeNotFoundCollection)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound() = false, want true")
	}
	if IsAuth(err) {
		t.Error("IsAuth() = true, want false")
	}
	if !strings.Contains(err.Error(), "[FS_03010002]") {
		t.Errorf("message %q missing code prefix", err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeNetworkTransport, cause, "list documents failed",
		Method("GET"), Status(0))

	if !errors.Is(err, cause) {
		t.Error("wrapped error does not match cause with errors.Is")
	}
	if got := CodeOf(err); got != CodeNetworkTransport {
		t.Errorf("CodeOf() = %v, want %v", got, CodeNetworkTransport)
	}
}

func TestCodeOfForeignError(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != CodeInternalUnexpected {
		t.Errorf("CodeOf(plain error) = %v, want %v", got, CodeInternalUnexpected)
	}
	if got := CodeOf(nil); got != CodeSuccess {
		t.Errorf("CodeOf(nil) = %v, want %v", got, CodeSuccess)
	}
}

func TestTransientSet(t *testing.T) {
	transient := []Code{
		CodeNetworkTimeout, CodeNetworkConnectionRefused,
		CodeRequestRateLimited, CodeRequestServerError,
	}
	for _, c := range transient {
		if !c.Transient() {
			t.Errorf("%v.Transient() = false, want true", c)
		}
	}
	stable := []Code{
		CodeAuthTokenExpired, CodePermissionDenied,
		CodeNotFoundDocument, CodeNetworkDNSResolution,
	}
	for _, c := range stable {
		if c.Transient() {
			t.Errorf("%v.Transient() = true, want false", c)
		}
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Code
	}{
		{401, CodeAuthTokenExpired},
		{403, CodePermissionDenied},
		{404, CodeNotFoundDocument},
		{429, CodeRequestRateLimited},
		{500, CodeRequestServerError},
		{503, CodeRequestServerError},
		{400, CodeRequestUnexpectedFormat},
	}
	for _, tt := range tests {
		if got := FromStatus(tt.status); got != tt.want {
			t.Errorf("FromStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestFromTransport(t *testing.T) {
	if got := FromTransport(context.DeadlineExceeded); got != CodeNetworkTimeout {
		t.Errorf("FromTransport(deadline) = %v, want %v", got, CodeNetworkTimeout)
	}
	if got := FromTransport(errors.New("broken pipe")); got != CodeNetworkTransport {
		t.Errorf("FromTransport(generic) = %v, want %v", got, CodeNetworkTransport)
	}
}

func TestBodyTruncation(t *testing.T) {
	long := strings.Repeat("x", 4096)
	err := New(CodeRequestServerError, "server error", Body(long))
	if !strings.Contains(err.Error(), "[FS_05040001]") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
