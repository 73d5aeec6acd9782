// Package recovery converts panics in bridge entry points into errors
// so a misbehaving codec or filter payload cannot crash the host
// process.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/hugr-lab/firebridge/fserr"
)

// ToError runs fn and converts a panic into an internal error with the
// operation name attached.
func ToError(operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered",
				"operation", operation,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fserr.New(fserr.CodeInternalUnexpected,
				fmt.Sprintf("%s panicked: %v", operation, r),
				fserr.Operation(operation))
		}
	}()
	return fn()
}

// ToValue is ToError for functions that also return a value. On panic
// the zero value is returned.
func ToValue[T any](operation string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered",
				"operation", operation,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			var zero T
			result = zero
			err = fserr.New(fserr.CodeInternalUnexpected,
				fmt.Sprintf("%s panicked: %v", operation, r),
				fserr.Operation(operation))
		}
	}()
	return fn()
}
