package recovery

import (
	"errors"
	"testing"

	"github.com/hugr-lab/firebridge/fserr"
)

func TestToErrorPassesThrough(t *testing.T) {
	want := errors.New("boom")
	if err := ToError("op", func() error { return want }); err != want {
		t.Errorf("ToError() = %v", err)
	}
	if err := ToError("op", func() error { return nil }); err != nil {
		t.Errorf("ToError() = %v", err)
	}
}

func TestToErrorRecoversPanic(t *testing.T) {
	err := ToError("scan", func() error { panic("bad ticket") })
	if fserr.CodeOf(err) != fserr.CodeInternalUnexpected {
		t.Fatalf("CodeOf() = %v", fserr.CodeOf(err))
	}
}

func TestToValueRecoversPanic(t *testing.T) {
	got, err := ToValue("insert", func() (int64, error) {
		panic("nil row")
	})
	if got != 0 {
		t.Errorf("value after panic = %d", got)
	}
	if fserr.CodeOf(err) != fserr.CodeInternalUnexpected {
		t.Errorf("CodeOf() = %v", fserr.CodeOf(err))
	}

	got, err = ToValue("insert", func() (int64, error) { return 7, nil })
	if got != 7 || err != nil {
		t.Errorf("ToValue() = %d, %v", got, err)
	}
}
