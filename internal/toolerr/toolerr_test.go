package toolerr

import (
	"errors"
	"testing"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{New(SessionNotFound, "session-7"), -32002},
		{New(NotSupported, "registers"), -32001},
		{errors.New("plain error"), -32603},
		{Wrap(MemoryAccessError, errors.New("fault"), "addr=0x1000"), -32005},
	}
	for _, c := range cases {
		if got := CodeOf(c.err); got != c.code {
			t.Errorf("CodeOf(%v) = %d, want %d", c.err, got, c.code)
		}
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if KindOf(errors.New("boom")) != InternalError {
		t.Errorf("expected InternalError for unclassified error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	wrapped := Wrap(Timeout, inner, "deadline exceeded")
	if !errors.Is(wrapped, inner) {
		t.Errorf("expected errors.Is to find wrapped inner error")
	}
}
