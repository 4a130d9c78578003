package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{Validation("bad %s", "title"), http.StatusBadRequest},
		{NotFound("appointment"), http.StatusNotFound},
		{Forbidden("nope"), http.StatusForbidden},
		{Conflict("slot taken"), http.StatusConflict},
		{Internal(errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.HTTPStatus(); got != tt.want {
			t.Errorf("%v: got %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAsWrapped(t *testing.T) {
	base := Conflict("slot taken")
	wrapped := fmt.Errorf("confirm: %w", base)

	if got := As(wrapped); got != base {
		t.Fatalf("expected the wrapped *Error back, got %v", got)
	}
	if !Is(wrapped, KindConflict) {
		t.Error("Is should see through wrapping")
	}
	if Is(wrapped, KindNotFound) {
		t.Error("wrong kind matched")
	}
}

func TestAsUnknownIsInternal(t *testing.T) {
	cause := errors.New("connection reset")
	e := As(cause)
	if e.Kind != KindInternal {
		t.Fatalf("kind: got %v", e.Kind)
	}
	if e.Message != "internal error" {
		t.Errorf("message leaks cause: %q", e.Message)
	}
	if !errors.Is(e, cause) {
		t.Error("cause should stay reachable for logging")
	}
	if As(nil) != nil {
		t.Error("As(nil) should be nil")
	}
}
