package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOfWrapped(t *testing.T) {
	err := fmt.Errorf("upload: %w", Validation("file_too_large", errors.New("too big")))
	if got := StatusOf(err); got != http.StatusBadRequest {
		t.Fatalf("status: got=%d want=%d", got, http.StatusBadRequest)
	}
	if got := CodeOf(err); got != "file_too_large" {
		t.Fatalf("code: got=%q", got)
	}
}

func TestStatusOfPlainError(t *testing.T) {
	if got := StatusOf(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("status: got=%d", got)
	}
	if got := CodeOf(errors.New("boom")); got != "internal_error" {
		t.Fatalf("code: got=%q", got)
	}
}
