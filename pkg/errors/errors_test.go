package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error status wins", New(ErrNotFound, http.StatusTeapot, "x"), http.StatusTeapot},
		{"wrapped app error", fmt.Errorf("ctx: %w", New(ErrInvalidURL, http.StatusBadRequest, "bad")), http.StatusBadRequest},
		{"not found", fmt.Errorf("page 3: %w", ErrNotFound), http.StatusNotFound},
		{"not indexed", ErrNotIndexed, http.StatusNotFound},
		{"already running", ErrAlreadyRunning, http.StatusConflict},
		{"not running", ErrNotRunning, http.StatusConflict},
		{"outside sites", ErrOutsideSites, http.StatusBadRequest},
		{"remote status", ErrRemoteStatus, http.StatusBadGateway},
		{"analysis", ErrAnalysis, http.StatusUnprocessableEntity},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	err := fmt.Errorf("indexing: %w", Newf(ErrOutsideSites, http.StatusBadRequest, "page %s is outside configured sites", "http://x"))
	if got := Message(err); got != "page http://x is outside configured sites" {
		t.Errorf("Message() = %q", got)
	}
	if got := Message(errors.New("sql: connection refused")); got != "internal error" {
		t.Errorf("Message() for plain error = %q, want internal error", got)
	}
	if !errors.Is(err, ErrOutsideSites) {
		t.Error("expected errors.Is to see the sentinel through AppError")
	}
}
