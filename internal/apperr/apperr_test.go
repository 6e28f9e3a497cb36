package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", Unauthorized("Unauthorized"), http.StatusUnauthorized},
		{"forbidden", Forbidden("Forbidden"), http.StatusForbidden},
		{"insufficient credits", InsufficientCredits("Insufficient credits"), http.StatusForbidden},
		{"not found", NotFound("Phone number not found"), http.StatusNotFound},
		{"validation", Validation("Missing required fields"), http.StatusBadRequest},
		{"conflict", Conflict("Phone number is already assigned"), http.StatusConflict},
		{"provider", Provider("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("send: %w", NotFound("x")), http.StatusNotFound},
		{"plain", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := HTTPStatus(tc.err); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestPublicMessageHidesInternalCause(t *testing.T) {
	t.Parallel()

	err := Internal(errors.New("pq: connection refused"))
	if got := PublicMessage(err); got != "Internal server error" {
		t.Fatalf("unexpected public message %q", got)
	}
	if got := PublicMessage(Provider("Twilio credentials not configured")); got != "Twilio credentials not configured" {
		t.Fatalf("provider message not surfaced: %q", got)
	}
	if !errors.Is(err, err.Cause) {
		t.Fatalf("cause not unwrapped")
	}
}
