package common

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetJSONReturnsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer server.Close()

	client := NewAPIClient(APIConfig{Name: "audnexus", BaseURL: server.URL})
	var out map[string]any
	err := client.GetJSON(context.Background(), "/books/B08G9PRS1K", nil, "", &out)

	var status *StatusError
	if !errors.As(err, &status) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if status.StatusCode != http.StatusTooManyRequests || !status.Temporary() || status.Snippet != "slow down" {
		t.Fatalf("unexpected status error: %+v", status)
	}
	if err.Error() != "audnexus HTTP 429: slow down" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestStatusErrorTemporary(t *testing.T) {
	for code, want := range map[int]bool{
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusServiceUnavailable:  true,
		http.StatusBadRequest:          false,
		http.StatusForbidden:           false,
	} {
		if got := (&StatusError{StatusCode: code}).Temporary(); got != want {
			t.Fatalf("status %d: Temporary = %v, want %v", code, got, want)
		}
	}
}
