package httpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDoJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: %q", ct)
		}
		var in map[string]string
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"echo": in["name"]})
	}))
	defer srv.Close()

	var out map[string]string
	err := DoJSON(context.Background(), nil, http.MethodPost, srv.URL, map[string]string{"name": "Ada"}, &out)
	if err != nil {
		t.Fatal(err)
	}
	if out["echo"] != "Ada" {
		t.Errorf("out: %v", out)
	}
}

func TestDoJSONStatusError(t *testing.T) {
	tests := []struct {
		code      int
		notFound  bool
		retryable bool
	}{
		{http.StatusNotFound, true, false},
		{http.StatusTooManyRequests, false, true},
		{http.StatusBadGateway, false, true},
		{http.StatusBadRequest, false, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.code)
		}))
		err := DoJSON(context.Background(), nil, http.MethodGet, srv.URL, nil, nil)
		srv.Close()

		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("%d: got %v, want *StatusError", tt.code, err)
		}
		if se.StatusCode != tt.code || !strings.Contains(se.Body, "nope") {
			t.Errorf("%d: %+v", tt.code, se)
		}
		if se.IsNotFound() != tt.notFound || se.IsRetryable() != tt.retryable {
			t.Errorf("%d: notFound=%v retryable=%v", tt.code, se.IsNotFound(), se.IsRetryable())
		}
	}
}

func TestDoJSONDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var out map[string]any
	err := DoJSON(context.Background(), nil, http.MethodGet, srv.URL, nil, &out)
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Errorf("got %v", err)
	}
}

func TestDoJSONHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := DoJSON(ctx, NewClient(5*time.Second), http.MethodGet, srv.URL, nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want deadline exceeded", err)
	}
}
