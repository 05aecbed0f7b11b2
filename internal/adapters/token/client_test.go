package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestCredentialSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Room     string `json:"room"`
			Identity string `json:"identity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Room != "loop-1" || req.Identity != "user-ab12cd34" {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "jwt-abc"})
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).Credential(context.Background(), "loop-1", "user-ab12cd34")
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if got != "jwt-abc" {
		t.Errorf("token = %q, want jwt-abc", got)
	}
}

func TestCredentialNon2xx(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Credential(context.Background(), "loop-1", "u"); err == nil {
		t.Fatal("expected error on 403")
	}
	// A denial is final, not a transient failure to retry away.
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("issuer hit %d times, want 1", got)
	}
}

func TestCredentialTransientFailureRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "jwt-abc"})
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).Credential(context.Background(), "loop-1", "u")
	if err != nil {
		t.Fatalf("credential after transient failure: %v", err)
	}
	if got != "jwt-abc" {
		t.Errorf("token = %q, want jwt-abc", got)
	}
	if atomic.LoadInt32(&hits) < 2 {
		t.Error("500 was not retried")
	}
}

func TestCredentialMissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"other": "field"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Credential(context.Background(), "loop-1", "u")
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
}

func TestCredentialIssuerUnreachable(t *testing.T) {
	// Port 0 is never listening.
	if _, err := NewClient("http://127.0.0.1:0").Credential(context.Background(), "loop-1", "u"); err == nil {
		t.Fatal("expected error for unreachable issuer")
	}
}
