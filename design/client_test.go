package design

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/files/abc123" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Figma-Token") != "secret" {
			http.Error(w, `{"status":403,"err":"Invalid token"}`, http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(landingFile))
	}))
	defer srv.Close()

	c := NewClient("secret", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	f, err := c.File(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if f.Name != "Marketing" {
		t.Errorf("Name: got %q", f.Name)
	}
	if len(CollectFrames(f.Document)) != 2 {
		t.Errorf("expected 2 frames in fetched document")
	}

	bad := NewClient("wrong", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if _, err := bad.File(context.Background(), "abc123"); err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("bad token: got %v, want status 403 error", err)
	}

	if _, err := c.File(context.Background(), ""); err == nil {
		t.Error("empty key: expected error")
	}
}

func TestClientFile_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(landingFile))
	}))
	defer srv.Close()

	c := NewClient("t", WithBaseURL(srv.URL), WithMaxBytes(64))
	if _, err := c.File(context.Background(), "k"); err == nil {
		t.Fatal("expected size limit error")
	}
}
