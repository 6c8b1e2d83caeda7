package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestUploadAndResolve(t *testing.T) {
	var uploadedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploadedPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if string(body) != "imagebytes" {
			t.Errorf("unexpected body %q", body)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing auth header")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "reports", "tok", 2*time.Second)
	ref, err := c.Upload(context.Background(), []byte("imagebytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(ref, "reports/") || !strings.HasSuffix(ref, ".jpg") {
		t.Fatalf("unexpected ref %q", ref)
	}
	if !strings.HasPrefix(uploadedPath, "/object/reports/") {
		t.Fatalf("unexpected upload path %q", uploadedPath)
	}
	url := c.Resolve(ref)
	if url != srv.URL+"/object/public/"+ref {
		t.Fatalf("unexpected resolved URL %q", url)
	}
}

func TestInlineRefRoundTrip(t *testing.T) {
	ref := InlineRef([]byte{1, 2, 3}, "image/png")
	if !IsInline(ref) {
		t.Fatalf("InlineRef output not recognized as inline: %q", ref)
	}
	if !strings.HasPrefix(ref, "data:image/png;base64,") {
		t.Fatalf("unexpected inline ref %q", ref)
	}
	c := NewClient("http://store", "reports", "", time.Second)
	if got := c.Resolve(ref); got != ref {
		t.Fatalf("inline refs must resolve to themselves, got %q", got)
	}
}

func TestUploadFailureSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "reports", "", 2*time.Second)
	if _, err := c.Upload(context.Background(), []byte("x"), "image/jpeg"); err == nil {
		t.Fatal("expected error on 503")
	}
}
