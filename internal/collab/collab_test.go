package collab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSkipUploaderReturnsFileURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.zip")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	u := SkipUploader{}
	got, err := u.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(got, "file://") {
		t.Fatalf("expected file:// URL, got %q", got)
	}
	if !strings.HasSuffix(got, "package.zip") {
		t.Fatalf("expected URL to reference package.zip, got %q", got)
	}
}

func TestHTTPUploaderPostsFileAndReturnsLocation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.zip")
	if err := os.WriteFile(path, []byte("contents"), 0644); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("server: ParseMultipartForm: %v", err)
		}
		w.Header().Set("Location", "https://box.example.com/shared/abc123")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL)
	got, err := u.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got != "https://box.example.com/shared/abc123" {
		t.Fatalf("got %q", got)
	}
}

func TestNewSMTPMailerDefaultsFromAddr(t *testing.T) {
	m := NewSMTPMailer("mail.example.com", 587, false, "", "", "")
	if !strings.HasSuffix(m.FromAddr, "@mail.example.com") {
		t.Fatalf("expected default FromAddr to end with @mail.example.com, got %q", m.FromAddr)
	}
}

func TestNewSMTPMailerExplicitFromAddr(t *testing.T) {
	m := NewSMTPMailer("mail.example.com", 587, false, "", "", "lab@example.org")
	if m.FromAddr != "lab@example.org" {
		t.Fatalf("got %q", m.FromAddr)
	}
}
