package attachments

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestValidateImage(t *testing.T) {
	for _, ct := range []string{"image/png", "image/jpeg", "image/webp; charset=binary"} {
		if err := ValidateImage(ct); err != nil {
			t.Errorf("%q: unexpected error %v", ct, err)
		}
	}
	for _, ct := range []string{"", "application/pdf", "text/plain", "imagepng"} {
		if err := ValidateImage(ct); !errors.Is(err, ErrNotImage) {
			t.Errorf("%q: expected ErrNotImage, got %v", ct, err)
		}
	}
}

func TestObjectKey(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	tests := []struct {
		owner, name, want string
	}{
		{"user-1", "cat.png", "uploads/user-1/1700000000123-cat.png"},
		{"user-1", "../../etc/passwd", "uploads/user-1/1700000000123-passwd"},
		{"user-1", `C:\pics\my cat.png`, "uploads/user-1/1700000000123-my_cat.png"},
		{"a/b", "", "uploads/ab/1700000000123-image"},
	}
	for _, tt := range tests {
		got, err := ObjectKey(tt.owner, tt.name, now)
		if err != nil {
			t.Fatalf("ObjectKey(%q, %q): %v", tt.owner, tt.name, err)
		}
		if got != tt.want {
			t.Errorf("ObjectKey(%q, %q) = %q, want %q", tt.owner, tt.name, got, tt.want)
		}
	}
	if _, err := ObjectKey("  ", "x.png", now); !errors.Is(err, ErrNoOwner) {
		t.Errorf("expected ErrNoOwner, got %v", err)
	}
}

func TestDiskStore_PutAndServe(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir, "http://localhost:8760/")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	key := "uploads/u1/1-cat.png"
	url, err := store.Put(context.Background(), key, "image/png", strings.NewReader("PNGDATA"), 7)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "http://localhost:8760/uploads/u1/1-cat.png" {
		t.Errorf("unexpected url %q", url)
	}
	got, err := os.ReadFile(filepath.Join(dir, "uploads", "u1", "1-cat.png"))
	if err != nil || string(got) != "PNGDATA" {
		t.Fatalf("unexpected file contents %q, %v", got, err)
	}

	srv := httptest.NewServer(store.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/uploads/u1/1-cat.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "PNGDATA" {
		t.Errorf("unexpected response %d %q", resp.StatusCode, body)
	}
}

func TestDiskStore_SizeMismatchLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewDiskStore(dir, "")
	if _, err := store.Put(context.Background(), "uploads/u/1-a.png", "image/png", strings.NewReader("abc"), 10); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if _, err := os.Stat(filepath.Join(dir, "uploads", "u", "1-a.png")); !os.IsNotExist(err) {
		t.Errorf("expected no committed file, stat err %v", err)
	}
}

func TestDiskStore_RejectsEscape(t *testing.T) {
	store, _ := NewDiskStore(t.TempDir(), "")
	if _, err := store.Put(context.Background(), "../outside.png", "image/png", strings.NewReader("x"), 1); err == nil {
		t.Fatal("expected error for escaping key")
	}
}

func TestS3Store_Put(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotType, gotBody, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath, gotType, gotBody, gotAuth = r.URL.Path, r.Header.Get("Content-Type"), string(b), r.Header.Get("Authorization")
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store, err := NewS3Store(S3Config{
		Bucket:          "macha",
		Endpoint:        server.URL,
		AccessKeyID:     "AKIDTEST",
		SecretAccessKey: "secret",
		PublicBaseURL:   "https://cdn.example.com",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	url, err := store.Put(context.Background(), "uploads/u1/5-cat.png", "image/png", strings.NewReader("PNGDATA"), 7)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "https://cdn.example.com/uploads/u1/5-cat.png" {
		t.Errorf("unexpected url %q", url)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/macha/uploads/u1/5-cat.png" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotType != "image/png" {
		t.Errorf("unexpected content type %q", gotType)
	}
	if !strings.Contains(gotBody, "PNGDATA") {
		t.Errorf("unexpected body %q", gotBody)
	}
	if !strings.Contains(gotAuth, "AKIDTEST") {
		t.Errorf("expected signed request, got %q", gotAuth)
	}
}

func TestS3Store_PresignsWithoutPublicBase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store, _ := NewS3Store(S3Config{Bucket: "macha", Endpoint: server.URL, AccessKeyID: "AKIDTEST", SecretAccessKey: "secret"})
	url, err := store.Put(context.Background(), "uploads/u1/5-cat.png", "image/png", strings.NewReader("x"), 1)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasPrefix(url, server.URL+"/macha/uploads/u1/5-cat.png?") || !strings.Contains(url, "X-Amz-Signature=") {
		t.Errorf("expected presigned url, got %q", url)
	}
}

func TestS3Store_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
	}))
	defer server.Close()

	store, _ := NewS3Store(S3Config{Bucket: "macha", Endpoint: server.URL, AccessKeyID: "AKIDTEST", SecretAccessKey: "secret"})
	_, err := store.Put(context.Background(), "uploads/u1/5-cat.png", "image/png", strings.NewReader("x"), 1)
	if err == nil || !strings.Contains(err.Error(), "AccessDenied") {
		t.Fatalf("expected AccessDenied error, got %v", err)
	}
}

func TestNewS3Store_RequiresConfig(t *testing.T) {
	if _, err := NewS3Store(S3Config{AccessKeyID: "a", SecretAccessKey: "b"}); err == nil {
		t.Error("expected error without bucket")
	}
	if _, err := NewS3Store(S3Config{Bucket: "b"}); err == nil {
		t.Error("expected error without credentials")
	}
}
