package media

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeFetcher struct {
	files map[string][]byte
}

func (f *fakeFetcher) Media(_ context.Context, filename string) ([]byte, string, error) {
	if data, ok := f.files[filename]; ok {
		return data, "image/jpeg", nil
	}
	return nil, "", errors.New("404")
}

func TestValidateToken(t *testing.T) {
	bad := []string{"", ".", "..", "../etc/passwd", "a/b.jpg", `a\b.jpg`, "x..y"}
	for _, token := range bad {
		if err := ValidateToken(token); !errors.Is(err, ErrBadToken) {
			t.Fatalf("ValidateToken(%q) = %v, want ErrBadToken", token, err)
		}
	}
	if err := ValidateToken("abc123.jpg"); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
}

func TestProxyLocalFirst(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "local.pdf"), []byte("local copy"), 0o644); err != nil {
		t.Fatal(err)
	}
	fetcher := &fakeFetcher{files: map[string][]byte{
		"local.pdf":  []byte("upstream copy"),
		"remote.jpg": []byte("remote bytes"),
	}}
	p, err := NewProxy(dir, fetcher)
	if err != nil {
		t.Fatal(err)
	}

	data, ct, err := p.Get(context.Background(), "local.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "local copy" {
		t.Fatalf("got %q, want local file to win", data)
	}
	if ct != "application/pdf" {
		t.Fatalf("content type = %q", ct)
	}

	data, ct, err = p.Get(context.Background(), "remote.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "remote bytes" || ct != "image/jpeg" {
		t.Fatalf("upstream fallback gave (%q, %q)", data, ct)
	}
}

func TestProxyNotFound(t *testing.T) {
	p, err := NewProxy(t.TempDir(), &fakeFetcher{})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.Get(context.Background(), "missing.bin"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestProxyRejectsTraversal(t *testing.T) {
	p, err := NewProxy(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.Get(context.Background(), "../secret"); !errors.Is(err, ErrBadToken) {
		t.Fatalf("err = %v, want ErrBadToken", err)
	}
}

func TestSaverSaveBase64(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSaver(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	payload := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake"))
	token, err := s.SaveBase64(context.Background(), "911234567890@s.whatsapp.net", "invoice.pdf", payload)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(token, "_invoice.pdf") {
		t.Fatalf("token = %q", token)
	}
	if err := ValidateToken(token); err != nil {
		t.Fatalf("saver produced unservable token %q: %v", token, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, token))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF-1.4 fake" {
		t.Fatalf("stored bytes = %q", data)
	}
}

func TestSaverRejectsBadBase64(t *testing.T) {
	s, err := NewSaver(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveBase64(context.Background(), "x@s.whatsapp.net", "a.bin", "not*base64"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSaverUniqueTokens(t *testing.T) {
	s, err := NewSaver(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t1, err := s.Save(context.Background(), "x@s.whatsapp.net", "same.bin", []byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	t2, err := s.Save(context.Background(), "x@s.whatsapp.net", "same.bin", []byte("two"))
	if err != nil {
		t.Fatal(err)
	}
	if t1 == t2 {
		t.Fatalf("same upstream filename produced identical tokens %q", t1)
	}
}
