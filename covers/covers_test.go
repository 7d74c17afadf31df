package covers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"bookenrich/ratelimit"
	"bookenrich/source"
)

func TestPartitionPath(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		want       string
	}{
		{name: "numeric isbn10", identifier: "0123456789", want: filepath.Join("0", "1", "2")},
		{name: "isbn13", identifier: "9780141439808", want: filepath.Join("9", "7", "8")},
		{name: "empty", identifier: "", want: "unknown"},
		{name: "whitespace", identifier: "  ", want: "unknown"},
		{name: "short", identifier: "ab", want: filepath.Join("a", "b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PartitionPath(tt.identifier); got != tt.want {
				t.Fatalf("PartitionPath(%q) = %q, want %q", tt.identifier, got, tt.want)
			}
		})
	}
}

func newTestFetcher(t *testing.T, transport *httpmock.MockTransport, maxBytes int64) (*Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	f := NewFetcher(dir, "test-agent", maxBytes, 5*time.Second, ratelimit.NewFixed(0))
	f.SetTransport(transport)
	return f, dir
}

func imageResponder(status int, body, contentType string) httpmock.Responder {
	resp := httpmock.NewStringResponse(status, body)
	resp.Header.Set("Content-Type", contentType)
	resp.ContentLength = int64(len(body))
	return httpmock.ResponderFromResponse(resp)
}

func TestFetchStoresAtPartitionedPath(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://covers.test/l.jpg",
		imageResponder(200, "jpegbytes", "image/jpeg"))

	f, dir := newTestFetcher(t, transport, DefaultMaxBytes)
	rel, err := f.Fetch(context.Background(), "0123456789", "https://covers.test/l.jpg")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	want := filepath.Join("0", "1", "2", "0123456789.jpg")
	if rel != want {
		t.Fatalf("relative path = %q, want %q", rel, want)
	}
	data, err := os.ReadFile(filepath.Join(dir, rel))
	if err != nil {
		t.Fatalf("read stored cover: %v", err)
	}
	if string(data) != "jpegbytes" {
		t.Fatalf("stored bytes = %q", data)
	}
}

func TestFetchIdempotentRewrite(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://covers.test/l.jpg",
		imageResponder(200, "jpegbytes", "image/jpeg"))

	f, dir := newTestFetcher(t, transport, DefaultMaxBytes)
	first, err := f.Fetch(context.Background(), "0123456789", "https://covers.test/l.jpg")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := f.Fetch(context.Background(), "0123456789", "https://covers.test/l.jpg")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if first != second {
		t.Fatalf("paths differ across runs: %q vs %q", first, second)
	}
	data, _ := os.ReadFile(filepath.Join(dir, first))
	if string(data) != "jpegbytes" {
		t.Fatalf("second run changed stored bytes: %q", data)
	}
}

func TestFetchDeclaredTooLarge(t *testing.T) {
	transport := httpmock.NewMockTransport()
	resp := httpmock.NewStringResponse(200, "small")
	resp.ContentLength = DefaultMaxBytes + 1
	transport.RegisterResponder("GET", "https://covers.test/big.jpg", httpmock.ResponderFromResponse(resp))

	f, dir := newTestFetcher(t, transport, DefaultMaxBytes)
	_, err := f.Fetch(context.Background(), "0123456789", "https://covers.test/big.jpg")

	var tooLarge TooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected TooLargeError, got %v", err)
	}
	assertNoFiles(t, dir)
}

func TestFetchActualBytesTooLarge(t *testing.T) {
	body := strings.Repeat("x", 64)
	transport := httpmock.NewMockTransport()
	resp := httpmock.NewStringResponse(200, body)
	resp.ContentLength = -1 // upstream does not declare a length
	transport.RegisterResponder("GET", "https://covers.test/big.jpg", httpmock.ResponderFromResponse(resp))

	f, dir := newTestFetcher(t, transport, 32)
	_, err := f.Fetch(context.Background(), "0123456789", "https://covers.test/big.jpg")

	var tooLarge TooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected TooLargeError, got %v", err)
	}
	assertNoFiles(t, dir)
}

func TestFetchMissingCoverIsNotFound(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://covers.test/gone.jpg",
		httpmock.NewStringResponder(404, ""))

	f, _ := newTestFetcher(t, transport, DefaultMaxBytes)
	_, err := f.Fetch(context.Background(), "0123456789", "https://covers.test/gone.jpg")
	if !source.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestFetchServerErrorIsTransient(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://covers.test/err.jpg",
		httpmock.NewStringResponder(500, ""))

	f, _ := newTestFetcher(t, transport, DefaultMaxBytes)
	_, err := f.Fetch(context.Background(), "0123456789", "https://covers.test/err.jpg")
	if !source.IsTransient(err) {
		t.Fatalf("expected Transient, got %v", err)
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		url         string
		want        string
	}{
		{name: "png content type", contentType: "image/png", url: "https://c/x.jpg", want: ".png"},
		{name: "jpeg content type", contentType: "image/jpeg; charset=binary", url: "https://c/x", want: ".jpg"},
		{name: "from url", contentType: "application/octet-stream", url: "https://c/x.webp?size=L", want: ".webp"},
		{name: "jpeg alias", contentType: "", url: "https://c/x.jpeg", want: ".jpg"},
		{name: "default", contentType: "", url: "https://c/x", want: ".jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extensionFor(tt.contentType, tt.url); got != tt.want {
				t.Fatalf("extensionFor(%q, %q) = %q, want %q", tt.contentType, tt.url, got, tt.want)
			}
		})
	}
}

func assertNoFiles(t *testing.T, dir string) {
	t.Helper()
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			t.Fatalf("unexpected stored file %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
}
