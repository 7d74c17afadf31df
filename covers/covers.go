// Package covers downloads and stores cover assets. A missing or oversized
// cover is a valid terminal state for a record, never a batch failure.
package covers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"bookenrich/ratelimit"
	"bookenrich/source"
)

// DefaultMaxBytes caps cover downloads at 5 MiB.
const DefaultMaxBytes int64 = 5 << 20

// TooLargeError reports a cover exceeding the size policy.
type TooLargeError struct {
	Size  int64
	Limit int64
}

func (e TooLargeError) Error() string {
	return fmt.Sprintf("cover too large: %d bytes exceeds limit %d", e.Size, e.Limit)
}

// PartitionPath derives the storage directory for an identifier: one level
// per leading character, three levels deep, bounding fan-out to at most
// 1000 leaf directories for numeric identifiers. An empty identifier maps
// to the literal "unknown".
func PartitionPath(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "unknown"
	}
	segments := make([]string, 0, 3)
	for _, c := range identifier {
		segments = append(segments, string(c))
		if len(segments) == 3 {
			break
		}
	}
	return filepath.Join(segments...)
}

// Fetcher downloads cover assets into a partitioned directory tree.
type Fetcher struct {
	client   *http.Client
	limiter  ratelimit.Limiter
	dir      string
	maxBytes int64
	ua       string
}

// NewFetcher builds a cover fetcher storing assets under dir.
func NewFetcher(dir, ua string, maxBytes int64, timeout time.Duration, limiter ratelimit.Limiter) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		limiter:  limiter,
		dir:      dir,
		maxBytes: maxBytes,
		ua:       ua,
	}
}

// SetTransport overrides the HTTP transport. Tests install a mock here.
func (f *Fetcher) SetTransport(rt http.RoundTripper) {
	f.client.Transport = rt
}

// Fetch downloads rawURL and stores it under the partition path for
// identifier, returning the path relative to the storage root. The size cap
// is enforced twice: against the declared Content-Length before reading and
// against the actual byte count while reading.
func (f *Fetcher) Fetch(ctx context.Context, identifier, rawURL string) (string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", source.TransientError{Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", source.TransientError{Err: err}
	}
	req.Header.Set("User-Agent", f.ua)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", source.Classify("", err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", source.NotFoundError{Key: rawURL}
	}
	if resp.StatusCode != http.StatusOK {
		return "", source.Classify("", nil, resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return "", TooLargeError{Size: resp.ContentLength, Limit: f.maxBytes}
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", source.TransientError{Err: fmt.Errorf("read cover body: %w", err)}
	}
	if n > f.maxBytes {
		return "", TooLargeError{Size: n, Limit: f.maxBytes}
	}

	base := identifier
	if strings.TrimSpace(base) == "" {
		base = "unknown"
	}
	rel := filepath.Join(PartitionPath(identifier), base+extensionFor(resp.Header.Get("Content-Type"), rawURL))
	full := filepath.Join(f.dir, rel)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create cover directory: %w", err)
	}
	if err := os.WriteFile(full, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write cover file: %w", err)
	}
	return rel, nil
}

// extensionFor picks a file extension from the response content type, then
// the URL path, defaulting to .jpg.
func extensionFor(contentType, rawURL string) string {
	switch {
	case strings.Contains(contentType, "image/png"):
		return ".png"
	case strings.Contains(contentType, "image/gif"):
		return ".gif"
	case strings.Contains(contentType, "image/webp"):
		return ".webp"
	case strings.Contains(contentType, "image/jpeg"):
		return ".jpg"
	}
	if ext := strings.ToLower(path.Ext(strippedPath(rawURL))); ext == ".png" || ext == ".gif" || ext == ".webp" || ext == ".jpg" || ext == ".jpeg" {
		if ext == ".jpeg" {
			return ".jpg"
		}
		return ext
	}
	return ".jpg"
}

func strippedPath(rawURL string) string {
	if idx := strings.IndexAny(rawURL, "?#"); idx >= 0 {
		return rawURL[:idx]
	}
	return rawURL
}
