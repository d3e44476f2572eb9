package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
)

// httpDoer is satisfied by *http.Client.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// sha256Hex computes the SHA-256 hex digest of r.
func sha256Hex(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// sha256File computes the SHA-256 hex digest of a file.
func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return sha256Hex(f)
}

// verifyChecksum fails unless the file at path hashes to expected.
func verifyChecksum(path, expected string) error {
	actual, err := sha256File(path)
	if err != nil {
		return fmt.Errorf("compute checksum: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("checksum mismatch (expected %s, got %s)", expected, actual)
	}
	return nil
}

// downloadToTempFile downloads url to a temporary file in dir.
// Returns the temp file path. Caller must remove.
func downloadToTempFile(ctx context.Context, url, dir string, client httpDoer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned %d", resp.StatusCode)
	}

	f, err := os.CreateTemp(dir, "download-*")
	if err != nil {
		return "", err
	}
	path := f.Name()

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
