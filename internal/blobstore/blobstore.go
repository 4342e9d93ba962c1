// Package blobstore implements the bronze staging area: raw source files,
// gzip-compressed, keyed by <root>/bronze/<namespace>/<name>. The namespace is
// the pipeline name.
package blobstore

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"

	"duck-etl/internal/domain"
)

// BronzeDir is the directory under the store root holding staged files.
const BronzeDir = "bronze"

// Key returns the object key of a staged file.
func Key(root, namespace, name string) string {
	return path.Join(root, BronzeDir, namespace, name)
}

// Prefix returns the key prefix of a namespace, with a trailing slash.
func Prefix(root, namespace string) string {
	return path.Join(root, BronzeDir, namespace) + "/"
}

// ValidateName rejects namespaces and file names that would escape their
// directory or nest below it.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("name is required")
	case name == "." || name == "..":
		return fmt.Errorf("name %q is not allowed", name)
	case strings.ContainsAny(name, "/\\"):
		return fmt.Errorf("name %q must not contain path separators", name)
	}
	return nil
}

func validateKey(namespace, name string) error {
	if err := ValidateName(namespace); err != nil {
		return fmt.Errorf("invalid namespace: %w", err)
	}
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("invalid file name: %w", err)
	}
	return nil
}

func compress(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(content); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer zr.Close() //nolint:errcheck
	content, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	return content, nil
}

func notFound(namespace, name string) error {
	return domain.ErrNotFound("blob %s/%s not found", namespace, name)
}
