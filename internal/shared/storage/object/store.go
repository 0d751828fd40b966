package object

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrObjectExists is returned by Put when the key is already taken.
	ErrObjectExists = errors.New("object already exists")
	// ErrObjectNotFound is returned when a blob is absent.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for bucket or key values that would escape the namespace.
	ErrInvalidKey = errors.New("invalid object key")
)

// SignOptions configures a time-limited read URL.
type SignOptions struct {
	Expiry       time.Duration
	DownloadName string
}

// BlobStore defines the contract for durable binary storage keyed by (bucket, key).
type BlobStore interface {
	// Put writes a new blob and never overwrites an existing one.
	Put(ctx context.Context, bucket, key, contentType string, r io.Reader) (int64, error)
	// Delete removes a blob. A missing blob is not an error.
	Delete(ctx context.Context, bucket, key string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
	SignedURL(ctx context.Context, bucket, key string, opts SignOptions) (string, error)
}

// CleanKey validates bucket and key and returns their slash-normalized forms.
func CleanKey(bucket, key string) (string, string, error) {
	b := strings.TrimSpace(bucket)
	if b == "" || strings.ContainsAny(b, `/\`) || b == "." || b == ".." {
		return "", "", ErrInvalidKey
	}
	k := strings.TrimSpace(key)
	if k == "" || strings.Contains(k, `\`) || strings.HasPrefix(k, "/") {
		return "", "", ErrInvalidKey
	}
	for _, seg := range strings.Split(k, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", "", ErrInvalidKey
		}
	}
	return b, path.Clean(k), nil
}
