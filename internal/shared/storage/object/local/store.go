package local

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docvault/internal/shared/storage/object"
)

// BlobRoutePrefix is where Handler is mounted.
const BlobRoutePrefix = "/api/v1/blobs"

// contentTypeSuffix names the sidecar file holding a blob's Content-Type.
const contentTypeSuffix = ".content-type"

const defaultContentType = "application/octet-stream"

// Store implements BlobStore using the local filesystem.
type Store struct {
	baseDir string
	baseURL string
	secret  []byte
	now     func() time.Time
}

// New creates a new local blob store rooted at baseDir. Signed URLs point at
// publicBaseURL and are verified by Handler using secret.
func New(baseDir, publicBaseURL string, secret []byte) *Store {
	return &Store{
		baseDir: baseDir,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		secret:  secret,
		now:     time.Now,
	}
}

// Put writes the reader to {baseDir}/{bucket}/{key}. Existing files are never replaced.
func (s *Store) Put(ctx context.Context, bucket, key, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fullPath, err := s.path(bucket, key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, object.ErrObjectExists
		}
		return 0, fmt.Errorf("open file: %w", err)
	}

	written, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(fullPath)
		return 0, fmt.Errorf("write body: %w", copyErr)
	}
	if ct := strings.TrimSpace(contentType); ct != "" {
		if err := os.WriteFile(fullPath+contentTypeSuffix, []byte(ct), 0o644); err != nil {
			_ = os.Remove(fullPath)
			return 0, fmt.Errorf("write content type: %w", err)
		}
	}
	return written, nil
}

// Delete removes the file. Missing files are ignored.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	if err := os.Remove(fullPath + contentTypeSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove content type: %w", err)
	}
	return nil
}

// Exists reports whether the file is present.
func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fullPath, err := s.path(bucket, key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// SignedURL returns an HMAC-signed URL served by Handler.
func (s *Store) SignedURL(ctx context.Context, bucket, key string, opts object.SignOptions) (string, error) {
	ok, err := s.Exists(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", object.ErrObjectNotFound
	}
	b, k, _ := object.CleanKey(bucket, key)

	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = 10 * time.Minute
	}
	exp := strconv.FormatInt(s.now().Add(expiry).Unix(), 10)

	q := url.Values{}
	q.Set("exp", exp)
	if opts.DownloadName != "" {
		q.Set("name", opts.DownloadName)
	}
	q.Set("sig", s.sign(b, k, exp, opts.DownloadName))

	return s.baseURL + BlobRoutePrefix + "/" + url.PathEscape(b) + "/" + escapeKey(k) + "?" + q.Encode(), nil
}

// Open opens a stored blob for reading.
func (s *Store) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, object.ErrObjectNotFound
		}
		return nil, err
	}
	return f, nil
}

// ContentType returns the type recorded by Put, falling back to the key's
// extension and then application/octet-stream.
func (s *Store) ContentType(bucket, key string) string {
	fullPath, err := s.path(bucket, key)
	if err != nil {
		return defaultContentType
	}
	if raw, err := os.ReadFile(fullPath + contentTypeSuffix); err == nil {
		if ct := strings.TrimSpace(string(raw)); ct != "" {
			return ct
		}
	}
	if ct := mime.TypeByExtension(filepath.Ext(fullPath)); ct != "" {
		return ct
	}
	return defaultContentType
}

func (s *Store) verify(bucket, key, exp, name, sig string) bool {
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil || s.now().Unix() > expUnix {
		return false
	}
	expected := s.sign(bucket, key, exp, name)
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (s *Store) sign(bucket, key, exp, name string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(bucket + "/" + key + "\n" + exp + "\n" + name))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Store) path(bucket, key string) (string, error) {
	b, k, err := object.CleanKey(bucket, key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, b, filepath.FromSlash(k)), nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ object.BlobStore = (*Store)(nil)
