package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"docvault/internal/access"
	"docvault/internal/extract"
	"docvault/internal/llm"
	"docvault/internal/shared/storage/object"
)

var (
	alice      = access.Principal{ID: "u1", Role: access.RoleUser}
	bob        = access.Principal{ID: "u2", Role: access.RoleUser}
	admin      = access.Principal{ID: "a1", Role: access.RoleAdmin}
	superadmin = access.Principal{ID: "s1", Role: access.RoleSuperadmin}
)

type memStore struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	putErr    error
	deleteErr error
	puts      int
	deletes   int
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (m *memStore) Put(ctx context.Context, bucket, key, contentType string, r io.Reader) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return 0, m.putErr
	}
	k := bucket + "/" + key
	if _, ok := m.blobs[k]; ok {
		return 0, object.ErrObjectExists
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.blobs[k] = data
	return int64(len(data)), nil
}

func (m *memStore) Delete(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.blobs, bucket+"/"+key)
	return nil
}

func (m *memStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[bucket+"/"+key]
	return ok, nil
}

func (m *memStore) SignedURL(ctx context.Context, bucket, key string, opts object.SignOptions) (string, error) {
	ok, _ := m.Exists(ctx, bucket, key)
	if !ok {
		return "", object.ErrObjectNotFound
	}
	return fmt.Sprintf("https://blobs.test/%s/%s?exp=%d&name=%s", bucket, key, int(opts.Expiry.Seconds()), opts.DownloadName), nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

type stubExtractor struct {
	content extract.Content
	err     error
}

func (s stubExtractor) Extract(ctx context.Context, mimeType string, data []byte) (extract.Content, error) {
	return s.content, s.err
}

type stubEnricher struct {
	mu    sync.Mutex
	out   llm.Enrichment
	err   error
	panic bool
	calls int
	hook  func()
}

func (s *stubEnricher) Enrich(ctx context.Context, text string) (llm.Enrichment, error) {
	s.mu.Lock()
	s.calls++
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if s.panic {
		panic("model exploded")
	}
	return s.out, s.err
}

type failingCreateRepo struct {
	*MemoryRepo
}

func (r failingCreateRepo) Create(ctx context.Context, doc Document) error {
	return errors.New("duplicate key value violates unique constraint")
}

type brokenCompleteRepo struct {
	*MemoryRepo
	failToo bool
}

func (r brokenCompleteRepo) CompleteEnrichment(ctx context.Context, id, summary string, keywords []string, at time.Time) (bool, error) {
	return false, errors.New("connection reset by peer")
}

func (r brokenCompleteRepo) FailEnrichment(ctx context.Context, id string, at time.Time) (bool, error) {
	if r.failToo {
		return false, errors.New("connection reset by peer")
	}
	return r.MemoryRepo.FailEnrichment(ctx, id, at)
}

type recordingDispatcher struct {
	mu   sync.Mutex
	ids  []string
	reqs []string
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, documentID, requestID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, documentID)
	d.reqs = append(d.reqs, requestID)
	return nil
}

// fakePDF returns size bytes that sniff as a PDF.
func fakePDF(size int) []byte {
	head := []byte("%PDF-1.4\n")
	if size <= len(head) {
		return head[:size]
	}
	return append(head, bytes.Repeat([]byte("a"), size-len(head))...)
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestService(store *memStore, repo Repo, enricher llm.Enricher) *Service {
	clock := &fixedClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	return &Service{
		Repo:      repo,
		Store:     store,
		Extractor: stubExtractor{content: extract.Content{Text: "Quarterly revenue grew.", HTML: "<p>Quarterly revenue grew.</p>"}},
		Enricher:  enricher,
		now:       clock.now,
	}
}

