package documents

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"docvault/internal/llm"
)

type mapCache struct {
	mu       sync.Mutex
	values   map[string][]byte
	versions map[string]int64
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string][]byte{}, versions: map[string]int64{}}
}

func (m *mapCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *mapCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = raw
	return nil
}

func (m *mapCache) Version(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[key], nil
}

func (m *mapCache) Bump(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[key]++
	return nil
}

type countingRepo struct {
	*MemoryRepo
	lists int
}

func (r *countingRepo) List(ctx context.Context, q ListQuery) ([]Document, int, error) {
	r.lists++
	return r.MemoryRepo.List(ctx, q)
}

func TestListCacheServesUntilMutation(t *testing.T) {
	repo := &countingRepo{MemoryRepo: NewMemoryRepo()}
	cache := newMapCache()
	svc := newTestService(newMemStore(), repo, &stubEnricher{out: llm.Enrichment{Summary: "s"}})
	svc.Cache = cache
	ctx := context.Background()
	ingestPDF(t, svc, alice, "first.pdf")

	first, err := svc.List(ctx, alice, ListInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	second, err := svc.List(ctx, alice, ListInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if repo.lists != 1 {
		t.Fatalf("expected cached second read, repo hit %d times", repo.lists)
	}
	if second.Total != first.Total || second.Items[0].ID != first.Items[0].ID {
		t.Fatalf("cached page differs: %+v vs %+v", first, second)
	}

	if _, err := svc.List(ctx, superadmin, ListInput{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if repo.lists != 2 {
		t.Fatalf("superadmin scope must not share the user's page")
	}

	ingestPDF(t, svc, alice, "second.pdf")
	third, err := svc.List(ctx, alice, ListInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if third.Total != 2 || repo.lists != 3 {
		t.Fatalf("mutation must invalidate cached pages: total=%d lists=%d", third.Total, repo.lists)
	}

	if _, err := svc.List(ctx, superadmin, ListInput{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if repo.lists != 4 {
		t.Fatalf("mutation must invalidate the all-owners scope too")
	}
}

func TestPageKeyVariesByFilter(t *testing.T) {
	base := ListQuery{OwnerID: "u1", Page: 1, Limit: 10}
	keys := map[string]bool{}
	for _, q := range []ListQuery{
		base,
		{OwnerID: "u1", Page: 2, Limit: 10},
		{OwnerID: "u1", Page: 1, Limit: 20},
		{OwnerID: "u1", Page: 1, Limit: 10, Status: StatusReady},
		{OwnerID: "u1", Page: 1, Limit: 10, Search: "plan"},
		{OwnerID: "u2", Page: 1, Limit: 10},
		{Page: 1, Limit: 10},
	} {
		keys[pageKey(q, 0)] = true
	}
	if len(keys) != 7 {
		t.Fatalf("expected distinct keys, got %d", len(keys))
	}
	if pageKey(base, 1) == pageKey(base, 2) {
		t.Fatalf("version must change the key")
	}
}
