package documents

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusReady, StatusFailed}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusProcessing}: true,
		{StatusProcessing, StatusReady}:   true,
		{StatusProcessing, StatusFailed}:  true,
		{StatusFailed, StatusProcessing}:  true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
	for _, to := range all {
		if CanTransition(StatusReady, to) {
			t.Fatalf("ready must be terminal, moved to %s", to)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus("ready"); !ok || s != StatusReady {
		t.Fatalf("ParseStatus(ready) = %q, %v", s, ok)
	}
	if _, ok := ParseStatus("READY"); ok {
		t.Fatalf("status values are case sensitive")
	}
}

func TestListQueryOffset(t *testing.T) {
	tests := []struct {
		q    ListQuery
		want int
	}{
		{ListQuery{Page: 0, Limit: 10}, 0},
		{ListQuery{Page: 1, Limit: 10}, 0},
		{ListQuery{Page: 3, Limit: 25}, 50},
	}
	for _, tt := range tests {
		if got := tt.q.Offset(); got != tt.want {
			t.Fatalf("Offset(%+v) = %d, want %d", tt.q, got, tt.want)
		}
	}
}

func TestMemoryRepoGuards(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := Document{ID: "d1", OwnerID: "u1", Bucket: "documents", StoragePath: "u1/a.pdf", Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := doc
	dup.ID = "d2"
	if err := repo.Create(ctx, dup); err == nil {
		t.Fatalf("expected duplicate storage path to be rejected")
	}

	if ok, _ := repo.CompleteEnrichment(ctx, "d1", "s", nil, now); ok {
		t.Fatalf("pending document must not jump to ready")
	}
	if ok, _ := repo.MarkProcessing(ctx, "d1", now.Add(time.Second)); !ok {
		t.Fatalf("expected pending -> processing")
	}
	if ok, _ := repo.CompleteEnrichment(ctx, "d1", "s", []string{"k"}, now.Add(2*time.Second)); !ok {
		t.Fatalf("expected processing -> ready")
	}
	got, _ := repo.GetByID(ctx, "d1")
	if got.Status != StatusReady || !got.UpdatedAt.Equal(now.Add(2*time.Second)) {
		t.Fatalf("unexpected state %+v", got)
	}

	got.Keywords[0] = "mutated"
	again, _ := repo.GetByID(ctx, "d1")
	if again.Keywords[0] != "k" {
		t.Fatalf("repo must return copies")
	}

	if ok, err := repo.MarkProcessing(ctx, "missing", now); ok || err != nil {
		t.Fatalf("missing id must report zero rows, got ok=%v err=%v", ok, err)
	}
	if err := repo.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
