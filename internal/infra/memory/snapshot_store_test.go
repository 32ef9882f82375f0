package memory

import (
	"context"
	"errors"
	"testing"

	"promptquiz-service/internal/domain"
)

func TestSnapshotStoreKeepsNewest(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	if _, err := store.LoadSnapshot(ctx, "R1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_ = store.SaveSnapshot(ctx, domain.Session{RoomID: "R1", Status: domain.StatusActive, Version: 5})
	_ = store.SaveSnapshot(ctx, domain.Session{RoomID: "R1", Status: domain.StatusWaiting, Version: 3})

	got, err := store.LoadSnapshot(ctx, "R1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Version != 5 || got.Status != domain.StatusActive {
		t.Fatalf("stale snapshot overwrote newer one: %+v", got)
	}
}
