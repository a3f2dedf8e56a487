package memory

import (
	"context"
	"testing"
)

func TestSnapshotStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	data := []byte(`{"schema_version":2}`)
	if err := store.Save(ctx, "room-1", data); err != nil {
		t.Fatalf("save: %v", err)
	}
	data[0] = 'x'

	all, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(all["room-1"]) != `{"schema_version":2}` {
		t.Fatalf("expected stored copy, got %q", all["room-1"])
	}

	if err := store.Delete(ctx, "room-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ = store.LoadAll(ctx)
	if len(all) != 0 {
		t.Fatalf("expected empty store, got %d", len(all))
	}
}

func TestDefaultCatalogHasDistinctNames(t *testing.T) {
	items, err := NewDefaultCatalog().PowerUps(context.Background())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	seen := map[string]bool{}
	for _, pu := range items {
		if seen[pu.Name] {
			t.Fatalf("duplicate catalog name %q", pu.Name)
		}
		seen[pu.Name] = true
	}
	if len(items) != 11 {
		t.Fatalf("expected 11 stock power-ups, got %d", len(items))
	}
}
