package dataset

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/datapilot-ai/datapilot/internal/domain"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })
	return registry
}

func sampleDataset(id string, uploadedAt time.Time) *domain.Dataset {
	return &domain.Dataset{
		ID:         id,
		Name:       "sales.csv",
		Path:       "/data/uploads/" + id + ".csv",
		Columns:    []string{"region", "amount"},
		RowCount:   120,
		UploadedAt: uploadedAt,
	}
}

func TestRegistry_SaveAndGet(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)
	ctx := context.Background()
	want := sampleDataset("ds-1", time.Now().Truncate(time.Second))

	if err := registry.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := registry.Get(ctx, "ds-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected dataset, got nil")
	}
	if got.Name != want.Name || got.Path != want.Path || got.RowCount != want.RowCount {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
	if len(got.Columns) != 2 || got.Columns[0] != "region" {
		t.Fatalf("unexpected columns: %v", got.Columns)
	}
	if !got.UploadedAt.Equal(want.UploadedAt) {
		t.Fatalf("uploaded_at mismatch: got %v, want %v", got.UploadedAt, want.UploadedAt)
	}
}

func TestRegistry_GetMissingReturnsNil(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)
	got, err := registry.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing dataset, got %+v", got)
	}
}

func TestRegistry_SaveUpserts(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)
	ctx := context.Background()

	ds := sampleDataset("ds-1", time.Now().Truncate(time.Second))
	if err := registry.Save(ctx, ds); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ds.RowCount = 500
	if err := registry.Save(ctx, ds); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := registry.Get(ctx, "ds-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RowCount != 500 {
		t.Fatalf("expected upserted row count 500, got %d", got.RowCount)
	}

	list, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 dataset after upsert, got %d", len(list))
	}
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)

	if err := registry.Save(ctx, sampleDataset("old", base.Add(-time.Hour))); err != nil {
		t.Fatalf("Save old: %v", err)
	}
	if err := registry.Save(ctx, sampleDataset("new", base)); err != nil {
		t.Fatalf("Save new: %v", err)
	}

	list, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 datasets, got %d", len(list))
	}
	if list[0].ID != "new" || list[1].ID != "old" {
		t.Fatalf("expected newest first, got [%s %s]", list[0].ID, list[1].ID)
	}
}

func TestRegistry_Delete(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)
	ctx := context.Background()

	if err := registry.Save(ctx, sampleDataset("ds-1", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}

	deleted, err := registry.Delete(ctx, "ds-1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete to report true")
	}

	deleted, err = registry.Delete(ctx, "ds-1")
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if deleted {
		t.Fatal("expected second delete to report false")
	}
}
