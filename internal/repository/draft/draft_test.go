package draft

import (
	"context"
	"errors"
	"testing"

	"github.com/kalmarr/matrixcbs/internal/autosave"
	"github.com/kalmarr/matrixcbs/internal/db"
	"github.com/kalmarr/matrixcbs/internal/model"
)

func stores(t *testing.T) map[string]autosave.Store {
	t.Helper()

	sqlite := db.NewSQLite(":memory:")
	if err := sqlite.InitDB(); err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]autosave.Store{
		"memory": NewMemoryStore(),
		"db":     NewDBStore(sqlite),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			postID := model.PostID(7)

			savedAt, err := store.SaveDraft(ctx, "7", autosave.Snapshot{
				Title:   "Working title",
				Body:    "# Draft body",
				Excerpt: "Short.",
				PostID:  &postID,
			})
			if err != nil {
				t.Fatalf("SaveDraft failed: %v", err)
			}
			if savedAt.IsZero() {
				t.Error("Expected non-zero acknowledged save time")
			}

			d, err := store.GetDraft(ctx, "7")
			if err != nil {
				t.Fatalf("GetDraft failed: %v", err)
			}
			if d.Title != "Working title" || d.Body != "# Draft body" || d.Excerpt != "Short." {
				t.Errorf("Round trip mismatch: %+v", d)
			}
			if d.PostID == nil || *d.PostID != 7 {
				t.Errorf("Expected post id 7, got %v", d.PostID)
			}
		})
	}
}

func TestStoreOverwrite(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.SaveDraft(ctx, "k", autosave.Snapshot{Body: "v1"}); err != nil {
				t.Fatal(err)
			}
			if _, err := store.SaveDraft(ctx, "k", autosave.Snapshot{Body: "v2"}); err != nil {
				t.Fatal(err)
			}

			d, err := store.GetDraft(ctx, "k")
			if err != nil {
				t.Fatalf("GetDraft failed: %v", err)
			}
			if d.Body != "v2" {
				t.Errorf("Expected last write to win, got %q", d.Body)
			}
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.GetDraft(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound from GetDraft, got %v", err)
			}
			if err := store.DeleteDraft(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound from DeleteDraft, got %v", err)
			}
		})
	}
}

func TestStoreDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.SaveDraft(ctx, "gone", autosave.Snapshot{Body: "bye"}); err != nil {
				t.Fatal(err)
			}
			if err := store.DeleteDraft(ctx, "gone"); err != nil {
				t.Fatalf("DeleteDraft failed: %v", err)
			}
			if _, err := store.GetDraft(ctx, "gone"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected draft to be gone, got %v", err)
			}
		})
	}
}
