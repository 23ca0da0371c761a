package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalmarr/matrixcbs/internal/db"
	"github.com/kalmarr/matrixcbs/internal/model"
)

func newTestRepo(t *testing.T) *DBPostRepository {
	t.Helper()

	database := db.NewSQLite(":memory:")
	if err := database.InitDB(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })

	for _, q := range []string{
		`INSERT INTO categories (id, name, slug, color) VALUES (1, 'Képzések', 'kepzesek', '#0044cc')`,
		`INSERT INTO categories (id, name, slug, color) VALUES (2, 'Hírek', 'hirek', '#cc4400')`,
		`INSERT INTO tags (id, name, slug) VALUES (100, 'excel', 'excel')`,
		`INSERT INTO tags (id, name, slug) VALUES (101, 'online', 'online')`,
	} {
		if _, err := database.Exec(q); err != nil {
			t.Fatal(err)
		}
	}

	return NewDBPostRepository(database, time.Hour)
}

func newPost(title string, categoryIDs, tagIDs []int64) *model.Post {
	now := time.Now().UTC()
	post := &model.Post{
		Title:        title,
		Markdown:     []byte("# " + title + "\n\nbody"),
		Status:       model.StatusDraft,
		CreatedDate:  now,
		ModifiedDate: now,
		Owner:        "usr_1",
	}
	for _, id := range categoryIDs {
		post.Categories = append(post.Categories, model.Category{ID: id})
	}
	for _, id := range tagIDs {
		post.Tags = append(post.Tags, model.Tag{ID: id})
	}
	return post
}

func TestSaveAndReload(t *testing.T) {
	repo := newTestRepo(t)

	post := newPost("Excel alapok", []int64{1}, []int64{100})
	if err := repo.SavePost(post); err != nil {
		t.Fatal(err)
	}
	if post.ID == 0 {
		t.Fatal("Expected SavePost to fill in the assigned id")
	}
	if post.Slug != "excel-alapok" {
		t.Errorf("Expected auto-generated slug, got %q", post.Slug)
	}

	if err := repo.reload(); err != nil {
		t.Fatal(err)
	}

	t.Run("draft is cached but not listed", func(t *testing.T) {
		got, err := repo.ReadPost(post.ID)
		if err != nil {
			t.Fatal(err)
		}
		if string(got.Markdown) != string(post.Markdown) {
			t.Errorf("Expected body to round-trip through compression, got %q", got.Markdown)
		}
		if len(repo.GetPostList()) != 0 {
			t.Error("Expected no visible posts while the post is a draft")
		}
	})

	t.Run("publish makes it visible", func(t *testing.T) {
		if err := repo.PublishPost(post.ID, time.Now().UTC().Add(-time.Minute)); err != nil {
			t.Fatal(err)
		}
		if err := repo.reload(); err != nil {
			t.Fatal(err)
		}

		list := repo.GetPostList()
		if len(list) != 1 || list[0].ID != post.ID {
			t.Fatalf("Expected the published post in the list, got %v", list)
		}
		if len(list[0].Categories) != 1 || list[0].Categories[0].Slug != "kepzesek" {
			t.Errorf("Expected taxonomy attached, got %+v", list[0].Categories)
		}
	})

	t.Run("publishing a missing post is not found", func(t *testing.T) {
		if err := repo.PublishPost(9999, time.Now().UTC()); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestSetPostContent(t *testing.T) {
	repo := newTestRepo(t)

	post := newPost("Eredeti cím", []int64{1}, nil)
	if err := repo.SavePost(post); err != nil {
		t.Fatal(err)
	}
	oldHash := post.BodyHash

	post.Markdown = []byte("# Frissített tartalom")
	post.Categories = []model.Category{{ID: 2}}
	if err := repo.SetPostContent(post); err != nil {
		t.Fatal(err)
	}

	if post.BodyHash == oldHash {
		t.Error("Expected the body hash to change with the content")
	}

	tax, err := repo.PostTaxonomy(context.Background(), post.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tax.CategoryIDs) != 1 || tax.CategoryIDs[0] != 2 {
		t.Errorf("Expected taxonomy replaced, got %+v", tax)
	}
}

func TestPublishDue(t *testing.T) {
	repo := newTestRepo(t)

	due := newPost("Időzített", []int64{1}, nil)
	due.Status = model.StatusScheduled
	at := time.Now().UTC().Add(-time.Minute)
	due.PublishedAt = &at
	if err := repo.SavePost(due); err != nil {
		t.Fatal(err)
	}

	future := newPost("Jövőbeli", []int64{1}, nil)
	future.Status = model.StatusScheduled
	later := time.Now().UTC().Add(time.Hour)
	future.PublishedAt = &later
	if err := repo.SavePost(future); err != nil {
		t.Fatal(err)
	}

	n, err := repo.publishDue(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Expected exactly one promotion, got %d", n)
	}

	if err := repo.reload(); err != nil {
		t.Fatal(err)
	}
	list := repo.GetPostList()
	if len(list) != 1 || list[0].ID != due.ID {
		t.Errorf("Expected only the due post visible, got %v", list)
	}
}

func TestPostTaxonomy(t *testing.T) {
	repo := newTestRepo(t)

	post := newPost("Vegyes", []int64{1, 2}, []int64{100})
	if err := repo.SavePost(post); err != nil {
		t.Fatal(err)
	}

	t.Run("returns both id sets", func(t *testing.T) {
		tax, err := repo.PostTaxonomy(context.Background(), post.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(tax.CategoryIDs) != 2 || len(tax.TagIDs) != 1 {
			t.Errorf("Expected 2 categories and 1 tag, got %+v", tax)
		}
	})

	t.Run("missing post", func(t *testing.T) {
		if _, err := repo.PostTaxonomy(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("post without taxonomy is empty, not an error", func(t *testing.T) {
		bare := newPost("Üres", nil, nil)
		if err := repo.SavePost(bare); err != nil {
			t.Fatal(err)
		}
		tax, err := repo.PostTaxonomy(context.Background(), bare.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !tax.IsEmpty() {
			t.Errorf("Expected empty taxonomy, got %+v", tax)
		}
	})
}

func TestPublishedCandidates(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now().UTC()

	publish := func(p *model.Post, at time.Time) {
		t.Helper()
		if err := repo.SavePost(p); err != nil {
			t.Fatal(err)
		}
		if err := repo.PublishPost(p.ID, at); err != nil {
			t.Fatal(err)
		}
	}

	source := newPost("Forrás", []int64{1}, []int64{100})
	publish(source, now.Add(-3*time.Hour))

	sharesCat := newPost("Kategória", []int64{1}, nil)
	publish(sharesCat, now.Add(-2*time.Hour))

	sharesTag := newPost("Címke", []int64{2}, []int64{100})
	publish(sharesTag, now.Add(-time.Hour))

	unrelated := newPost("Független", []int64{2}, []int64{101})
	publish(unrelated, now.Add(-time.Hour))

	futurePost := newPost("Jövő", []int64{1}, nil)
	publish(futurePost, now.Add(time.Hour))

	draft := newPost("Piszkozat", []int64{1}, nil)
	if err := repo.SavePost(draft); err != nil {
		t.Fatal(err)
	}

	candidates, err := repo.PublishedCandidates(context.Background(), []int64{1}, []int64{100}, source.ID, now)
	if err != nil {
		t.Fatal(err)
	}

	got := make(map[model.PostID]model.RelatedCandidate, len(candidates))
	for _, c := range candidates {
		got[c.ID] = c
	}

	if len(got) != 2 {
		t.Fatalf("Expected 2 candidates, got %d: %v", len(got), candidates)
	}
	if _, ok := got[sharesCat.ID]; !ok {
		t.Error("Expected the category-sharing post among candidates")
	}
	c, ok := got[sharesTag.ID]
	if !ok {
		t.Fatal("Expected the tag-sharing post among candidates")
	}
	if len(c.TagIDs) != 1 || c.TagIDs[0] != 100 {
		t.Errorf("Expected candidate tag ids attached, got %+v", c.TagIDs)
	}
	if len(c.Categories) != 1 || c.Categories[0].Slug != "hirek" {
		t.Errorf("Expected candidate display categories attached, got %+v", c.Categories)
	}

	t.Run("empty id sets return nothing", func(t *testing.T) {
		candidates, err := repo.PublishedCandidates(context.Background(), nil, nil, source.ID, now)
		if err != nil {
			t.Fatal(err)
		}
		if len(candidates) != 0 {
			t.Errorf("Expected no candidates without taxonomy, got %v", candidates)
		}
	})
}
