// Package repository implements DB-backed content storage with an in-memory
// read cache, taxonomy queries for the related-content ranker and the
// scheduled-publish sweep.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kalmarr/matrixcbs/internal/model"
	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("post not found")

type PostRepository interface {
	Init()

	// GetPostList returns the publicly visible posts, newest first.
	GetPostList() []model.Post
	ReadPost(id model.PostID) (*model.Post, error)

	NewPost() *model.Post
	SavePost(post *model.Post) error
	SetPostContent(post *model.Post) error
	PublishPost(id model.PostID, at time.Time) error

	// Refresh runs the periodic cache reload and the scheduled-publish sweep.
	Refresh()

	// SetReloadNotifier sets a function that will be called when a post's
	// content changes on disk relative to the cache.
	SetReloadNotifier(notifier func(model.PostID))
}

// TaxonomyStore is the read interface consumed by the related-content ranker.
type TaxonomyStore interface {
	PostTaxonomy(ctx context.Context, id model.PostID) (*model.Taxonomy, error)
	PublishedCandidates(ctx context.Context, categoryIDs, tagIDs []int64, excludeID model.PostID, now time.Time) ([]model.RelatedCandidate, error)
}

var repoLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}
