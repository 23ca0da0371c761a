// Package related ranks published posts by taxonomy overlap with a source
// post. Recommendations are best-effort: a missing source yields an empty
// result, never an error.
package related

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kalmarr/matrixcbs/internal/config"
	"github.com/kalmarr/matrixcbs/internal/model"
	"github.com/kalmarr/matrixcbs/internal/repository"
	"github.com/rs/zerolog"
)

// ErrInvalidLimit marks an out-of-range result limit. It is a caller error,
// distinct from an empty (but valid) result.
var ErrInvalidLimit = errors.New("limit must be between 1 and 10")

// Weights of the blended relevance score. Categories are coarse, curated
// signals and count three times as much as tags, which are finer and noisier.
const (
	categoryWeight = 3
	tagWeight      = 1
)

type Ranker struct {
	store repository.TaxonomyStore

	// now is injectable for deterministic tests.
	now func() time.Time
}

func NewRanker(store repository.TaxonomyStore) *Ranker {
	return &Ranker{
		store: store,
		now:   time.Now,
	}
}

type scored struct {
	candidate model.RelatedCandidate
	score     int
}

// FindRelated returns up to limit published posts ranked by shared-taxonomy
// relevance to sourceID. Limits above config.MaxRelatedLimit are rejected,
// not truncated; that ceiling is part of the API contract.
func (r *Ranker) FindRelated(ctx context.Context, sourceID model.PostID, limit int) ([]model.RelatedPost, error) {
	if limit < 1 || limit > config.MaxRelatedLimit {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	tax, err := r.store.PostTaxonomy(ctx, sourceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// A missing source must not fail the caller.
			return []model.RelatedPost{}, nil
		}
		return nil, fmt.Errorf("loading source taxonomy: %w", err)
	}

	// No relevance signal means no recommendation, not a most-recent
	// fallback.
	if tax.IsEmpty() {
		return []model.RelatedPost{}, nil
	}

	candidates, err := r.store.PublishedCandidates(ctx, tax.CategoryIDs, tax.TagIDs, sourceID, r.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}

	catSet := idSet(tax.CategoryIDs)
	tagSet := idSet(tax.TagIDs)

	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		score := categoryWeight*overlap(catSet, c.CategoryIDs) + tagWeight*overlap(tagSet, c.TagIDs)
		if score == 0 {
			// The store already filters on shared taxonomy; a zero here
			// would be a malformed candidate row.
			continue
		}
		ranked = append(ranked, scored{candidate: c, score: score})
	}

	// Score descending, then newest first, then id ascending so equal rows
	// order deterministically.
	slices.SortFunc(ranked, func(a, b scored) int {
		if a.score != b.score {
			return b.score - a.score
		}
		if !a.candidate.PublishedAt.Equal(b.candidate.PublishedAt) {
			return b.candidate.PublishedAt.Compare(a.candidate.PublishedAt)
		}
		return int(a.candidate.ID - b.candidate.ID)
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	results := make([]model.RelatedPost, 0, len(ranked))
	for _, s := range ranked {
		c := s.candidate
		results = append(results, model.RelatedPost{
			ID:            c.ID,
			Title:         c.Title,
			Slug:          c.Slug,
			Excerpt:       c.Excerpt,
			FeaturedImage: c.FeaturedImage,
			PublishedAt:   c.PublishedAt,
			Categories:    c.Categories,
		})
	}

	zerolog.Ctx(ctx).Debug().
		Int64("source_id", int64(sourceID)).
		Int("candidates", len(candidates)).
		Int("returned", len(results)).
		Msg("Related posts ranked")

	return results, nil
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func overlap(set map[int64]struct{}, ids []int64) int {
	n := 0
	for _, id := range ids {
		if _, ok := set[id]; ok {
			n++
		}
	}
	return n
}
