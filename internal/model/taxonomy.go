package model

import "time"

// Taxonomy is a post's category and tag membership, as consumed by the
// related-content ranker.
type Taxonomy struct {
	CategoryIDs []int64
	TagIDs      []int64
}

// IsEmpty reports whether the post carries no relevance signal at all.
func (t *Taxonomy) IsEmpty() bool {
	return len(t.CategoryIDs) == 0 && len(t.TagIDs) == 0
}

// RelatedCandidate is a published post that shares taxonomy with a source
// post. It carries the display fields so ranking needs no follow-up query.
type RelatedCandidate struct {
	ID          PostID
	PublishedAt time.Time

	CategoryIDs []int64
	TagIDs      []int64

	Title         string
	Slug          string
	Excerpt       string
	FeaturedImage string

	// Categories is the display list attached to ranked results.
	Categories []Category
}
