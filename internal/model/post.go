// Package model defines core data structures and types for the CMS backend.
package model

import (
	"html/template"
	"strconv"
	"time"
)

type PostID int64

func (id PostID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

type UserID string

// PostStatus is the publication state of a post.
type PostStatus string

const (
	StatusDraft     PostStatus = "DRAFT"
	StatusScheduled PostStatus = "SCHEDULED"
	StatusPublished PostStatus = "PUBLISHED"
)

// Valid reports whether s is one of the known publication states.
func (s PostStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusPublished:
		return true
	}
	return false
}

type Category struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Color string `json:"color"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Post struct {
	ID PostID `json:"id"`

	Title   string `json:"title"`
	Slug    string `json:"slug"`
	Excerpt string `json:"excerpt"`

	// Rendered HTML body, populated on demand from Markdown.
	Content template.HTML `json:"content,omitempty"`

	// Used for cache busting of rendered content.
	// We cannot use the rendered output because it depends on the syntax theme.
	BodyHash string `json:"-"`

	Markdown      []byte     `json:"-"`
	FeaturedImage string     `json:"featured_image,omitempty"`
	Status        PostStatus `json:"status"`

	// PublishedAt is nil until the post is scheduled or published.
	PublishedAt *time.Time `json:"published_at,omitempty"`

	CreatedDate  time.Time `json:"created_at"`
	ModifiedDate time.Time `json:"modified_at"`

	Categories []Category `json:"categories,omitempty"`
	Tags       []Tag      `json:"tags,omitempty"`

	Owner UserID `json:"-"`
}

// IsVisible reports whether the post is publicly readable at the given time.
func (p *Post) IsVisible(now time.Time) bool {
	return p.Status == StatusPublished && p.PublishedAt != nil && !p.PublishedAt.After(now)
}

// RelatedPost is the projection returned by the related-content ranker.
// The relevance score and the tag list are internal and never leave the server.
type RelatedPost struct {
	ID            PostID     `json:"id"`
	Title         string     `json:"title"`
	Slug          string     `json:"slug"`
	Excerpt       string     `json:"excerpt,omitempty"`
	FeaturedImage string     `json:"featured_image,omitempty"`
	PublishedAt   time.Time  `json:"published_at"`
	Categories    []Category `json:"categories,omitempty"`
}
