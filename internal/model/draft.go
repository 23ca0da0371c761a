package model

import "time"

// DraftKey identifies a draft in the draft store. For an existing post it is
// the post id rendered as a string; for a brand-new document it is a UUID
// minted when the editor session opens.
type DraftKey string

// Draft is an autosaved working copy of a document being edited. Drafts are
// overwritten in place on every save; they are not versioned.
type Draft struct {
	Key DraftKey `json:"key"`

	// PostID links the draft to a persisted post, if one exists yet.
	PostID *PostID `json:"post_id,omitempty"`

	Title   string `json:"title"`
	Body    string `json:"body"`
	Excerpt string `json:"excerpt"`

	UpdatedAt time.Time `json:"updated_at"`

	Owner UserID `json:"-"`
}
