package config

const (
	PostsUrlPath   = "/api/posts/"
	RelatedUrlPath = "/api/posts/related"
	DraftsUrlPath  = "/api/drafts/"
	MediaUrlPath   = "/media/"

	// MaxRelatedLimit is the hard ceiling of the related-posts endpoint.
	// Requests above it are rejected, not truncated.
	MaxRelatedLimit = 10
)
