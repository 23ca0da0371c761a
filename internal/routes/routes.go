// Package routes defines HTTP route constants for the application.
package routes

// API Routes
const (
	// Static and assets
	RobotsPath     = "/robots.txt"
	HealthPath     = "/healthz"
	SyntaxThemeSet = "/syntax-theme/set"
	SyntaxThemeGet = "/syntax-theme/{theme}"

	// SSE
	SSEPath = "/sse/{key}"

	// Public content API
	APIPosts        = "/api/posts"
	APIPost         = "/api/posts/{id}"
	APIPostRelated  = "/api/posts/related"
	APIPostPreview  = "/api/posts/{id}/preview"
	APICategories   = "/api/categories"
	APITags         = "/api/tags"

	// Admin API
	AdminPosts            = "/api/admin/posts"
	AdminPost             = "/api/admin/posts/{id}"
	AdminPostPublish      = "/api/admin/posts/{id}/publish"
	AdminPostPreviewToken = "/api/admin/posts/{id}/preview-token"
	AdminMaintenance      = "/api/admin/maintenance"
	AdminMedia            = "/api/admin/media"

	// Editor / draft routes
	EditorSessions = "/api/editor/sessions"
	Draft          = "/api/drafts/{key}"
	DraftSave      = "/api/drafts/{key}/save"
	DraftStatus    = "/api/drafts/{key}/status"

	// Media
	MediaPath = "/media/"

	// Auth webhook
	AuthWebhookUser = "/auth/webhook/user"
)
