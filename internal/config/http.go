package config

const (
	HCType        = "Content-Type"
	HETag         = "ETag"
	HCacheControl = "Cache-Control"
	HRetryAfter   = "Retry-After"

	CTypeCSS  = "text/css"
	CTypeJSON = "application/json"
)

const (
	HTTPErrMethodNotAllowed = "Method not allowed"
)

const (
	CookieSyntaxTheme = "syntax-theme"
	CookieDraftKey    = "draft-key"
)
