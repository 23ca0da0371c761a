package theme

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalmarr/matrixcbs/internal/cache"
	"github.com/kalmarr/matrixcbs/internal/config"
)

func setupMockConfig() {
	if config.AppConfig == nil {
		config.AppConfig = &config.Config{}
		config.ApplyDefaults(config.AppConfig)
	}
}

func TestGenerateSyntaxCSS(t *testing.T) {
	testCases := []struct {
		name  string
		theme string
	}{
		{name: "Valid Theme - Monokai", theme: "monokai"},
		{name: "Valid Theme - Github", theme: "github"},
		{name: "Valid Theme - Gruvbox", theme: "gruvbox"},
		{name: "Non-existent Theme - Fallback", theme: "nonexistent-theme-12345"},
		{name: "Empty Theme Name", theme: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// First call - should generate and cache
			css1 := GenerateSyntaxCSS(tc.theme)
			if css1 == "" {
				t.Fatal("Expected CSS content, but got empty")
			}
			if !strings.Contains(string(css1), ".chroma") {
				t.Errorf("Expected CSS to contain '.chroma' class")
			}

			cachedCSS, found := cache.GetSyntaxCSS(tc.theme)
			if !found {
				t.Errorf("Expected CSS to be in cache, but it wasn't")
			}
			if found && cachedCSS != css1 {
				t.Errorf("Cached CSS does not match generated CSS")
			}

			// Second call - should hit the cache
			css2 := GenerateSyntaxCSS(tc.theme)
			if css1 != css2 {
				t.Errorf("Expected second call to return identical CSS from cache")
			}
		})
	}
}

func TestGetFormatter(t *testing.T) {
	formatter := GetFormatter()
	if formatter == nil {
		t.Fatal("Expected formatter to be non-nil")
	}
}

func TestGetSyntaxThemes(t *testing.T) {
	themes := GetSyntaxThemes()
	if len(themes) == 0 {
		t.Error("Expected at least one syntax theme")
	}

	// Verify themes are sorted
	for i := 1; i < len(themes); i++ {
		if themes[i-1] > themes[i] {
			t.Errorf("Themes are not sorted: %s > %s", themes[i-1], themes[i])
		}
	}

	commonThemes := []string{"github", "monokai", "gruvbox"}
	for _, theme := range commonThemes {
		found := false
		for _, availableTheme := range themes {
			if availableTheme == theme {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected common theme %s to be available", theme)
		}
	}
}

func TestGetSyntaxThemeFromRequest(t *testing.T) {
	setupMockConfig()

	testCases := []struct {
		name          string
		cookieValue   string
		hasCookie     bool
		expectedTheme string
	}{
		{
			name:          "No cookie - use default",
			hasCookie:     false,
			expectedTheme: config.AppConfig.Theme.SyntaxHighlighting.Default,
		},
		{
			name:          "Cookie overrides default",
			cookieValue:   "monokai",
			hasCookie:     true,
			expectedTheme: "monokai",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tc.hasCookie {
				req.AddCookie(&http.Cookie{
					Name:  config.CookieSyntaxTheme,
					Value: tc.cookieValue,
				})
			}

			theme := GetSyntaxThemeFromRequest(req)
			if theme != tc.expectedTheme {
				t.Errorf("Expected syntax theme %s, got %s", tc.expectedTheme, theme)
			}
		})
	}
}

func BenchmarkGenerateSyntaxCSS(b *testing.B) {
	theme := "monokai"

	// Run once to populate the cache
	GenerateSyntaxCSS(theme)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		GenerateSyntaxCSS(theme)
	}
}
