// Package util provides utility functions for content hashing, slugs and front matter parsing.
package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"
	"github.com/gomarkdown/markdown"

	"github.com/mmarkdown/mmark/v2/mast"
)

// PostMeta is the TOML front matter block understood by the importer.
// It extends mmark's title block with CMS taxonomy fields.
type PostMeta struct {
	*mast.TitleData
	Consumed int

	Slug          string
	Excerpt       string
	FeaturedImage string
	Categories    []string
	Tags          []string
}

func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func ContentHashString(content string) string {
	return ContentHash([]byte(content))
}

// Slugify turns a title into a URL-safe slug. Hungarian accented characters
// are transliterated before the generic fold.
func Slugify(s string) string {
	replacer := strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ö", "o", "ő", "o",
		"ú", "u", "ü", "u", "ű", "u",
		"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ö", "o", "Ő", "o",
		"Ú", "u", "Ü", "u", "Ű", "u",
	)
	s = replacer.Replace(strings.TrimSpace(s))

	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func GetFrontMatter(md []byte) (*PostMeta, error) {
	md = markdown.NormalizeNewlines(md)
	md = bytes.TrimLeft(md, "\n \t\r")

	delimiter := []byte("%%%")

	// Check if md is long enough to contain the delimiter
	if len(md) < 2*len(delimiter) {
		return nil, fmt.Errorf("invalid front matter format")
	}

	first := bytes.Index(md[:len(delimiter)+1], delimiter)
	if first == -1 {
		return nil, fmt.Errorf("invalid front matter format")
	}

	second := bytes.Index(md[first+len(delimiter):], delimiter)
	if second == -1 {
		return nil, fmt.Errorf("invalid front matter format")
	}

	end := second + 2*len(delimiter) + 1
	if end > len(md) {
		return nil, fmt.Errorf("invalid front matter format")
	}

	frontMatter := md[len(delimiter) : end-len(delimiter)-1]
	meta := &PostMeta{
		TitleData: &mast.TitleData{},
	}

	if _, err := toml.Decode(string(frontMatter), meta); err != nil {
		return nil, fmt.Errorf("failed to decode front matter: %w", err)
	}

	if meta.Slug == "" {
		meta.Slug = Slugify(meta.Title)
	}
	meta.Consumed = end

	return meta, nil
}
