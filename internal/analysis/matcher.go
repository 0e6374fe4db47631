package analysis

import (
	"strings"

	"github.com/brandradar/brandradar/internal/models"
)

// BrandMatcher attributes free text to a brand by case-insensitive substring
// containment of the brand name or any of its keywords.
type BrandMatcher struct{}

// NewBrandMatcher creates a new matcher
func NewBrandMatcher() *BrandMatcher {
	return &BrandMatcher{}
}

// Match returns the first brand, in the given order, whose name or any
// keyword occurs in text. It is first-match, not best-match.
func (m *BrandMatcher) Match(text string, brands []models.Brand) (models.Brand, bool) {
	content := strings.ToLower(text)
	if strings.TrimSpace(content) == "" {
		return models.Brand{}, false
	}

	for _, brand := range brands {
		if containsTerm(content, brand.Name) {
			return brand, true
		}
		for _, keyword := range brand.Keywords {
			if containsTerm(content, keyword) {
				return brand, true
			}
		}
	}

	return models.Brand{}, false
}

// containsTerm reports whether the lowercased content contains term. Blank
// terms never match.
func containsTerm(content, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	return strings.Contains(content, term)
}
