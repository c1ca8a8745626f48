package usecase

import (
	"strings"

	"github.com/example/wardrobe-scan/internal/analysis"
)

// ClothingVocabulary lists the substrings that mark a detection label as a
// garment.
var ClothingVocabulary = []string{
	"shirt", "pants", "dress", "jacket", "shoes",
	"footwear", "top", "jeans", "coat", "sweater",
}

// IsClothing reports whether label contains a vocabulary term, ignoring case.
func IsClothing(label string) bool {
	label = strings.ToLower(label)
	for _, term := range ClothingVocabulary {
		if strings.Contains(label, term) {
			return true
		}
	}
	return false
}

// FilterClothing keeps garment detections in provider order.
func FilterClothing(detections []analysis.Detection) []analysis.Detection {
	var kept []analysis.Detection
	for _, d := range detections {
		if IsClothing(d.Label) {
			kept = append(kept, d)
		}
	}
	return kept
}
