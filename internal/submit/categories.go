package submit

import (
	"fmt"
	"strings"
)

// Category names a kind of backend work.
type Category string

const (
	CategoryEvidenceAnalysis            Category = "evidence_analysis"
	CategoryAssociationEvidenceAnalysis Category = "association_evidence_analysis"
	CategoryCardCasting                 Category = "card_casting"
)

type categorySpec struct {
	path   string
	title  string
	target string
	verb   string
}

var categorySpecs = map[Category]categorySpec{
	CategoryEvidenceAnalysis: {
		path:   "/evidence/analyze",
		title:  "Evidence analysis",
		target: "/cases/%s/evidence",
		verb:   "Analysing",
	},
	CategoryAssociationEvidenceAnalysis: {
		path:   "/evidence/association/analyze",
		title:  "Association evidence analysis",
		target: "/cases/%s/evidence",
		verb:   "Associating",
	},
	CategoryCardCasting: {
		path:   "/cards/cast",
		title:  "Card casting",
		target: "/cases/%s/cards",
		verb:   "Casting cards from",
	},
}

// Categories lists every supported category in display order.
func Categories() []Category {
	return []Category{CategoryEvidenceAnalysis, CategoryAssociationEvidenceAnalysis, CategoryCardCasting}
}

// ParseCategory accepts a category key or one of its short CLI aliases.
func ParseCategory(value string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(value))
	key = strings.ReplaceAll(key, "-", "_")
	switch key {
	case "evidence", "analysis", string(CategoryEvidenceAnalysis):
		return CategoryEvidenceAnalysis, nil
	case "association", "associations", string(CategoryAssociationEvidenceAnalysis):
		return CategoryAssociationEvidenceAnalysis, nil
	case "cards", "card", string(CategoryCardCasting):
		return CategoryCardCasting, nil
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, value)
}

// Endpoint returns the backend path the category posts to.
func (c Category) Endpoint() string {
	return categorySpecs[c].path
}
