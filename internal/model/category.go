package model

// CategoryOther is the fallback key for descriptions no vocabulary matched.
const CategoryOther = "other"

// CategorySuggestion is a best-guess category for a transaction.
type CategorySuggestion struct {
	CategoryKey string
	Confidence  float64
}

// Confident reports whether the suggestion clears the display threshold.
func (s CategorySuggestion) Confident(threshold float64) bool {
	return s.Confidence >= threshold
}
