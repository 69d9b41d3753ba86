// Package dedup flags parsed transactions that likely already exist.
package dedup

import (
	"math"
	"strings"

	"github.com/Veraticus/tandem/internal/model"
)

// Config tunes duplicate matching.
type Config struct {
	WindowDays        int     // Maximum date distance for a candidate match
	MatchThreshold    float64 // Minimum confidence to count as a duplicate
	AutoSkipThreshold float64 // Confidence at which the row defaults to unselected
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		WindowDays:        3,
		MatchThreshold:    0.6,
		AutoSkipThreshold: 0.9,
	}
}

// Signal weights. They sum to one.
const (
	baseWeight = 0.2
	dateWeight = 0.3
	descWeight = 0.5
)

// Detector scores candidates against existing records. It holds no state
// between calls, so Check is deterministic.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector; zero config fields fall back to defaults.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = def.WindowDays
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = def.MatchThreshold
	}
	if cfg.AutoSkipThreshold <= 0 {
		cfg.AutoSkipThreshold = def.AutoSkipThreshold
	}
	return &Detector{cfg: cfg}
}

// Check compares txn against existing and summarises the likely duplicates.
func (d *Detector) Check(txn model.Transaction, existing []model.Transaction) model.DuplicateStatus {
	var status model.DuplicateStatus

	for _, other := range existing {
		confidence, ok := d.Score(txn, other)
		if !ok || confidence < d.cfg.MatchThreshold {
			continue
		}
		status.DuplicateCount++
		if confidence > status.HighestConfidence {
			status.HighestConfidence = confidence
		}
	}

	status.HasDuplicates = status.DuplicateCount > 0
	status.AutoSkip = status.HighestConfidence >= d.cfg.AutoSkipThreshold
	return status
}

// Score returns the match confidence between two transactions. ok is false when
// the pair can never match: different amounts, types, or dates outside the window.
func (d *Detector) Score(a, b model.Transaction) (float64, bool) {
	if !a.Amount.Equal(b.Amount) || a.Type != b.Type {
		return 0, false
	}

	diff := dayDiff(a, b)
	if diff > d.cfg.WindowDays {
		return 0, false
	}

	confidence := baseWeight +
		dateWeight*d.dateScore(diff) +
		descWeight*descriptionScore(a.Description, b.Description)

	return math.Round(confidence*100) / 100, true
}

// dateScore is 1 for the same day and decays linearly across the window.
func (d *Detector) dateScore(diff int) float64 {
	if diff == 0 {
		return 1
	}
	return 0.6 * (1 - float64(diff-1)/float64(d.cfg.WindowDays))
}

func dayDiff(a, b model.Transaction) int {
	hours := model.Day(a.Date).Sub(model.Day(b.Date)).Hours()
	return int(math.Abs(math.Round(hours / 24)))
}

// descriptionScore compares descriptions case-insensitively after whitespace
// normalization: equal is 1, containment 0.8, otherwise token overlap.
func descriptionScore(a, b string) float64 {
	na, nb := normalizeDescription(a), normalizeDescription(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.8
	}
	return 0.7 * tokenOverlap(na, nb)
}

func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenOverlap is the Jaccard index of the two descriptions' word sets.
func tokenOverlap(a, b string) float64 {
	setA := make(map[string]bool)
	for _, tok := range strings.Fields(a) {
		setA[tok] = true
	}
	setB := make(map[string]bool)
	for _, tok := range strings.Fields(b) {
		setB[tok] = true
	}

	shared := 0
	for tok := range setA {
		if setB[tok] {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
