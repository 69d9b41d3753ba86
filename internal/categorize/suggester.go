// Package categorize suggests expense categories from transaction descriptions.
package categorize

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/tandem/internal/model"
	"gopkg.in/yaml.v3"
)

// DefaultDisplayThreshold is the confidence below which callers show no suggestion.
const DefaultDisplayThreshold = 0.5

const (
	fallbackConfidence = 0.1  // returned with CategoryOther when nothing matches
	extraHitBonus      = 0.05 // per additional keyword hit in the same category
	maxConfidence      = 0.99
)

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// Vocabulary maps category keys to keyword weights in (0,1].
type Vocabulary struct {
	Categories map[string]map[string]float64 `yaml:"categories"`
}

// ParseVocabulary decodes a YAML vocabulary and validates its weights.
func ParseVocabulary(data []byte) (Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("failed to parse vocabulary: %w", err)
	}
	if len(v.Categories) == 0 {
		return Vocabulary{}, fmt.Errorf("vocabulary defines no categories")
	}

	for category, keywords := range v.Categories {
		for keyword, weight := range keywords {
			if strings.TrimSpace(keyword) == "" {
				return Vocabulary{}, fmt.Errorf("category %s has an empty keyword", category)
			}
			if weight <= 0 || weight > 1 {
				return Vocabulary{}, fmt.Errorf("category %s keyword %q: weight %v outside (0,1]", category, keyword, weight)
			}
		}
	}
	return v, nil
}

// LoadVocabulary reads a vocabulary file.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("failed to read vocabulary %s: %w", path, err)
	}
	return ParseVocabulary(data)
}

// DefaultVocabulary returns the built-in vocabulary.
func DefaultVocabulary() Vocabulary {
	v, err := ParseVocabulary(defaultVocabularyYAML)
	if err != nil {
		panic(err)
	}
	return v
}

type keywordRule struct {
	regex    *regexp.Regexp
	category string
	keyword  string
	weight   float64
}

// Suggester matches descriptions against a keyword vocabulary.
type Suggester struct {
	rules []keywordRule
}

// NewSuggester compiles a vocabulary. Rules are ordered by category then
// keyword so ties resolve the same way on every run.
func NewSuggester(v Vocabulary) *Suggester {
	var rules []keywordRule
	for category, keywords := range v.Categories {
		for keyword, weight := range keywords {
			kw := strings.ToLower(strings.TrimSpace(keyword))
			rules = append(rules, keywordRule{
				category: category,
				keyword:  kw,
				weight:   weight,
				regex:    regexp.MustCompile(`(^|[^a-z0-9])` + regexp.QuoteMeta(kw) + `s?($|[^a-z0-9])`),
			})
		}
	}

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].category != rules[j].category {
			return rules[i].category < rules[j].category
		}
		return rules[i].keyword < rules[j].keyword
	})

	return &Suggester{rules: rules}
}

// Suggest returns the best category for description. It never fails: an
// unmatched description yields CategoryOther with low confidence.
func (s *Suggester) Suggest(description string) model.CategorySuggestion {
	text := strings.ToLower(strings.Join(strings.Fields(description), " "))

	best := model.CategorySuggestion{CategoryKey: model.CategoryOther, Confidence: fallbackConfidence}
	if text == "" {
		return best
	}

	type hits struct {
		top   float64
		count int
	}
	matched := make(map[string]*hits)
	for _, rule := range s.rules {
		if !rule.regex.MatchString(text) {
			continue
		}
		h, ok := matched[rule.category]
		if !ok {
			h = &hits{}
			matched[rule.category] = h
		}
		h.count++
		h.top = max(h.top, rule.weight)
	}

	categories := make([]string, 0, len(matched))
	for category := range matched {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		h := matched[category]
		score := min(h.top+extraHitBonus*float64(h.count-1), maxConfidence)
		if score > best.Confidence {
			best = model.CategorySuggestion{CategoryKey: category, Confidence: math.Round(score*100) / 100}
		}
	}
	return best
}
