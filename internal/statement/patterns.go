package statement

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/tandem/internal/model"
	"github.com/Veraticus/tandem/internal/normalize"
)

// Pattern is one "date + description + amount [+ DR/CR]" layout. The regex must
// define the named groups date, desc and amount; marker is optional.
type Pattern struct {
	Name  string
	Regex string
}

// CompiledPattern holds a compiled layout regex with its metadata.
type CompiledPattern struct {
	compiledRegex *regexp.Regexp
	Pattern
	dateIdx   int
	descIdx   int
	amountIdx int
	markerIdx int
}

const (
	amountGroup  = `(?P<amount>\(?[-+]?[$£€]?\s?\d[\d,]*\.\d{2}\)?-?)`
	markerGroup  = `(?:\s*(?P<marker>DR|CR|Dr|Cr))?`
	balanceGroup = `(?:\s+\(?-?[$£€]?\d[\d,]*\.\d{2}\)?(?:\s*(?:DR|CR|Dr|Cr))?)?`
	rowTail      = `\s+(?P<desc>\S.*?)\s+` + amountGroup + markerGroup + balanceGroup + `\s*$`
)

// DefaultPatterns returns the built-in layouts, most specific first.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:  "iso-date",
			Regex: `(?m)^\s*(?P<date>\d{4}-\d{2}-\d{2})` + rowTail,
		},
		{
			Name:  "numeric-date",
			Regex: `(?m)^\s*(?P<date>\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4})` + rowTail,
		},
		{
			Name:  "day-month-name",
			Regex: `(?m)^\s*(?P<date>\d{1,2}[\s-][A-Za-z]{3,9}[\s-]\d{2,4})` + rowTail,
		},
		{
			Name:  "month-name-day",
			Regex: `(?m)^\s*(?P<date>[A-Za-z]{3,9}\s+\d{1,2},?\s+\d{4})` + rowTail,
		},
	}
}

// PatternStrategy applies an ordered list of layout regexes to the full text.
type PatternStrategy struct {
	patterns []CompiledPattern
}

// CompilePatterns validates and compiles layouts for a PatternStrategy.
func CompilePatterns(patterns []Pattern) ([]CompiledPattern, error) {
	compiled := make([]CompiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern %s: %w", p.Name, err)
		}

		cp := CompiledPattern{
			Pattern:       p,
			compiledRegex: re,
			dateIdx:       re.SubexpIndex("date"),
			descIdx:       re.SubexpIndex("desc"),
			amountIdx:     re.SubexpIndex("amount"),
			markerIdx:     re.SubexpIndex("marker"),
		}
		if cp.dateIdx < 0 || cp.descIdx < 0 || cp.amountIdx < 0 {
			return nil, fmt.Errorf("pattern %s must define date, desc and amount groups", p.Name)
		}
		compiled = append(compiled, cp)
	}
	return compiled, nil
}

// NewPatternStrategy compiles the given layouts. It panics on an invalid
// built-in layout; use CompilePatterns for user-supplied ones.
func NewPatternStrategy(patterns []Pattern) *PatternStrategy {
	compiled, err := CompilePatterns(patterns)
	if err != nil {
		panic(err)
	}
	return NewPatternStrategyFromCompiled(compiled)
}

// NewPatternStrategyFromCompiled wraps layouts checked by CompilePatterns.
func NewPatternStrategyFromCompiled(patterns []CompiledPattern) *PatternStrategy {
	return &PatternStrategy{patterns: patterns}
}

// Name identifies the strategy in logs and results.
func (s *PatternStrategy) Name() string {
	return "pattern"
}

// Attempt runs every layout over the text; overlapping matches are dropped by DedupeKey.
func (s *PatternStrategy) Attempt(text string) []model.Transaction {
	var txns []model.Transaction
	seen := make(map[string]bool)

	for _, p := range s.patterns {
		for _, m := range p.compiledRegex.FindAllStringSubmatch(text, -1) {
			date, ok := normalize.ParseDate(m[p.dateIdx])
			if !ok {
				continue
			}

			signed, forced, ok := parseMarkedAmount(m[p.amountIdx])
			if !ok {
				continue
			}
			if p.markerIdx >= 0 {
				switch strings.ToUpper(m[p.markerIdx]) {
				case "CR":
					forced = model.TypeCredit
				case "DR":
					forced = model.TypeDebit
				}
			}

			desc := normalize.CleanDescription(m[p.descIdx])
			txn, ok := buildTransaction(date, desc, signed, forced, strings.TrimSpace(m[0]))
			if !ok {
				continue
			}

			key := DedupeKey(txn)
			if seen[key] {
				continue
			}
			seen[key] = true
			txns = append(txns, txn)
		}
	}

	return txns
}
