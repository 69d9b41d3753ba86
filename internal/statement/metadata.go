package statement

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Veraticus/tandem/internal/normalize"
)

// Metadata is advisory statement information; parsing never depends on it.
type Metadata struct {
	BankName        string
	AccountNumber   string
	StatementPeriod string
}

var (
	accountNumberPattern = regexp.MustCompile(`(?i)account\s*(?:number|no\.?|#)?\s*[:#]?\s*([X*\d][X*\d\- ]{2,}\d)`)
	periodPattern        = regexp.MustCompile(`(?i)(?:statement\s+period|period)\s*[:\-]?\s*([^\n]+?\s+(?:to|through|-|–)\s+[^\n]+)`)
)

const bankNameLines = 5

// ExtractMetadata guesses bank name, account number and statement period.
func ExtractMetadata(text string) Metadata {
	var meta Metadata

	if m := accountNumberPattern.FindStringSubmatch(text); len(m) > 1 {
		meta.AccountNumber = strings.TrimSpace(m[1])
	}
	if m := periodPattern.FindStringSubmatch(text); len(m) > 1 {
		meta.StatementPeriod = normalize.CleanDescription(m[1])
	}

	checked := 0
	for _, line := range strings.Split(text, "\n") {
		line = normalize.CleanDescription(line)
		if line == "" {
			continue
		}
		checked++
		if checked > bankNameLines {
			break
		}
		if looksLikeBankName(line) {
			meta.BankName = line
			break
		}
	}

	return meta
}

func looksLikeBankName(line string) bool {
	if len(line) > 60 || normalize.LooksLikeDate(line) {
		return false
	}
	if isTableHeader(line) || accountNumberPattern.MatchString(line) {
		return false
	}

	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 3
}
