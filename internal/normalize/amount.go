package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	currencyCodePattern = regexp.MustCompile(`(?i)^(USD|EUR|GBP|AUD|CAD|NZD|INR|CHF|JPY|ZAR)|(USD|EUR|GBP|AUD|CAD|NZD|INR|CHF|JPY|ZAR)$`)
	thousandsPattern    = regexp.MustCompile(`^\d{1,3}(,\d{3})+(\.\d+)?$`)
	decimalCommaPattern = regexp.MustCompile(`^\d+,\d{1,2}$`)
	plainNumberPattern  = regexp.MustCompile(`^(\d+(\.\d+)?|\.\d+)$`)
)

const currencySymbols = "$£€¥₹₩₽¢"

// ParseAmount parses a currency-formatted string. Parenthesized values are
// negative. Unparseable input returns zero, which callers treat as "no transaction".
func ParseAmount(text string) decimal.Decimal {
	amount, ok := ParseAmountStrict(text)
	if !ok {
		return decimal.Zero
	}
	return amount
}

// ParseAmountStrict is ParseAmount with an explicit parse flag, so callers can
// tell a failed parse from a legitimate zero.
func ParseAmountStrict(text string) (decimal.Decimal, bool) {
	s := strings.Map(func(r rune) rune {
		switch {
		case r == ' ' || r == '\u00a0' || r == '\t' || r == '\'':
			return -1
		case strings.ContainsRune(currencySymbols, r):
			return -1
		}
		return r
	}, text)
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = currencyCodePattern.ReplaceAllString(s, "")

	switch {
	case strings.HasPrefix(s, "-"):
		negative = !negative
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative = !negative
		s = s[:len(s)-1]
	}

	s = normalizeSeparators(s)
	if !plainNumberPattern.MatchString(s) {
		return decimal.Zero, false
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, true
}

// normalizeSeparators rewrites thousands and decimal separators into plain form.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if thousandsPattern.MatchString(s) {
			return strings.ReplaceAll(s, ",", "")
		}
		if decimalCommaPattern.MatchString(s) {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}
