package normalize

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	asteriskRun   = regexp.MustCompile(`\*+`)
)

// CleanDescription collapses whitespace and asterisk runs and trims the result.
func CleanDescription(text string) string {
	s := whitespaceRun.ReplaceAllString(text, " ")
	s = asteriskRun.ReplaceAllString(s, "*")
	return strings.TrimSpace(s)
}
