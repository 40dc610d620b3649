package utils

import (
	"regexp"
	"strings"
)

var (
	illegalChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	multiSpace   = regexp.MustCompile(`\s{2,}`)
	trailingDots = regexp.MustCompile(`[. ]+$`)
)

// SanitizeName strips filesystem-illegal characters from a single path
// component and collapses whitespace left behind by the removal.
func SanitizeName(name string) string {
	clean := illegalChars.ReplaceAllString(name, " ")
	clean = multiSpace.ReplaceAllString(clean, " ")
	clean = strings.TrimSpace(clean)
	clean = trailingDots.ReplaceAllString(clean, "")
	if clean == "" {
		return "unknown"
	}
	return clean
}
