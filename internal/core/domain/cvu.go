package domain

import (
	"regexp"
	"strings"
)

// CVULength is the fixed number of digits in a CVU.
const CVULength = 22

var cvuPattern = regexp.MustCompile(`^[0-9]{22}$`)

// ValidCVU reports whether cvu is exactly 22 numeric digits.
func ValidCVU(cvu string) bool {
	return cvuPattern.MatchString(cvu)
}

// NormalizeAlias trims and lower-cases an alias for lookup. Aliases are
// case-insensitive.
func NormalizeAlias(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}
