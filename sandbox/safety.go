package sandbox

import (
	"regexp"
	"strings"
)

// DeniedQueryKeywords are the destructive or administrative statements the
// safety gate refuses
var DeniedQueryKeywords = []string{"DROP", "ALTER", "ATTACH", "DETACH", "PRAGMA", "VACUUM", "REINDEX", "RENAME"}

var deniedQueryPattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(DeniedQueryKeywords, "|") + `)\b`)

// IsSafe reports whether a query script is free of denied keywords. This is
// a whole-word textual check, not a parser: a keyword inside a string literal
// or a comment is rejected too. It guards the ephemeral store in depth; the
// workspace is the actual boundary.
func IsSafe(query string) bool {
	return !deniedQueryPattern.MatchString(query)
}
