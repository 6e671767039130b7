// Package slug derives the stable, filesystem- and URI-safe project slug
// used in every persisted object path.
package slug

import (
	"regexp"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Make lowercases name, replaces runs of non-alphanumeric characters with a
// single hyphen, and trims leading/trailing hyphens.
func Make(name string) string {
	lower := strings.ToLower(name)
	replaced := nonSlugChars.ReplaceAllString(lower, "-")
	return strings.Trim(replaced, "-")
}
