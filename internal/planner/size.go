package planner

import (
	"regexp"
	"strconv"
	"strings"
)

// defaultMaxDatasetSizeGB is used when the utterance carries no size phrase.
const defaultMaxDatasetSizeGB = 50

// sizePhrase matches utterances of the shape "under 500MB", "max 2 GB",
// "not more than 10gb", "up to 1.5 gb".
var sizePhrase = regexp.MustCompile(`(?i)(?:under|max(?:imum)?|not more than|up to)\s+(\d+(?:\.\d+)?)\s*(mb|gb)`)

// ParseMaxDatasetSizeGB extracts a size cap in GB from a free-text
// utterance, converting MB to GB (divide by 1024), or returns the default
// when no matching phrase is present. The function is idempotent: feeding
// its own formatted output back through it yields the same value.
func ParseMaxDatasetSizeGB(utterance string) float64 {
	m := sizePhrase.FindStringSubmatch(utterance)
	if m == nil {
		return defaultMaxDatasetSizeGB
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return defaultMaxDatasetSizeGB
	}
	unit := strings.ToLower(m[2])
	if unit == "mb" {
		return value / 1024
	}
	return value
}
