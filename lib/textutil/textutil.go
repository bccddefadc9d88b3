package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lowercases `name` and removes all whitespace.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// MinSimilarity is the Jaro-Winkler similarity above which two names count as
// the same when neither contains the other.
const MinSimilarity = 0.85

// MatchName reports whether `name` resembles `query`, an empty query matches
// every name.
func MatchName(query, name string) bool {
	query = NormalizeName(query)
	if query == "" {
		return true
	}
	name = NormalizeName(name)
	if strings.Contains(name, query) {
		return true
	}
	return matchr.JaroWinkler(query, name, false) >= MinSimilarity
}
