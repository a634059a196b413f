package taxon

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrNotDerivable is returned when an ancestor name cannot be read off a
// descendant's scientific name.
var ErrNotDerivable = errors.New("ancestor name not derivable")

var (
	titleCaser = cases.Title(language.Und)
	lowerCaser = cases.Lower(language.Und)
)

// DeriveAncestorName derives the genus or species name contained in a
// species or subspecies name: the genus is the first word, the species the
// first two. Ranks above genus are not encoded in scientific names.
func DeriveAncestorName(child string, ancestor Rank) (string, error) {
	words := strings.Fields(child)
	var n int
	switch ancestor {
	case Genus:
		n = 1
	case Species:
		n = 2
	default:
		return "", fmt.Errorf("%w: %s from %q", ErrNotDerivable, ancestor, child)
	}
	if len(words) <= n {
		return "", fmt.Errorf("%w: %s from %q", ErrNotDerivable, ancestor, child)
	}
	return strings.Join(words[:n], " "), nil
}

// ParentName drops the last space-delimited word. A single word has no
// parent name.
func ParentName(name string) string {
	name = strings.TrimSpace(name)
	i := strings.LastIndexByte(name, ' ')
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(name[:i])
}

// ComposeLatin builds the scientific name for a value found in a rank
// column. Species and subspecies columns may hold just the epithet, in which
// case the open parent's name is prefixed.
func ComposeLatin(rank Rank, value, parentLatin string) string {
	value = strings.Join(strings.Fields(value), " ")
	if rank < Species || strings.Contains(value, " ") || parentLatin == "" {
		return value
	}
	return parentLatin + " " + value
}

// NormalizeLatin applies conventional capitalization: uninomials are
// capitalized, binomials and trinomials get a capitalized genus and
// lower-case epithets.
func NormalizeLatin(name string, rank Rank) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return ""
	}
	if rank < Species {
		return titleCaser.String(strings.Join(words, " "))
	}
	words[0] = titleCaser.String(words[0])
	for i := 1; i < len(words); i++ {
		words[i] = lowerCaser.String(words[i])
	}
	return strings.Join(words, " ")
}
