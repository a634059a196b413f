package taxon

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRank is returned when a rank code or name is not one of the six
// fixed ranks.
var ErrUnknownRank = errors.New("unknown rank")

// Rank is one of the six fixed taxonomic levels. Ranks compare by ordinal:
// a smaller value is a shallower (more inclusive) rank.
type Rank int

const (
	Class Rank = iota
	Order
	Family
	Genus
	Species
	Subspecies
)

// RankCount is the number of ranks.
const RankCount = int(Subspecies) + 1

// NoRank marks an absent rank in fixed-size per-rank arrays.
const NoRank Rank = -1

var rankCodes = [RankCount]string{"kl", "or", "fa", "ge", "so", "oso"}

var rankNames = [RankCount]string{"class", "order", "family", "genus", "species", "subspecies"}

// Ranks returns all ranks, shallowest first.
func Ranks() []Rank {
	return []Rank{Class, Order, Family, Genus, Species, Subspecies}
}

// ParseRank accepts either the short store code ("ge") or the English name
// ("genus"), case-insensitively.
func ParseRank(s string) (Rank, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i := 0; i < RankCount; i++ {
		if key == rankCodes[i] || key == rankNames[i] {
			return Rank(i), nil
		}
	}
	return NoRank, fmt.Errorf("%w: %q", ErrUnknownRank, s)
}

// Valid reports whether r is one of the six ranks.
func (r Rank) Valid() bool { return r >= Class && r <= Subspecies }

// Code is the short code used in documents and the store.
func (r Rank) Code() string {
	if !r.Valid() {
		return ""
	}
	return rankCodes[r]
}

func (r Rank) String() string {
	if !r.Valid() {
		return fmt.Sprintf("rank(%d)", int(r))
	}
	return rankNames[r]
}

// Shallower reports whether r is an ancestor rank of o.
func (r Rank) Shallower(o Rank) bool { return r < o }

// Deeper reports whether r is a descendant rank of o.
func (r Rank) Deeper(o Rank) bool { return r > o }

func (r Rank) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRank, int(r))
	}
	return []byte(r.Code()), nil
}

func (r *Rank) UnmarshalText(b []byte) error {
	parsed, err := ParseRank(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
