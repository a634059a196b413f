package hierarchy

import (
	"errors"

	"github.com/agentic-research/taxa/internal/taxon"
)

var (
	// ErrNoRoot is returned when there is nothing to merge.
	ErrNoRoot = errors.New("no root taxon")
	// ErrMultipleRoots is returned when the root rank holds more than one
	// taxon and no common root was configured.
	ErrMultipleRoots = errors.New("multiple top-level taxa")
)

// Level is the merge state of one rank: the node still receiving children
// and the siblings already closed at this rank, waiting for a parent.
type Level struct {
	Open   *taxon.Node
	Closed []*taxon.Node
}

// Levels holds one Level per rank, indexed by taxon.Rank.
type Levels [taxon.RankCount]Level

// Push closes the open node at n's rank and everything below it, then opens
// n in its place.
func (l *Levels) Push(n *taxon.Node) {
	l.Close(n.Rank)
	l[n.Rank].Open = n
}

// Close folds every rank deeper than r into r and moves r's open node to
// its closed siblings.
func (l *Levels) Close(r taxon.Rank) {
	l.collapse(r)
	if lv := &l[r]; lv.Open != nil {
		lv.Closed = append(lv.Closed, lv.Open)
		lv.Open = nil
	}
}

// collapse moves the content of all ranks deeper than root into root's
// level. A rank with an open node adopts the nearest deeper closed list as
// its children; a rank without one passes that list up to the next
// shallower rank, so absent intermediate ranks are skipped. The deepest
// populated rank is never merged into anything deeper.
func (l *Levels) collapse(root taxon.Rank) {
	last := taxon.NoRank
	for r := taxon.Subspecies; r > root; r-- {
		lv := &l[r]
		if lv.Open != nil {
			if last != taxon.NoRank {
				lv.Open.Children = append(lv.Open.Children, l[last].Closed...)
				l[last].Closed = nil
			}
			lv.Closed = append(lv.Closed, lv.Open)
			lv.Open = nil
			last = r
			continue
		}
		if len(lv.Closed) == 0 {
			continue
		}
		if last != taxon.NoRank {
			lv.Closed = append(lv.Closed, l[last].Closed...)
			l[last].Closed = nil
		}
		last = r
	}
	if last == taxon.NoRank {
		return
	}
	top := &l[root]
	if top.Open != nil {
		top.Open.Children = append(top.Open.Children, l[last].Closed...)
	} else {
		top.Closed = append(top.Closed, l[last].Closed...)
	}
	l[last].Closed = nil
}

// Merge folds the fragment levels into a single tree rooted at rootRank.
// The root is rootRank's open node, or its only closed node when nothing is
// open there. Levels shallower than rootRank are ignored.
func Merge(rootRank taxon.Rank, levels *Levels) (*taxon.Node, error) {
	levels.collapse(rootRank)
	top := &levels[rootRank]
	switch {
	case top.Open != nil && len(top.Closed) == 0:
		return top.Open, nil
	case top.Open == nil && len(top.Closed) == 1:
		return top.Closed[0], nil
	case top.Open == nil && len(top.Closed) == 0:
		return nil, ErrNoRoot
	default:
		return nil, ErrMultipleRoots
	}
}

// MergeFlat rebuilds a tree from nodes listed in pre-order, as a flat export
// ordered by rank path would list them. Children already attached to the
// input nodes are kept.
func MergeFlat(nodes []*taxon.Node) (*taxon.Node, error) {
	var levels Levels
	root := taxon.NoRank
	for _, n := range nodes {
		if !n.Rank.Valid() {
			return nil, taxon.ErrUnknownRank
		}
		if root == taxon.NoRank || n.Rank < root {
			root = n.Rank
		}
		levels.Push(n)
	}
	if root == taxon.NoRank {
		return nil, ErrNoRoot
	}
	return Merge(root, &levels)
}
