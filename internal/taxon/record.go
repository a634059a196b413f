package taxon

import "fmt"

// ParentRef is the weak link from a persisted taxon to its parent. It is
// either a known record id or unresolved (a top-level taxon, or a parent the
// store has lost).
type ParentRef struct {
	id    int64
	known bool
}

// Known references the record with the given id.
func Known(id int64) ParentRef { return ParentRef{id: id, known: true} }

// Unresolved is the absent parent.
func Unresolved() ParentRef { return ParentRef{} }

// ID returns the referenced id and whether the reference is known.
func (p ParentRef) ID() (int64, bool) { return p.id, p.known }

func (p ParentRef) IsKnown() bool { return p.known }

func (p ParentRef) Equal(o ParentRef) bool {
	return p.known == o.known && (!p.known || p.id == o.id)
}

func (p ParentRef) String() string {
	if !p.known {
		return "unresolved"
	}
	return fmt.Sprintf("#%d", p.id)
}

// Record is a persisted taxon as exposed by a store. Common names are kept
// by the store separately and are not part of the record.
type Record struct {
	ID      int64
	Latin   string
	Rank    Rank
	Seq     int64
	Extinct bool
	Parent  ParentRef
}

// Clone returns a copy that can be modified without affecting r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func (r *Record) String() string {
	return fmt.Sprintf("%s %s (#%d)", r.Rank.Code(), r.Latin, r.ID)
}
