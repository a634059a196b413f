package taxon

import (
	"errors"
	"fmt"

	"github.com/agentic-research/taxa/api"
)

// ToDocument converts a tree to its serialized form.
func ToDocument(n *Node) api.Taxon {
	doc := api.Taxon{
		Rank:    n.Rank.Code(),
		Latin:   n.Latin,
		Seq:     n.Seq,
		Extinct: n.Extinct,
	}
	if len(n.Names) > 0 {
		doc.Names = make(map[string]string, len(n.Names))
		for k, v := range n.Names {
			doc.Names[k] = v
		}
	}
	for _, c := range n.Children {
		doc.Children = append(doc.Children, ToDocument(c))
	}
	return doc
}

// FromDocument rebuilds a tree from its serialized form. Every child must be
// of a strictly deeper rank than its parent.
func FromDocument(doc api.Taxon) (*Node, error) {
	return fromDocument(doc, NoRank)
}

func fromDocument(doc api.Taxon, parent Rank) (*Node, error) {
	rank, err := ParseRank(doc.Rank)
	if err != nil {
		return nil, fmt.Errorf("taxon %q: %w", doc.Latin, err)
	}
	if doc.Latin == "" {
		return nil, errors.New("taxon without scientific name")
	}
	if parent != NoRank && !rank.Deeper(parent) {
		return nil, fmt.Errorf("taxon %q: rank %s not below %s", doc.Latin, rank, parent)
	}
	n := NewNode(rank, doc.Latin)
	n.Seq = doc.Seq
	n.Extinct = doc.Extinct
	for k, v := range doc.Names {
		n.SetName(k, v)
	}
	for _, c := range doc.Children {
		child, err := fromDocument(c, rank)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}
