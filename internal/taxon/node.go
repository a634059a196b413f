package taxon

// Node is one taxon of an in-memory rank tree. A node exclusively owns its
// children; there are no parent pointers.
type Node struct {
	Latin    string
	Rank     Rank
	Seq      int64
	Extinct  bool
	Names    map[string]string // language code -> common name
	Children []*Node
}

// NewNode returns a node with an initialized name map.
func NewNode(rank Rank, latin string) *Node {
	return &Node{Rank: rank, Latin: latin, Names: map[string]string{}}
}

// SetName records the common name for a language. Empty names are ignored.
func (n *Node) SetName(lang, name string) {
	if lang == "" || name == "" {
		return
	}
	if n.Names == nil {
		n.Names = map[string]string{}
	}
	n.Names[lang] = name
}

// Walk visits n and its descendants in pre-order. Returning an error from fn
// stops the walk.
func (n *Node) Walk(fn func(n *Node, depth int) error) error {
	return n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int) error, depth int) error {
	if err := fn(n, depth); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := c.walk(fn, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	total := 0
	_ = n.Walk(func(*Node, int) error {
		total++
		return nil
	})
	return total
}

// CountByRank returns subtree node counts indexed by rank.
func (n *Node) CountByRank() [RankCount]int {
	var out [RankCount]int
	_ = n.Walk(func(c *Node, _ int) error {
		if c.Rank.Valid() {
			out[c.Rank]++
		}
		return nil
	})
	return out
}
