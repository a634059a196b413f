package hierarchy

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agentic-research/taxa/internal/taxon"
)

var (
	// ErrEmptyRow is returned for a row with no rank value and no name data
	// to attach.
	ErrEmptyRow = errors.New("row has no rank value")
	// ErrRankOrder is returned for a rank value at or above the configured
	// root rank.
	ErrRankOrder = errors.New("rank not below root")
	// ErrOrphanEpithet is returned for a bare epithet with no open parent to
	// complete it.
	ErrOrphanEpithet = errors.New("epithet without parent name")
)

// RowError locates malformed input.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return e.Err.Error()
}

func (e *RowError) Unwrap() error { return e.Err }

// Row is one record of flat input. An empty value means the node open at
// that rank continues; a non-empty value starts a new node.
type Row struct {
	Line    int
	Values  [taxon.RankCount]string
	Names   map[string]string
	Extinct bool
}

// SetValue sets the column for rank r.
func (r *Row) SetValue(rank taxon.Rank, v string) { r.Values[rank] = v }

// SequencePolicy selects how sequence numbers are handed out.
type SequencePolicy int

const (
	// Sequential uses one counter for all ranks, advanced once per row that
	// opens a node.
	Sequential SequencePolicy = iota
	// PerRank keeps an independent counter for each rank.
	PerRank
)

// ParseSequencePolicy accepts "sequential" and "per-rank".
func ParseSequencePolicy(s string) (SequencePolicy, error) {
	switch strings.ToLower(s) {
	case "", "sequential":
		return Sequential, nil
	case "per-rank", "perrank", "rank":
		return PerRank, nil
	}
	return Sequential, fmt.Errorf("unknown sequence policy %q", s)
}

func (p SequencePolicy) String() string {
	if p == PerRank {
		return "per-rank"
	}
	return "sequential"
}

// ChangeDetection selects what starts a new node.
type ChangeDetection int

const (
	// MarkerBased opens a node for every non-empty value.
	MarkerBased ChangeDetection = iota
	// EqualityBased treats a value equal to the open node's name as no
	// change. Legacy behaviour for inputs that repeat every column.
	EqualityBased
)

// Options configures an Assembler.
type Options struct {
	Policy    SequencePolicy
	Factor    int64
	Baseline  int64
	Detection ChangeDetection
	// Languages restricts accepted common-name languages. Empty accepts all.
	Languages []string
	// Root, when set, is pre-opened and every row must lie below its rank.
	Root *taxon.Node
}

// AssemblerState is the complete mutable state of one assembly run.
type AssemblerState struct {
	levels    Levels
	root      taxon.Rank
	fixedRoot bool
	counter   int64
	perRank   [taxon.RankCount]int64
	rowOpened bool
	rows      int
}

// Rows is the number of rows fed so far.
func (s *AssemblerState) Rows() int { return s.rows }

func (s *AssemblerState) innermost() *taxon.Node {
	for r := taxon.Subspecies; r >= taxon.Class; r-- {
		if n := s.levels[r].Open; n != nil {
			return n
		}
	}
	return nil
}

// Assembler turns flat rank rows into a nested tree.
type Assembler struct {
	opts  Options
	langs map[string]bool
	log   *zap.Logger
}

func NewAssembler(opts Options, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assembler{opts: opts, log: logger.With(zap.String("component", "assembler"))}
	if len(opts.Languages) > 0 {
		a.langs = make(map[string]bool, len(opts.Languages))
		for _, l := range opts.Languages {
			a.langs[strings.ToLower(l)] = true
		}
	}
	return a
}

// Assemble runs a complete assembly over rows.
func (a *Assembler) Assemble(rows []Row) (*taxon.Node, error) {
	st := a.Begin()
	for _, row := range rows {
		if err := a.Feed(st, row); err != nil {
			return nil, err
		}
	}
	return a.Finish(st)
}

// Begin starts a new run.
func (a *Assembler) Begin() *AssemblerState {
	st := &AssemblerState{root: taxon.NoRank}
	if a.opts.Root != nil {
		st.root = a.opts.Root.Rank
		st.fixedRoot = true
		st.levels[st.root].Open = openRoot(a.opts.Root)
	}
	return st
}

// openRoot copies the configured root so each run owns its tree.
func openRoot(root *taxon.Node) *taxon.Node {
	n := taxon.NewNode(root.Rank, root.Latin)
	n.Seq = root.Seq
	n.Extinct = root.Extinct
	for lang, name := range root.Names {
		n.SetName(lang, name)
	}
	return n
}

// Feed applies one row.
func (a *Assembler) Feed(st *AssemblerState, row Row) error {
	st.rows++
	st.rowOpened = false
	deepest := taxon.NoRank
	for _, r := range taxon.Ranks() {
		v := strings.TrimSpace(row.Values[r])
		if v == "" {
			continue
		}
		if st.fixedRoot && r <= st.root {
			return &RowError{Line: row.Line, Err: fmt.Errorf("%w: %s %q", ErrRankOrder, r, v)}
		}
		if err := a.open(st, r, v, &row, false); err != nil {
			return &RowError{Line: row.Line, Err: err}
		}
		deepest = r
	}

	var target *taxon.Node
	if deepest != taxon.NoRank {
		target = st.levels[deepest].Open
	} else {
		if len(row.Names) == 0 && !row.Extinct {
			return &RowError{Line: row.Line, Err: ErrEmptyRow}
		}
		target = st.innermost()
		if target == nil {
			return &RowError{Line: row.Line, Err: ErrEmptyRow}
		}
	}
	if row.Extinct {
		target.Extinct = true
	}
	for lang, name := range row.Names {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if a.langs != nil && !a.langs[lang] {
			continue
		}
		target.SetName(lang, strings.TrimSpace(name))
	}
	return nil
}

// open starts a node at rank r unless equality detection finds it already
// open. Species and subspecies rows with a blank parent column synthesize
// the parent from their own name when it is not the one currently open.
func (a *Assembler) open(st *AssemblerState, r taxon.Rank, value string, row *Row, synthesized bool) error {
	parentLatin := ""
	if r >= taxon.Species {
		if p := st.levels[r-1].Open; p != nil {
			parentLatin = p.Latin
		}
	}
	latin := taxon.ComposeLatin(r, value, parentLatin)
	if r >= taxon.Species && !strings.Contains(latin, " ") {
		return fmt.Errorf("%w: %s %q", ErrOrphanEpithet, r, value)
	}

	if r >= taxon.Species && strings.TrimSpace(row.Values[r-1]) == "" {
		anc := r - 1
		derived, err := taxon.DeriveAncestorName(latin, anc)
		if err != nil {
			return err
		}
		if cur := st.levels[anc].Open; cur == nil || cur.Latin != derived {
			if st.fixedRoot && anc <= st.root {
				return fmt.Errorf("%w: implied %s %q", ErrRankOrder, anc, derived)
			}
			a.log.Debug("synthesizing ancestor",
				zap.String("rank", anc.String()),
				zap.String("latin", derived),
				zap.String("from", latin))
			if err := a.open(st, anc, derived, row, true); err != nil {
				return err
			}
		}
	}

	if a.opts.Detection == EqualityBased && !synthesized {
		if cur := st.levels[r].Open; cur != nil && cur.Latin == latin {
			return nil
		}
	}

	n := taxon.NewNode(r, latin)
	n.Seq = a.nextSeq(st, r)
	st.levels.Push(n)
	if st.root == taxon.NoRank || r < st.root {
		st.root = r
	}
	return nil
}

func (a *Assembler) nextSeq(st *AssemblerState, r taxon.Rank) int64 {
	base := a.opts.Factor * a.opts.Baseline
	if a.opts.Policy == PerRank {
		st.perRank[r]++
		return base + st.perRank[r]
	}
	if !st.rowOpened {
		st.counter++
		st.rowOpened = true
	}
	return base + st.counter
}

// Finish closes every open rank and returns the root.
func (a *Assembler) Finish(st *AssemblerState) (*taxon.Node, error) {
	if st.root == taxon.NoRank {
		return nil, ErrNoRoot
	}
	root, err := Merge(st.root, &st.levels)
	if err != nil {
		return nil, err
	}
	a.log.Debug("assembled tree",
		zap.String("root", root.Latin),
		zap.Int("rows", st.rows),
		zap.Int("nodes", root.Count()))
	return root, nil
}
