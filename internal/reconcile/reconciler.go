// Package reconcile diffs an assembled rank tree against the taxon store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentic-research/taxa/internal/store"
	"github.com/agentic-research/taxa/internal/taxon"
)

// Options configures a Reconciler.
type Options struct {
	Mode Mode
	// Renumber syncs sequence numbers from the input.
	Renumber bool
	// SkipSubspecies leaves missing subspecies uncreated.
	SkipSubspecies bool
	// Languages restricts which common names are compared. Empty compares
	// every language.
	Languages []string
	// ReportUnlisted reports store taxa below the tree root that the input
	// does not mention.
	ReportUnlisted bool
}

// Reconciler walks trees against a store. It is not safe for concurrent
// runs.
type Reconciler struct {
	store store.Store
	opts  Options
	langs map[string]bool
	log   *zap.Logger
}

func New(s store.Store, opts Options, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{store: s, opts: opts, log: logger.With(zap.String("component", "reconcile"))}
	if len(opts.Languages) > 0 {
		r.langs = make(map[string]bool, len(opts.Languages))
		for _, l := range opts.Languages {
			r.langs[strings.ToLower(l)] = true
		}
	}
	return r
}

// parentCtx is the resolved parent of the node being visited.
type parentCtx struct {
	ref   taxon.ParentRef
	rank  taxon.Rank
	latin string
}

type run struct {
	ctx     context.Context
	report  *Report
	visited *roaring64.Bitmap
}

// Reconcile walks tree depth-first. parent is the persisted parent of the
// tree root, Unresolved for a top-level taxon. Store failures become error
// findings; the walk always completes.
func (r *Reconciler) Reconcile(ctx context.Context, tree *taxon.Node, parent taxon.ParentRef) *Report {
	rn := &run{
		ctx: ctx,
		report: &Report{
			RunID:   uuid.NewString(),
			Mode:    r.opts.Mode,
			Root:    tree.Latin,
			Started: time.Now(),
		},
		visited: roaring64.New(),
	}
	log := r.log.With(zap.String("run", rn.report.RunID))
	log.Info("reconcile started",
		zap.String("root", tree.Latin),
		zap.String("mode", r.opts.Mode.String()),
		zap.Int("taxa", tree.Count()))

	pc := parentCtx{ref: parent, rank: taxon.NoRank}
	if pid, ok := parent.ID(); ok {
		rec, err := r.store.FindByID(ctx, pid)
		if err != nil {
			rn.fail(tree, 0, fmt.Errorf("parent #%d: %w", pid, err))
			rn.report.Finished = time.Now()
			return rn.report
		}
		pc.rank = rec.Rank
		pc.latin = rec.Latin
	}

	rootID := r.visit(rn, tree, pc)

	if r.opts.ReportUnlisted && rootID != 0 {
		r.reportUnlisted(rn, tree, rootID)
	}

	rn.report.Finished = time.Now()
	log.Info("reconcile finished",
		zap.Int("findings", len(rn.report.Findings)),
		zap.Int("created", rn.report.Count(KindCreated)),
		zap.Int("errors", rn.report.Count(KindError)),
		zap.Duration("took", rn.report.Finished.Sub(rn.report.Started)))
	return rn.report
}

func (rn *run) fail(n *taxon.Node, id int64, err error) {
	rn.report.add(Finding{Kind: KindError, Rank: n.Rank, Latin: n.Latin, ID: id, Err: err.Error()})
}

// visit reconciles n and its subtree and returns n's persisted id, or 0 when
// the node could not be resolved.
func (r *Reconciler) visit(rn *run, n *taxon.Node, parent parentCtx) int64 {
	ctx := rn.ctx
	totals := &rn.report.Totals.Ranks[n.Rank]
	totals.Seen++

	created := false
	rec, err := r.store.FindByName(ctx, n.Latin)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if r.opts.Mode == Validate {
			rn.report.add(Finding{Kind: KindMissing, Rank: n.Rank, Latin: n.Latin, After: parent.latin})
			return 0
		}
		if r.opts.SkipSubspecies && n.Rank == taxon.Subspecies {
			rn.report.add(Finding{Kind: KindSkipped, Rank: n.Rank, Latin: n.Latin})
			return 0
		}
		rec = &taxon.Record{Latin: n.Latin, Rank: n.Rank, Seq: n.Seq, Extinct: n.Extinct, Parent: parent.ref}
		id, err := r.store.Create(ctx, rec)
		if err != nil {
			rn.fail(n, 0, fmt.Errorf("create: %w", err))
			return 0
		}
		rec.ID = id
		created = true
		totals.Created++
		rn.report.add(Finding{Kind: KindCreated, Rank: n.Rank, Latin: n.Latin, ID: id, After: parent.latin, Applied: true})
	case err != nil:
		rn.fail(n, 0, fmt.Errorf("lookup: %w", err))
		return 0
	default:
		if !r.syncRecord(rn, n, rec, parent) {
			rn.visited.Add(uint64(rec.ID))
			return 0
		}
	}
	rn.visited.Add(uint64(rec.ID))

	r.syncNames(rn, n, rec.ID, created)

	child := parentCtx{ref: taxon.Known(rec.ID), rank: n.Rank, latin: n.Latin}
	for _, c := range n.Children {
		r.visit(rn, c, child)
	}
	return rec.ID
}

// syncRecord checks placement and fields of an existing record. It returns
// false when the subtree must not be descended.
func (r *Reconciler) syncRecord(rn *run, n *taxon.Node, rec *taxon.Record, parent parentCtx) bool {
	mode := r.opts.Mode
	totals := &rn.report.Totals.Ranks[n.Rank]

	if rec.Rank != n.Rank {
		rn.report.add(Finding{Kind: KindConflict, Rank: n.Rank, Latin: n.Latin, ID: rec.ID,
			Field: "rank", Before: rec.Rank.Code(), After: n.Rank.Code()})
		if mode == Validate {
			return false
		}
	}

	var changes []Finding
	placed, actual, err := r.placed(rn.ctx, rec, parent)
	if err != nil {
		rn.fail(n, rec.ID, fmt.Errorf("hierarchy check: %w", err))
		return false
	}
	if !placed {
		conflict := Finding{Kind: KindConflict, Rank: n.Rank, Latin: n.Latin, ID: rec.ID,
			Field: "parent", Before: actual, After: parent.latin}
		switch mode {
		case Validate:
			rn.report.add(conflict)
			return false
		case Create:
			rn.report.add(conflict)
		case FullSync:
			rec.Parent = parent.ref
			changes = append(changes, Finding{Kind: KindReparented, Rank: n.Rank, Latin: n.Latin, ID: rec.ID,
				Field: "parent", Before: actual, After: parent.latin})
		}
	}

	if mode != Validate {
		if r.opts.Renumber && rec.Seq != n.Seq {
			changes = append(changes, Finding{Kind: KindUpdated, Rank: n.Rank, Latin: n.Latin, ID: rec.ID,
				Field: "seq", Before: strconv.FormatInt(rec.Seq, 10), After: strconv.FormatInt(n.Seq, 10)})
			rec.Seq = n.Seq
		}
		if rec.Extinct != n.Extinct {
			changes = append(changes, Finding{Kind: KindUpdated, Rank: n.Rank, Latin: n.Latin, ID: rec.ID,
				Field: "extinct", Before: strconv.FormatBool(rec.Extinct), After: strconv.FormatBool(n.Extinct)})
			rec.Extinct = n.Extinct
		}
	}

	if len(changes) == 0 {
		return true
	}
	if err := r.store.Update(rn.ctx, rec); err != nil {
		rn.fail(n, rec.ID, fmt.Errorf("update: %w", err))
		return true
	}
	totals.Updated++
	for _, f := range changes {
		f.Applied = true
		rn.report.add(f)
	}
	return true
}

// placed walks rec's ancestors up to the parent's rank and reports whether
// the ancestor found there is the expected parent. actual names the
// ancestor that was found instead.
func (r *Reconciler) placed(ctx context.Context, rec *taxon.Record, parent parentCtx) (ok bool, actual string, err error) {
	pid, known := parent.ref.ID()
	if !known {
		return true, "", nil
	}
	if rec.Parent.Equal(parent.ref) {
		return true, "", nil
	}
	cur := rec
	for range taxon.RankCount {
		id, ok := cur.Parent.ID()
		if !ok {
			return false, "", nil
		}
		anc, err := r.store.FindByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return false, "", nil
		}
		if err != nil {
			return false, "", err
		}
		switch {
		case anc.Rank == parent.rank:
			return anc.ID == pid, anc.Latin, nil
		case anc.Rank < parent.rank:
			return false, anc.Latin, nil
		}
		cur = anc
	}
	return false, "", nil
}

func (r *Reconciler) accepts(lang string) bool {
	return r.langs == nil || r.langs[lang]
}

func (r *Reconciler) syncNames(rn *run, n *taxon.Node, id int64, created bool) {
	ctx := rn.ctx
	apply := r.opts.Mode != Validate

	stored := map[string]string{}
	if !created {
		var err error
		stored, err = r.store.Names(ctx, id)
		if err != nil {
			rn.fail(n, id, fmt.Errorf("names: %w", err))
			return
		}
	}

	langs := make([]string, 0, len(n.Names))
	for lang := range n.Names {
		if r.accepts(lang) {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)

	for _, lang := range langs {
		name := n.Names[lang]
		totals := rn.report.Totals.lang(lang)
		totals.Seen++
		old, exists := stored[lang]
		switch {
		case !exists:
			f := Finding{Kind: KindNewName, Rank: n.Rank, Latin: n.Latin, ID: id, Lang: lang, After: name}
			if apply {
				if err := r.store.CreateName(ctx, id, lang, name); err != nil {
					rn.fail(n, id, fmt.Errorf("create name %s: %w", lang, err))
					continue
				}
				f.Applied = true
				totals.Created++
			}
			rn.report.add(f)
		case old != name:
			f := Finding{Kind: KindNameChanged, Rank: n.Rank, Latin: n.Latin, ID: id, Lang: lang, Before: old, After: name}
			if apply {
				if err := r.store.UpdateName(ctx, id, lang, name); err != nil {
					rn.fail(n, id, fmt.Errorf("update name %s: %w", lang, err))
					continue
				}
				f.Applied = true
				totals.Updated++
			}
			rn.report.add(f)
		}
	}

	unlisted := make([]string, 0)
	for lang := range stored {
		if _, ok := n.Names[lang]; !ok && r.accepts(lang) {
			unlisted = append(unlisted, lang)
		}
	}
	sort.Strings(unlisted)
	for _, lang := range unlisted {
		rn.report.add(Finding{Kind: KindNameUnlisted, Rank: n.Rank, Latin: n.Latin, ID: id, Lang: lang, Before: stored[lang]})
	}
}

func (r *Reconciler) reportUnlisted(rn *run, root *taxon.Node, rootID int64) {
	err := store.Descendants(rn.ctx, r.store, rootID, func(rec *taxon.Record) error {
		if !rn.visited.Contains(uint64(rec.ID)) {
			rn.report.add(Finding{Kind: KindUnlisted, Rank: rec.Rank, Latin: rec.Latin, ID: rec.ID})
		}
		return nil
	})
	if err != nil {
		rn.report.add(Finding{Kind: KindError, Rank: root.Rank, Latin: root.Latin, ID: rootID, Err: fmt.Sprintf("unlisted scan: %v", err)})
	}
}
