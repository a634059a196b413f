// Package export rebuilds a rank tree from the store.
package export

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agentic-research/taxa/internal/store"
	"github.com/agentic-research/taxa/internal/taxon"
)

// Options limits an export.
type Options struct {
	// MaxRank is the deepest rank exported. Nil exports everything.
	MaxRank *taxon.Rank
	// Languages restricts exported common names. Empty exports all.
	Languages []string
}

// Totals counts exported taxa per rank.
type Totals [taxon.RankCount]int

// Export reads the subtree rooted at the taxon named rootLatin.
func Export(ctx context.Context, s store.Store, rootLatin string, opts Options, logger *zap.Logger) (*taxon.Node, *Totals, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rec, err := s.FindByName(ctx, rootLatin)
	if err != nil {
		return nil, nil, fmt.Errorf("root %s: %w", rootLatin, err)
	}
	ex := &exporter{store: s, opts: opts, totals: &Totals{}}
	if len(opts.Languages) > 0 {
		ex.langs = map[string]bool{}
		for _, l := range opts.Languages {
			ex.langs[l] = true
		}
	}
	root, err := ex.node(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("exported tree",
		zap.String("component", "export"),
		zap.String("root", rootLatin),
		zap.Int("taxa", root.Count()))
	return root, ex.totals, nil
}

type exporter struct {
	store  store.Store
	opts   Options
	langs  map[string]bool
	totals *Totals
}

func (ex *exporter) node(ctx context.Context, rec *taxon.Record) (*taxon.Node, error) {
	n := taxon.NewNode(rec.Rank, rec.Latin)
	n.Seq = rec.Seq
	n.Extinct = rec.Extinct
	ex.totals[rec.Rank]++

	names, err := ex.store.Names(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("names of %s: %w", rec.Latin, err)
	}
	for lang, name := range names {
		if ex.langs == nil || ex.langs[lang] {
			n.SetName(lang, name)
		}
	}

	children, err := ex.store.FindChildren(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", rec.Latin, err)
	}
	for _, c := range children {
		if ex.opts.MaxRank != nil && c.Rank > *ex.opts.MaxRank {
			continue
		}
		child, err := ex.node(ctx, c)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}
