// Package rename rewrites a scientific name across a taxon and its
// name-prefixed descendants.
package rename

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentic-research/taxa/api"
	"github.com/agentic-research/taxa/internal/store"
	"github.com/agentic-research/taxa/internal/taxon"
)

// Outcome classifies one step of a rename.
type Outcome string

const (
	Renamed           Outcome = "renamed"
	DescendantRenamed Outcome = "descendant-renamed"
	ParentCreated     Outcome = "parent-created"
	Reparented        Outcome = "reparented"
	NotFound          Outcome = "not-found"
	Collision         Outcome = "collision"
	Unchanged         Outcome = "unchanged"
	Failed            Outcome = "error"
)

// Step is one applied change or reported problem.
type Step struct {
	Outcome Outcome    `json:"outcome" yaml:"outcome"`
	Rank    taxon.Rank `json:"rank" yaml:"rank"`
	ID      int64      `json:"id,omitempty" yaml:"id,omitempty"`
	Before  string     `json:"before,omitempty" yaml:"before,omitempty"`
	After   string     `json:"after,omitempty" yaml:"after,omitempty"`
	Err     string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result collects the steps of one (old, new) pair.
type Result struct {
	Old   string `json:"old" yaml:"old"`
	New   string `json:"new" yaml:"new"`
	Steps []Step `json:"steps" yaml:"steps"`
	// Done is false when the pair was aborted.
	Done bool `json:"done" yaml:"done"`
}

func (r *Result) add(s Step) { r.Steps = append(r.Steps, s) }

// Count returns the number of steps with outcome o.
func (r *Result) Count(o Outcome) int {
	n := 0
	for _, s := range r.Steps {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// Report is the result of a batch.
type Report struct {
	RunID   string    `json:"run_id" yaml:"run_id"`
	Results []*Result `json:"results" yaml:"results"`
}

// Count sums Result.Count over the batch.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		n += res.Count(o)
	}
	return n
}

// Propagator applies renames to a store, one pair at a time.
type Propagator struct {
	store store.Store
	log   *zap.Logger
}

func New(s store.Store, logger *zap.Logger) *Propagator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Propagator{store: s, log: logger.With(zap.String("component", "rename"))}
}

// Batch applies pairs in order. A failed pair never stops the batch.
func (p *Propagator) Batch(ctx context.Context, pairs []api.RenamePair) *Report {
	rep := &Report{RunID: uuid.NewString()}
	start := time.Now()
	for _, pair := range pairs {
		rep.Results = append(rep.Results, p.Rename(ctx, pair.Old, pair.New))
	}
	p.log.Info("rename batch finished",
		zap.String("run", rep.RunID),
		zap.Int("pairs", len(pairs)),
		zap.Int("renamed", rep.Count(Renamed)),
		zap.Int("descendants", rep.Count(DescendantRenamed)),
		zap.Duration("took", time.Since(start)))
	return rep
}

// Rename renames oldName to newName, then every descendant whose name starts
// with oldName followed by a space. Renaming a species or subspecies into
// another genus or species moves it under that parent, creating the parent
// if needed. Changes already made stay when a later step fails.
func (p *Propagator) Rename(ctx context.Context, oldName, newName string) *Result {
	oldName = strings.Join(strings.Fields(oldName), " ")
	newName = strings.Join(strings.Fields(newName), " ")
	res := &Result{Old: oldName, New: newName}

	rec, err := p.store.FindByName(ctx, oldName)
	if errors.Is(err, store.ErrNotFound) {
		res.add(Step{Outcome: NotFound, Before: oldName})
		return res
	}
	if err != nil {
		res.add(Step{Outcome: Failed, Before: oldName, Err: err.Error()})
		return res
	}
	if oldName == newName || newName == "" {
		res.add(Step{Outcome: Unchanged, Rank: rec.Rank, ID: rec.ID, Before: oldName})
		res.Done = true
		return res
	}

	if existing, err := p.store.FindByName(ctx, newName); err == nil && existing.ID != rec.ID {
		res.add(Step{Outcome: Collision, Rank: existing.Rank, ID: existing.ID, Before: oldName, After: newName})
		return res
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		res.add(Step{Outcome: Failed, Rank: rec.Rank, ID: rec.ID, Before: oldName, Err: err.Error()})
		return res
	}

	rec.Latin = newName
	if err := p.store.Update(ctx, rec); err != nil {
		res.add(Step{Outcome: Failed, Rank: rec.Rank, ID: rec.ID, Before: oldName, After: newName, Err: err.Error()})
		return res
	}
	res.add(Step{Outcome: Renamed, Rank: rec.Rank, ID: rec.ID, Before: oldName, After: newName})

	if err := p.renameDescendants(ctx, res, rec.ID, oldName, newName); err != nil {
		res.add(Step{Outcome: Failed, Rank: rec.Rank, ID: rec.ID, Before: oldName, After: newName, Err: err.Error()})
		return res
	}

	if rec.Rank == taxon.Species || rec.Rank == taxon.Subspecies {
		if err := p.moveToParent(ctx, res, rec, oldName, newName); err != nil {
			res.add(Step{Outcome: Failed, Rank: rec.Rank, ID: rec.ID, Before: oldName, After: newName, Err: err.Error()})
			return res
		}
	}

	res.Done = true
	p.log.Debug("renamed",
		zap.String("old", oldName),
		zap.String("new", newName),
		zap.Int("descendants", res.Count(DescendantRenamed)))
	return res
}

// renameDescendants follows parent links from id. Only children carrying
// the old name as prefix are renamed and descended into.
func (p *Propagator) renameDescendants(ctx context.Context, res *Result, id int64, oldName, newName string) error {
	children, err := p.store.FindChildren(ctx, id)
	if err != nil {
		return fmt.Errorf("children of #%d: %w", id, err)
	}
	prefix := oldName + " "
	for _, c := range children {
		if !strings.HasPrefix(c.Latin, prefix) {
			continue
		}
		before := c.Latin
		after := newName + before[len(oldName):]
		if existing, err := p.store.FindByName(ctx, after); err == nil && existing.ID != c.ID {
			res.add(Step{Outcome: Collision, Rank: c.Rank, ID: existing.ID, Before: before, After: after})
			continue
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		c.Latin = after
		if err := p.store.Update(ctx, c); err != nil {
			return fmt.Errorf("rename %s: %w", before, err)
		}
		res.add(Step{Outcome: DescendantRenamed, Rank: c.Rank, ID: c.ID, Before: before, After: after})
		if err := p.renameDescendants(ctx, res, c.ID, oldName, newName); err != nil {
			return err
		}
	}
	return nil
}

// moveToParent attaches a renamed species or subspecies to the taxon named
// by its new name minus the last word.
func (p *Propagator) moveToParent(ctx context.Context, res *Result, rec *taxon.Record, oldName, newName string) error {
	oldParent := taxon.ParentName(oldName)
	newParent := taxon.ParentName(newName)
	if newParent == "" || newParent == oldParent {
		return nil
	}

	parent, err := p.store.FindByName(ctx, newParent)
	if errors.Is(err, store.ErrNotFound) {
		parent, err = p.createParent(ctx, res, rec, oldParent, newParent)
	}
	if err != nil {
		return err
	}
	if rec.Parent.Equal(taxon.Known(parent.ID)) {
		return nil
	}

	before := rec.Parent.String()
	if pid, ok := rec.Parent.ID(); ok {
		if old, err := p.store.FindByID(ctx, pid); err == nil {
			before = old.Latin
		}
	}
	rec.Parent = taxon.Known(parent.ID)
	if err := p.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("reparent %s: %w", rec.Latin, err)
	}
	res.add(Step{Outcome: Reparented, Rank: rec.Rank, ID: rec.ID, Before: before, After: parent.Latin})
	return nil
}

// createParent synthesizes the new parent with the rank and parent link of
// the old one.
func (p *Propagator) createParent(ctx context.Context, res *Result, rec *taxon.Record, oldParent, newParent string) (*taxon.Record, error) {
	template, err := p.store.FindByName(ctx, oldParent)
	if errors.Is(err, store.ErrNotFound) {
		if pid, ok := rec.Parent.ID(); ok {
			template, err = p.store.FindByID(ctx, pid)
		}
	}
	created := &taxon.Record{Latin: newParent, Rank: rec.Rank - 1}
	switch {
	case err == nil && template != nil:
		created.Rank = template.Rank
		created.Parent = template.Parent
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	id, err := p.store.Create(ctx, created)
	if err != nil {
		return nil, fmt.Errorf("create parent %s: %w", newParent, err)
	}
	created.ID = id
	res.add(Step{Outcome: ParentCreated, Rank: created.Rank, ID: id, After: newParent})
	return created, nil
}
