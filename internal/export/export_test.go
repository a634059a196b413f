package export

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/taxa/internal/hierarchy"
	"github.com/agentic-research/taxa/internal/reconcile"
	"github.com/agentic-research/taxa/internal/store"
	"github.com/agentic-research/taxa/internal/taxon"
)

func assembled(t *testing.T) *taxon.Node {
	t.Helper()
	row := func(vals map[taxon.Rank]string, names map[string]string) hierarchy.Row {
		var r hierarchy.Row
		for rank, v := range vals {
			r.SetValue(rank, v)
		}
		r.Names = names
		return r
	}
	rows := []hierarchy.Row{
		row(map[taxon.Rank]string{taxon.Family: "Corvidae"}, map[string]string{"en": "Crows"}),
		row(map[taxon.Rank]string{taxon.Species: "Corvus corax"}, map[string]string{"en": "Common Raven", "nl": "Raaf"}),
		row(map[taxon.Rank]string{taxon.Subspecies: "Corvus corax varius"}, nil),
		row(map[taxon.Rank]string{taxon.Species: "Corvus corone"}, nil),
		row(map[taxon.Rank]string{taxon.Species: "Pica pica"}, nil),
	}
	root, err := hierarchy.NewAssembler(hierarchy.Options{Policy: hierarchy.PerRank}, nil).Assemble(rows)
	require.NoError(t, err)
	return root
}

func TestExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	tree := assembled(t)
	rep := reconcile.New(s, reconcile.Options{Mode: reconcile.Create}, nil).Reconcile(ctx, tree, taxon.Unresolved())
	require.False(t, rep.HasErrors())

	out, totals, err := Export(ctx, s, "Corvidae", Options{}, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(tree, out); diff != "" {
		t.Errorf("export differs from imported tree (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, totals[taxon.Species])
	assert.Equal(t, 2, totals[taxon.Genus])
}

func TestExportLimits(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.False(t, reconcile.New(s, reconcile.Options{Mode: reconcile.Create}, nil).
		Reconcile(ctx, assembled(t), taxon.Unresolved()).HasErrors())

	species := taxon.Species
	out, totals, err := Export(ctx, s, "Corvidae", Options{MaxRank: &species, Languages: []string{"nl"}}, nil)
	require.NoError(t, err)
	assert.Zero(t, totals[taxon.Subspecies])
	assert.Empty(t, out.Names)
	raven := out.Children[0].Children[0]
	assert.Equal(t, map[string]string{"nl": "Raaf"}, raven.Names)
	assert.Empty(t, raven.Children)

	genus := taxon.Genus
	out, totals, err = Export(ctx, s, "Corvidae", Options{MaxRank: &genus}, nil)
	require.NoError(t, err)
	assert.Zero(t, totals[taxon.Species])
	assert.Equal(t, 2, totals[taxon.Genus])
	require.Len(t, out.Children, 2)
	assert.Empty(t, out.Children[0].Children)

	_, _, err = Export(ctx, s, "Paridae", Options{}, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
