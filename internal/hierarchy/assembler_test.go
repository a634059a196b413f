package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/taxa/internal/taxon"
)

// row builds a row from order, family, genus and species columns.
func row(order, family, genus, species string, names map[string]string) Row {
	var r Row
	r.Values[taxon.Order] = order
	r.Values[taxon.Family] = family
	r.Values[taxon.Genus] = genus
	r.Values[taxon.Species] = species
	r.Names = names
	return r
}

func TestAssembleRavenScenario(t *testing.T) {
	rows := []Row{
		row("Passeriformes", "", "", "", nil),
		row("", "Corvidae", "", "", nil),
		row("", "", "Corvus", "corax", map[string]string{"en": "Common Raven"}),
	}

	root, err := NewAssembler(Options{}, nil).Assemble(rows)
	require.NoError(t, err)

	assert.Equal(t, taxon.Order, root.Rank)
	assert.Equal(t, "Passeriformes", root.Latin)
	require.Len(t, root.Children, 1)
	family := root.Children[0]
	assert.Equal(t, "Corvidae", family.Latin)
	require.Len(t, family.Children, 1)
	genus := family.Children[0]
	assert.Equal(t, taxon.Genus, genus.Rank)
	assert.Equal(t, "Corvus", genus.Latin)
	require.Len(t, genus.Children, 1)
	species := genus.Children[0]
	assert.Equal(t, taxon.Species, species.Rank)
	assert.Equal(t, "Corvus corax", species.Latin)
	assert.Equal(t, map[string]string{"en": "Common Raven"}, species.Names)
	assert.Empty(t, species.Children)
}

func TestAssembleCountAndNesting(t *testing.T) {
	rows := []Row{
		row("Passeriformes", "Corvidae", "Corvus", "corax", nil),
		row("", "", "", "corone", nil),
		row("", "", "Pica", "pica", nil),
		row("", "Paridae", "Parus", "major", nil),
		row("", "", "", "Parus minor", nil),
	}
	root, err := NewAssembler(Options{}, nil).Assemble(rows)
	require.NoError(t, err)

	// 1 order, 2 families, 3 genera, 5 species.
	assert.Equal(t, 11, root.Count())
	counts := root.CountByRank()
	assert.Equal(t, [taxon.RankCount]int{0, 1, 2, 3, 5, 0}, counts)

	err = root.Walk(func(n *taxon.Node, _ int) error {
		for _, c := range n.Children {
			assert.True(t, c.Rank.Deeper(n.Rank), "%s under %s", c.Latin, n.Latin)
		}
		return nil
	})
	require.NoError(t, err)

	corvidae := root.Children[0]
	require.Len(t, corvidae.Children, 2)
	assert.Equal(t, []string{"Corvus corax", "Corvus corone"}, latins(corvidae.Children[0].Children))
	assert.Equal(t, []string{"Parus major", "Parus minor"}, latins(root.Children[1].Children[0].Children))
}

func TestAssembleSynthesizesGenus(t *testing.T) {
	rows := []Row{
		row("Passeriformes", "", "", "", nil),
		row("", "Corvidae", "", "", nil),
		row("", "", "", "Corvus corax", nil),
		row("", "", "", "Corvus corone", nil),
		row("", "", "", "Pica pica", nil),
	}
	root, err := NewAssembler(Options{}, nil).Assemble(rows)
	require.NoError(t, err)

	family := root.Children[0]
	assert.Equal(t, []string{"Corvus", "Pica"}, latins(family.Children))
	assert.Equal(t, []string{"Corvus corax", "Corvus corone"}, latins(family.Children[0].Children))
	assert.Equal(t, []string{"Pica pica"}, latins(family.Children[1].Children))
}

func TestAssembleSynthesizesSpeciesForSubspecies(t *testing.T) {
	var r Row
	r.Values[taxon.Genus] = "Corvus"
	sub := Row{}
	sub.Values[taxon.Subspecies] = "Corvus corax varius"

	root, err := NewAssembler(Options{}, nil).Assemble([]Row{r, sub})
	require.NoError(t, err)
	assert.Equal(t, "Corvus", root.Latin)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "Corvus corax", root.Children[0].Latin)
	assert.Equal(t, taxon.Species, root.Children[0].Rank)
	assert.Equal(t, []string{"Corvus corax varius"}, latins(root.Children[0].Children))
}

func TestAssembleSequencePolicies(t *testing.T) {
	rows := []Row{
		row("Passeriformes", "Corvidae", "", "", nil),
		row("", "", "Corvus", "corax", nil),
		row("", "", "", "corone", nil),
	}

	t.Run("sequential", func(t *testing.T) {
		root, err := NewAssembler(Options{Policy: Sequential}, nil).Assemble(rows)
		require.NoError(t, err)
		genus := root.Children[0].Children[0]
		assert.Equal(t, int64(1), root.Seq)
		assert.Equal(t, int64(1), root.Children[0].Seq)
		assert.Equal(t, int64(2), genus.Seq)
		assert.Equal(t, int64(2), genus.Children[0].Seq)
		assert.Equal(t, int64(3), genus.Children[1].Seq)
	})

	t.Run("per-rank with factor", func(t *testing.T) {
		opts := Options{Policy: PerRank, Factor: 1000, Baseline: 3}
		root, err := NewAssembler(opts, nil).Assemble(rows)
		require.NoError(t, err)
		genus := root.Children[0].Children[0]
		assert.Equal(t, int64(3001), root.Seq)
		assert.Equal(t, int64(3001), genus.Seq)
		assert.Equal(t, int64(3001), genus.Children[0].Seq)
		assert.Equal(t, int64(3002), genus.Children[1].Seq)
	})
}

func TestAssembleChangeDetection(t *testing.T) {
	rows := []Row{
		row("Passeriformes", "Corvidae", "Corvus", "corax", nil),
		row("Passeriformes", "Corvidae", "Corvus", "corone", nil),
	}

	t.Run("marker based splits repeats", func(t *testing.T) {
		root, err := NewAssembler(Options{}, nil).Assemble(rows)
		require.ErrorIs(t, err, ErrMultipleRoots)
		assert.Nil(t, root)
	})

	t.Run("equality based merges repeats", func(t *testing.T) {
		root, err := NewAssembler(Options{Detection: EqualityBased}, nil).Assemble(rows)
		require.NoError(t, err)
		assert.Equal(t, 5, root.Count())
	})
}

func TestAssembleRoot(t *testing.T) {
	aves := taxon.NewNode(taxon.Class, "Aves")
	aves.Seq = 7
	rows := []Row{
		row("Passeriformes", "", "", "", nil),
		row("Strigiformes", "", "", "", nil),
	}
	root, err := NewAssembler(Options{Root: aves}, nil).Assemble(rows)
	require.NoError(t, err)
	assert.NotSame(t, aves, root)
	assert.Equal(t, "Aves", root.Latin)
	assert.Equal(t, int64(7), root.Seq)
	assert.Equal(t, []string{"Passeriformes", "Strigiformes"}, latins(root.Children))
	assert.Empty(t, aves.Children)

	var bad Row
	bad.Values[taxon.Class] = "Mammalia"
	_, err = NewAssembler(Options{Root: taxon.NewNode(taxon.Class, "Aves")}, nil).Assemble([]Row{bad})
	assert.ErrorIs(t, err, ErrRankOrder)
}

func TestAssembleReusesRootAcrossRuns(t *testing.T) {
	aves := taxon.NewNode(taxon.Class, "Aves")
	aves.SetName("nl", "Vogels")
	a := NewAssembler(Options{Root: aves}, nil)

	first, err := a.Assemble([]Row{row("Passeriformes", "", "", "", nil)})
	require.NoError(t, err)
	second, err := a.Assemble([]Row{row("Struthioniformes", "", "", "", nil)})
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"Passeriformes"}, latins(first.Children))
	assert.Equal(t, []string{"Struthioniformes"}, latins(second.Children))
	assert.Equal(t, "Vogels", second.Names["nl"])

	second.SetName("en", "Birds")
	assert.NotContains(t, first.Names, "en")
	assert.NotContains(t, aves.Names, "en")
}

func TestAssembleNamesAndLanguages(t *testing.T) {
	rows := []Row{
		row("Passeriformes", "", "", "", map[string]string{"nl": "Zangvogels"}),
		row("", "", "", "", map[string]string{"en": "Perching birds", "xx": "ignored"}),
	}
	opts := Options{Languages: []string{"en", "NL"}}
	root, err := NewAssembler(opts, nil).Assemble(rows)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"nl": "Zangvogels", "en": "Perching birds"}, root.Names)
}

func TestAssembleMalformed(t *testing.T) {
	t.Run("empty row", func(t *testing.T) {
		rows := []Row{row("Passeriformes", "", "", "", nil), {Line: 2}}
		_, err := NewAssembler(Options{}, nil).Assemble(rows)
		require.ErrorIs(t, err, ErrEmptyRow)
		var rowErr *RowError
		require.ErrorAs(t, err, &rowErr)
		assert.Equal(t, 2, rowErr.Line)
	})

	t.Run("names before any taxon", func(t *testing.T) {
		_, err := NewAssembler(Options{}, nil).Assemble([]Row{row("", "", "", "", map[string]string{"en": "x"})})
		assert.ErrorIs(t, err, ErrEmptyRow)
	})

	t.Run("bare epithet", func(t *testing.T) {
		_, err := NewAssembler(Options{}, nil).Assemble([]Row{row("", "Corvidae", "", "corax", nil)})
		assert.ErrorIs(t, err, ErrOrphanEpithet)
	})

	t.Run("no input", func(t *testing.T) {
		_, err := NewAssembler(Options{}, nil).Assemble(nil)
		assert.ErrorIs(t, err, ErrNoRoot)
	})
}

func TestAssembleExtinct(t *testing.T) {
	r := row("", "", "Raphus", "cucullatus", nil)
	r.Extinct = true
	root, err := NewAssembler(Options{}, nil).Assemble([]Row{r})
	require.NoError(t, err)
	assert.False(t, root.Extinct)
	assert.True(t, root.Children[0].Extinct)
}

func latins(nodes []*taxon.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Latin
	}
	return out
}
