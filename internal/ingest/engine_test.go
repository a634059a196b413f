package ingest

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/agentic-research/taxa/internal/hierarchy"
	"github.com/agentic-research/taxa/internal/taxon"
)

func engineFor(t *testing.T, profile string, files map[string]string) *Engine {
	t.Helper()
	fs := memfs.New()
	for name, content := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}
	p, ok := BuiltinProfiles()[profile]
	require.True(t, ok, profile)
	return NewEngine(fs, p, nil)
}

func assemble(t *testing.T, rows []hierarchy.Row) *taxon.Node {
	t.Helper()
	root, err := hierarchy.NewAssembler(hierarchy.Options{}, nil).Assemble(rows)
	require.NoError(t, err)
	return root
}

func TestIngestLines(t *testing.T) {
	e := engineFor(t, "lines", map[string]string{"birds.csv": `# rank,latin,name
or,Passeriformes,Zangvogels
fa,Corvidae,Kraaiachtigen

ge,Corvus
so,Corvus corax,Raaf
so,Corvus corone,Zwarte kraai
`})
	e.Language = "nl"

	res, err := e.Ingest("birds.csv")
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)
	assert.Equal(t, "Passeriformes", res.Rows[0].Values[taxon.Order])
	assert.Equal(t, map[string]string{"nl": "Zangvogels"}, res.Rows[0].Names)
	assert.Nil(t, res.Rows[2].Names)
	assert.Equal(t, 6, res.Rows[3].Line)

	root := assemble(t, res.Rows)
	assert.Equal(t, 5, root.Count())
	assert.Equal(t, "Raaf", root.Children[0].Children[0].Children[0].Names["nl"])
}

func TestIngestLinesRejectsUnknownRank(t *testing.T) {
	e := engineFor(t, "lines", map[string]string{"bad.csv": "or,Passeriformes\ntribe,Corvini\n"})
	_, err := e.Ingest("bad.csv")
	require.ErrorIs(t, err, taxon.ErrUnknownRank)
	var rowErr *hierarchy.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 2, rowErr.Line)
}

func TestIngestIOCColumns(t *testing.T) {
	e := engineFor(t, "ioc", map[string]string{"ioc.csv": `Order,Family,Species,English,Dutch,Klingon
PASSERIFORMES,,,Passerines,Zangvogels,
,Corvidae,,Crows,Kraaien,
,,corvus corax,Northern Raven,Raaf,
,,Corvus corone,Carrion Crow,Zwarte Kraai,
,,Pica pica,Eurasian Magpie,Ekster,
`})

	res, err := e.Ingest("ioc.csv")
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)
	assert.Equal(t, "Passeriformes", res.Rows[0].Values[taxon.Order])
	assert.Equal(t, "Corvus corax", res.Rows[2].Values[taxon.Species])
	assert.Equal(t, map[string]string{"en": "Northern Raven", "nl": "Raaf"}, res.Rows[2].Names)

	root := assemble(t, res.Rows)
	family := root.Children[0]
	require.Len(t, family.Children, 2, "genera are synthesized from species names")
	assert.Equal(t, "Corvus", family.Children[0].Latin)
	assert.Equal(t, "Pica", family.Children[1].Latin)
	assert.Equal(t, "Zangvogels", root.Names["nl"])
}

func TestIngestIOCBlankRows(t *testing.T) {
	e := engineFor(t, "ioc", map[string]string{
		"trailing.csv": "Order,Family,Species,English\nPASSERIFORMES,,,Passerines\n,Corvidae,,Crows\n,,,\n,,,\n",
		"interior.csv": "Order,Family,Species,English\nPASSERIFORMES,,,Passerines\n,,,\n,Corvidae,,Crows\n",
	})

	res, err := e.Ingest("trailing.csv")
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assemble(t, res.Rows)

	res, err = e.Ingest("interior.csv")
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	_, err = hierarchy.NewAssembler(hierarchy.Options{}, nil).Assemble(res.Rows)
	require.ErrorIs(t, err, hierarchy.ErrEmptyRow)
	var rowErr *hierarchy.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 3, rowErr.Line)
}

func TestIngestIOCWindows1252(t *testing.T) {
	src := "Order,Family,Species,English,French\nPASSERIFORMES,,,Passerines,Passereaux\n,Corvidae,,Crows,Corvidés\n"
	encoded, err := charmap.Windows1252.NewEncoder().String(src)
	require.NoError(t, err)

	e := engineFor(t, "ioc", map[string]string{"ioc.csv": encoded})
	e.Encoding = "windows-1252"
	res, err := e.Ingest("ioc.csv")
	require.NoError(t, err)
	assert.Equal(t, "Corvidés", res.Rows[1].Names["fr"])

	e.Encoding = "no-such-charset"
	_, err = e.Ingest("ioc.csv")
	assert.Error(t, err)
}

func TestIngestASMJSON(t *testing.T) {
	e := engineFor(t, "asm", map[string]string{"asm.json": `[
  {"order":"RODENTIA","family":"Muridae","genus":"Mus","specificEpithet":"musculus","mainCommonName":"House Mouse","extinct":0},
  {"order":"RODENTIA","family":"Muridae","genus":"Mus","specificEpithet":"spretus","mainCommonName":"Algerian Mouse","extinct":0},
  {"order":"RODENTIA","family":"Muridae","genus":"Coryphomys","specificEpithet":"buehleri","mainCommonName":"","extinct":1}
]`})

	res, err := e.Ingest("asm.json")
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "Rodentia", res.Rows[0].Values[taxon.Order])
	assert.Equal(t, "musculus", res.Rows[0].Values[taxon.Species])
	assert.True(t, res.Rows[2].Extinct)
	assert.Nil(t, res.Rows[2].Names)

	root, err := hierarchy.NewAssembler(hierarchy.Options{Detection: hierarchy.EqualityBased}, nil).Assemble(res.Rows)
	require.NoError(t, err)
	muridae := root.Children[0]
	require.Len(t, muridae.Children, 2)
	mus := muridae.Children[0]
	assert.Equal(t, []string{"Mus musculus", "Mus spretus"}, []string{mus.Children[0].Latin, mus.Children[1].Latin})
	assert.Equal(t, "House Mouse", mus.Children[0].Names["en"])
	assert.True(t, muridae.Children[1].Children[0].Extinct)
}

func TestIngestSQLiteResults(t *testing.T) {
	dir := t.TempDir()
	createTestDB(t, dir, []string{
		`{"order":"Passeriformes"}`,
		`{"family":"Corvidae"}`,
		`{"genus":"Corvus","species":"corax","name":"Common Raven"}`,
	})
	p := BuiltinProfiles()["results"]
	e := NewEngine(osfs.New(dir), p, nil)

	res, err := e.Ingest("test.db")
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	root := assemble(t, res.Rows)
	raven := root.Children[0].Children[0].Children[0]
	assert.Equal(t, "Corvus corax", raven.Latin)
	assert.Equal(t, "Common Raven", raven.Names["en"])
}

func TestIngestTree(t *testing.T) {
	e := engineFor(t, "tree", map[string]string{"tree.json": `{
  "rang": "ge", "latijn": "Corvus", "seq": 3,
  "subrangen": [
    {"rang": "so", "latijn": "Corvus corax", "seq": 4, "namen": {"en": "Common Raven"}},
    {"rang": "so", "latijn": "Corvus corone", "seq": 5, "uitgestorven": false}
  ]
}`})
	res, err := e.Ingest("tree.json")
	require.NoError(t, err)
	require.NotNil(t, res.Tree)
	assert.Nil(t, res.Rows)
	assert.Equal(t, 3, res.Tree.Count())
	assert.Equal(t, "Common Raven", res.Tree.Children[0].Names["en"])
}

func TestIngestMissingFile(t *testing.T) {
	e := engineFor(t, "lines", nil)
	_, err := e.Ingest("nope.csv")
	assert.Error(t, err)
}

func TestReadRenamePairs(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "pairs.csv", []byte("# old,new\nCorvus corax, Corvus albus\n\nPica,Picus\n"), 0o644))
	pairs, err := ReadRenamePairs(fs, "pairs.csv")
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "Corvus albus", pairs[0].New)
	assert.Equal(t, "Pica", pairs[1].Old)

	require.NoError(t, util.WriteFile(fs, "bad.csv", []byte("a,b,c\n"), 0o644))
	_, err = ReadRenamePairs(fs, "bad.csv")
	assert.Error(t, err)
}

func TestJsonWalkerField(t *testing.T) {
	w := NewJsonWalker()
	rec := map[string]any{"taxon": map[string]any{"genus": "Corvus", "n": float64(3)}}
	v, err := w.Field(rec, "taxon.genus")
	require.NoError(t, err)
	assert.Equal(t, "Corvus", v)
	v, err = w.Field(rec, "$.taxon.n")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
	v, err = w.Field(rec, "missing")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestBuild(t *testing.T) {
	e := engineFor(t, "lines", map[string]string{
		"birds.csv": "fa,Corvidae\nso,Corvus corax,Common Raven\nso,Pica pica\n",
		"empty.csv": "# nothing\n",
	})
	root, err := e.Build("birds.csv", hierarchy.Options{Policy: hierarchy.PerRank})
	require.NoError(t, err)
	assert.Equal(t, "Corvidae", root.Latin)
	require.Len(t, root.Children, 2)
	assert.Equal(t, "Corvus", root.Children[0].Latin)
	assert.Equal(t, "Pica", root.Children[1].Latin)

	_, err = e.Build("empty.csv", hierarchy.Options{})
	assert.ErrorIs(t, err, hierarchy.ErrNoRoot)
}
