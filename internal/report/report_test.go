package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/taxa/internal/export"
	"github.com/agentic-research/taxa/internal/reconcile"
	"github.com/agentic-research/taxa/internal/rename"
	"github.com/agentic-research/taxa/internal/taxon"
)

func TestWriteReconcile(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := &reconcile.Report{
		RunID:    "run-1",
		Mode:     reconcile.Create,
		Root:     "Aves",
		Started:  start,
		Finished: start.Add(1500 * time.Millisecond),
		Findings: []reconcile.Finding{
			{Kind: reconcile.KindCreated, Rank: taxon.Species, Latin: "Corvus corax", ID: 7, Applied: true},
			{Kind: reconcile.KindSkipped, Rank: taxon.Subspecies, Latin: "Corvus corax varius"},
			{Kind: reconcile.KindNewName, Rank: taxon.Species, Latin: "Corvus corax", Lang: "nl", After: "Raaf", Applied: true},
		},
	}
	r.Totals.Ranks[taxon.Species] = reconcile.Counter{Seen: 1200, Created: 1}
	r.Totals.Languages = map[string]*reconcile.Counter{"nl": {Seen: 1, Created: 1}}

	var buf bytes.Buffer
	require.NoError(t, WriteReconcile(&buf, r, false))
	out := buf.String()
	assert.Contains(t, out, "run run-1 (create) Aves")
	assert.Contains(t, out, "        created so Corvus corax")
	assert.Contains(t, out, `new-name so Corvus corax [nl]: "" -> "Raaf"`)
	assert.NotContains(t, out, "varius")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "language")
	assert.Contains(t, out, "3 findings, 0 errors, took 1.5s")

	buf.Reset()
	require.NoError(t, WriteReconcile(&buf, r, true))
	assert.Contains(t, buf.String(), "skipped oso Corvus corax varius")
}

func TestWriteRename(t *testing.T) {
	r := &rename.Report{Results: []*rename.Result{
		{Old: "Corvus corax", New: "Corvus ravus", Done: true, Steps: []rename.Step{
			{Outcome: rename.Renamed, Rank: taxon.Species, Before: "Corvus corax", After: "Corvus ravus"},
			{Outcome: rename.DescendantRenamed, Rank: taxon.Subspecies, Before: "Corvus corax varius", After: "Corvus ravus varius"},
		}},
		{Old: "Pica", New: "Picus", Steps: []rename.Step{
			{Outcome: rename.Failed, Rank: taxon.Genus, Err: "disk full"},
		}},
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteRename(&buf, r))
	out := buf.String()
	assert.Contains(t, out, "Corvus corax -> Corvus ravus (done)")
	assert.Contains(t, out, `  renamed so "Corvus corax" -> "Corvus ravus"`)
	assert.Contains(t, out, "Pica -> Picus (aborted)")
	assert.Contains(t, out, "  error ge: disk full")
	assert.Contains(t, out, "2 pairs, 1 renamed, 1 descendants")
}

func TestWriteExport(t *testing.T) {
	var totals export.Totals
	totals[taxon.Family] = 1
	totals[taxon.Species] = 2500
	var buf bytes.Buffer
	require.NoError(t, WriteExport(&buf, &totals))
	assert.Contains(t, buf.String(), "2,500")
	assert.Contains(t, buf.String(), "2,501")
}
