// Package report renders reconcile, rename and export results as text.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/agentic-research/taxa/internal/export"
	"github.com/agentic-research/taxa/internal/reconcile"
	"github.com/agentic-research/taxa/internal/rename"
	"github.com/agentic-research/taxa/internal/taxon"
)

// quiet kinds are only listed in verbose output.
var quiet = map[reconcile.Kind]bool{
	reconcile.KindSkipped: true,
}

// WriteReconcile writes the findings of r indented by rank, then its totals.
func WriteReconcile(w io.Writer, r *reconcile.Report, verbose bool) error {
	bw := &errWriter{w: w}
	bw.printf("run %s (%s) %s\n", r.RunID, r.Mode, r.Root)
	for _, f := range r.Findings {
		if quiet[f.Kind] && !verbose {
			continue
		}
		bw.printf("%s%s\n", indent(f.Rank), f)
	}
	if bw.err != nil {
		return bw.err
	}
	if err := WriteTotals(w, &r.Totals); err != nil {
		return err
	}
	bw.printf("%s findings, %s errors, took %s\n",
		humanize.Comma(int64(len(r.Findings))),
		humanize.Comma(int64(r.Count(reconcile.KindError))),
		r.Finished.Sub(r.Started).Round(1e6))
	return bw.err
}

// WriteTotals writes the per-rank and per-language counters.
func WriteTotals(w io.Writer, t *reconcile.Totals) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "rank\tseen\tcreated\tupdated\t")
	for _, r := range taxon.Ranks() {
		c := t.Ranks[r]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", r, count(c.Seen), count(c.Created), count(c.Updated))
	}
	if codes := t.LanguageCodes(); len(codes) > 0 {
		fmt.Fprintln(tw, "language\tseen\tcreated\tupdated\t")
		for _, code := range codes {
			c := t.Languages[code]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", code, count(c.Seen), count(c.Created), count(c.Updated))
		}
	}
	return tw.Flush()
}

// WriteRename writes one block per pair of a batch.
func WriteRename(w io.Writer, r *rename.Report) error {
	bw := &errWriter{w: w}
	for _, res := range r.Results {
		status := "done"
		if !res.Done {
			status = "aborted"
		}
		bw.printf("%s -> %s (%s)\n", res.Old, res.New, status)
		for _, s := range res.Steps {
			bw.printf("  %s %s", s.Outcome, s.Rank.Code())
			if s.Before != "" || s.After != "" {
				bw.printf(" %q -> %q", s.Before, s.After)
			}
			if s.Err != "" {
				bw.printf(": %s", s.Err)
			}
			bw.printf("\n")
		}
	}
	bw.printf("%s pairs, %s renamed, %s descendants\n",
		humanize.Comma(int64(len(r.Results))),
		humanize.Comma(int64(r.Count(rename.Renamed))),
		humanize.Comma(int64(r.Count(rename.DescendantRenamed))))
	return bw.err
}

// WriteExport writes the per-rank counts of an export.
func WriteExport(w io.Writer, t *export.Totals) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "rank\ttaxa\t")
	total := 0
	for _, r := range taxon.Ranks() {
		fmt.Fprintf(tw, "%s\t%s\t\n", r, count(t[r]))
		total += t[r]
	}
	fmt.Fprintf(tw, "total\t%s\t\n", count(total))
	return tw.Flush()
}

func indent(r taxon.Rank) string {
	if !r.Valid() {
		return ""
	}
	return strings.Repeat("  ", int(r))
}

func count(n int) string { return humanize.Comma(int64(n)) }

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
