package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/taxa/internal/reconcile"
	"github.com/agentic-research/taxa/internal/report"
	"github.com/agentic-research/taxa/internal/store"
	"github.com/agentic-research/taxa/internal/taxon"
)

var parentName string

var importCmd = &cobra.Command{
	Use:   "import [input]",
	Short: "Reconcile a taxonomy with the store",
	Long: `Assemble the input (or read it as a tree document) and reconcile it with
the store.

Modes:
  validate   report differences, write nothing
  create     add missing taxa and names, sync fields, leave misplaced taxa
  full-sync  create, and move misplaced taxa under their input parent`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var checkCmd = &cobra.Command{
	Use:   "check [tree.json]",
	Short: "Validate a tree against the store and list unlisted taxa",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	addAssembleFlags(importCmd)
	addReconcileFlags(importCmd)
	f := importCmd.Flags()
	f.StringP("mode", "m", "", "validate, create or full-sync")
	f.Bool("renumber", false, "sync sequence numbers from the input")
	f.Bool("skip-subspecies", false, "do not create missing subspecies")
	rootCmd.AddCommand(importCmd)

	addReconcileFlags(checkCmd)
	checkCmd.Flags().String("profile", "", "input profile (default: tree for .json inputs)")
	rootCmd.AddCommand(checkCmd)
}

func addReconcileFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&parentName, "parent", "", "stored parent of the tree root")
	cmd.Flags().Bool("report-unlisted", false, "report stored taxa missing from the input")
}

func runImport(cmd *cobra.Command, args []string) error {
	opts, err := cfg.ReconcileOptions()
	if err != nil {
		return err
	}
	return reconcileInput(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
}

func runCheck(cmd *cobra.Command, args []string) error {
	opts, err := cfg.ReconcileOptions()
	if err != nil {
		return err
	}
	opts.Mode = reconcile.Validate
	opts.ReportUnlisted = true
	return reconcileInput(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
}

func reconcileInput(ctx context.Context, w io.Writer, input string, opts reconcile.Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	tree, err := buildTree(input)
	if err != nil {
		return err
	}
	s, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	parent, err := resolveParent(ctx, s, parentName)
	if err != nil {
		return err
	}
	rep := reconcile.New(s, opts, logger).Reconcile(ctx, tree, parent)
	logger.Info("reconciled",
		zap.String("run", rep.RunID),
		zap.Stringer("mode", rep.Mode),
		zap.Int("findings", len(rep.Findings)))

	if err := render(w, rep, func(w io.Writer) error {
		return report.WriteReconcile(w, rep, verbose)
	}); err != nil {
		return err
	}
	if n := rep.Count(reconcile.KindError); n > 0 {
		return fmt.Errorf("%d store operations failed", n)
	}
	return nil
}

func resolveParent(ctx context.Context, s store.Store, name string) (taxon.ParentRef, error) {
	if name == "" {
		return taxon.Unresolved(), nil
	}
	rec, err := s.FindByName(ctx, name)
	if err != nil {
		return taxon.Unresolved(), fmt.Errorf("parent %s: %w", name, err)
	}
	return taxon.Known(rec.ID), nil
}
