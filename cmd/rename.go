package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/taxa/api"
	"github.com/agentic-research/taxa/internal/ingest"
	"github.com/agentic-research/taxa/internal/rename"
	"github.com/agentic-research/taxa/internal/report"
)

var pairsFile string

var renameCmd = &cobra.Command{
	Use:   "rename [old new]",
	Short: "Rename taxa and propagate to their descendants",
	Long: `Rename a taxon and every stored descendant whose name starts with the old
name. Species and subspecies move to the taxon named by their new name
without its last word; a missing one is created at the old parent's place.

Pairs can be given as arguments or as a CSV file of old,new lines.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if pairsFile != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runRename,
}

func init() {
	renameCmd.Flags().StringVarP(&pairsFile, "file", "f", "", "CSV file of old,new pairs")
	rootCmd.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, args []string) error {
	var pairs []api.RenamePair
	if pairsFile != "" {
		abs, err := filepath.Abs(pairsFile)
		if err != nil {
			return err
		}
		if pairs, err = ingest.ReadRenamePairs(osfs.New("/"), abs); err != nil {
			return err
		}
	} else {
		pairs = []api.RenamePair{{Old: args[0], New: args[1]}}
	}

	ctx := cmd.Context()
	s, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rep := rename.New(s, logger).Batch(ctx, pairs)
	if err := render(cmd.OutOrStdout(), rep, func(w io.Writer) error {
		return report.WriteRename(w, rep)
	}); err != nil {
		return err
	}
	if n := rep.Count(rename.Failed); n > 0 {
		return fmt.Errorf("%d renames failed", n)
	}
	return nil
}
