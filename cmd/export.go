package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/taxa/internal/export"
	"github.com/agentic-research/taxa/internal/report"
	"github.com/agentic-research/taxa/internal/taxon"
)

var (
	exportOutput string
	maxRank      string
)

var exportCmd = &cobra.Command{
	Use:   "export [root]",
	Short: "Export a stored subtree as a tree document",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write the document here instead of stdout")
	exportCmd.Flags().StringVar(&maxRank, "max-rank", "", "deepest exported rank, e.g. so")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	opts := export.Options{Languages: cfg.Languages}
	if maxRank != "" {
		r, err := taxon.ParseRank(maxRank)
		if err != nil {
			return err
		}
		opts.MaxRank = &r
	}

	ctx := cmd.Context()
	s, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	tree, totals, err := export.Export(ctx, s, strings.TrimSpace(args[0]), opts, logger)
	if err != nil {
		return err
	}
	if err := writeDocument(cmd.OutOrStdout(), exportOutput, tree); err != nil {
		return err
	}
	if exportOutput != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s.\n", args[0], exportOutput)
		return report.WriteExport(cmd.OutOrStdout(), totals)
	}
	return nil
}
