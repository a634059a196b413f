package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentic-research/taxa/internal/taxon"
)

var ranksCmd = &cobra.Command{
	Use:   "ranks",
	Short: "List the ranks from shallowest to deepest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "depth\tcode\trank")
		for _, r := range taxon.Ranks() {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", int(r), r.Code(), r)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(ranksCmd)
}
