package cmd

import (
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/taxa/internal/ingest"
	"github.com/agentic-research/taxa/internal/mcpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve lookup, assembly and validation tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeStore, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore()

		profiles, err := ingest.LoadProfiles(osfs.New("/"), absOrEmpty(cfg.Assemble.ProfilesFile))
		if err != nil {
			return err
		}
		asm, err := cfg.AssemblerOptions()
		if err != nil {
			return err
		}
		rec, err := cfg.ReconcileOptions()
		if err != nil {
			return err
		}
		mcpserver.Version = Version
		srv := mcpserver.New(mcpserver.Deps{
			Store:     s,
			Profiles:  profiles,
			Assemble:  asm,
			Reconcile: rec,
			Language:  cfg.Language,
			Log:       logger,
		})
		return srv.ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
