package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentic-research/taxa/internal/config"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage taxa configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if used := vp.ConfigFileUsed(); used != "" {
			fmt.Fprintf(out, "# Configuration file: %s\n", used)
		} else {
			fmt.Fprintln(out, "# No configuration file found (defaults and environment)")
		}
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	// The file may not exist yet, so skip loading it.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			p, err := config.DefaultPath()
			if err != nil {
				return err
			}
			path = p
		}
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		data, err := config.DefaultConfig().YAML()
		if err != nil {
			return err
		}
		header := "# taxa configuration\n" +
			"#\n" +
			"# Configuration hierarchy (highest to lowest priority):\n" +
			"#   1. CLI flags\n" +
			"#   2. Environment variables (TAXA_*, e.g. TAXA_STORE_DSN)\n" +
			"#   3. This config file\n" +
			"#   4. Built-in defaults\n\n"
		if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created default configuration: %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
