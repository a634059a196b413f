package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/agentic-research/taxa/internal/config"
	"github.com/agentic-research/taxa/internal/logging"
	"github.com/agentic-research/taxa/internal/store"
)

var (
	cfgFile string
	verbose bool
	format  string

	// Set by setup before any command runs.
	vp     *viper.Viper
	cfg    *config.Config
	logger = zap.NewNop()
)

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	"db":              "store.dsn",
	"driver":          "store.driver",
	"quiet":           "log.quiet",
	"log-file":        "log.file",
	"lang":            "language",
	"languages":       "languages",
	"profile":         "assemble.profile",
	"profiles":        "assemble.profiles_file",
	"root":            "assemble.root",
	"sequence":        "assemble.sequence",
	"factor":          "assemble.factor",
	"baseline":        "assemble.baseline",
	"encoding":        "assemble.encoding",
	"mode":            "reconcile.mode",
	"renumber":        "reconcile.renumber",
	"skip-subspecies": "reconcile.skip_subspecies",
	"report-unlisted": "reconcile.report_unlisted",
}

var rootCmd = &cobra.Command{
	Use:   "taxa",
	Short: "taxa: ranked taxonomy assembly and store reconciliation",
	Long: `taxa turns flat rank listings (class, order, family, genus, species,
subspecies) into nested taxonomy trees, reconciles those trees with a
taxon store, and propagates renames through the stored hierarchy.

Configuration hierarchy (highest to lowest priority):
  1. CLI flags
  2. Environment variables (TAXA_*)
  3. Config file (~/.taxa/config.yaml or ./taxa.yaml)
  4. Defaults`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.taxa/config.yaml)")
	pf.String("db", "", "store DSN (SQLite path or Postgres URL)")
	pf.String("driver", "", "store driver: sqlite, postgres or memory")
	pf.String("languages", "", "comma-separated accepted name languages")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging and verbose reports")
	pf.Bool("quiet", false, "only log warnings and errors")
	pf.String("log-file", "", "also write the log to this file")
	pf.StringVar(&format, "format", "text", "report format: text, json or yaml")
}

// setup loads the configuration and builds the logger for the command
// about to run.
func setup(cmd *cobra.Command, _ []string) error {
	vp = viper.New()
	if err := config.Setup(vp, cfgFile); err != nil {
		return err
	}
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key := flagKeys[f.Name]; key != "" && f.Changed && bindErr == nil {
			bindErr = vp.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return bindErr
	}
	c, err := config.Decode(vp)
	if err != nil {
		return err
	}
	if verbose {
		c.Log.Level = "debug"
	}
	cfg = c

	l, err := logging.New(logging.Options{Level: cfg.Log.Level, Quiet: cfg.Log.Quiet, File: cfg.Log.File})
	if err != nil {
		return err
	}
	logger = l
	if used := vp.ConfigFileUsed(); used != "" {
		logger.Debug("using config file", zap.String("path", used))
	}
	return nil
}

// openStore opens the configured store, wrapped in the lookup cache when
// enabled.
func openStore(ctx context.Context) (store.Store, func(), error) {
	s, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	logger.Debug("opened store", zap.String("driver", cfg.Store.Driver))
	if !cfg.Store.Cache.Enabled {
		return s, func() { _ = s.Close() }, nil
	}
	cached := store.NewCachedStore(s, cfg.Store.Cache.TTL)
	return cached, func() {
		hits, misses := cached.Stats()
		logger.Debug("store cache", zap.Int64("hits", hits), zap.Int64("misses", misses))
		_ = cached.Close()
	}, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Run executes the command tree with args, writing command output to out.
// Flags are reset first, so Run can be called repeatedly in one process.
func Run(ctx context.Context, args []string, out io.Writer) error {
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	return rootCmd.ExecuteContext(ctx)
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
