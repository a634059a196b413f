package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/taxa/internal/hierarchy"
	"github.com/agentic-research/taxa/internal/ingest"
	"github.com/agentic-research/taxa/internal/taxon"
)

var (
	assembleOutput string
	equality       bool
)

var assembleCmd = &cobra.Command{
	Use:   "assemble [input]",
	Short: "Assemble a flat rank listing into a tree document",
	Long: `Read a rank listing with the selected input profile and write the nested
tree document (rang, latijn, seq, namen, subrangen) as JSON.

Built-in profiles: lines, ioc, asm, results, tree. More can be defined in
an HCL file passed with --profiles.`,
	Args: cobra.ExactArgs(1),
	RunE: runAssemble,
}

func init() {
	addAssembleFlags(assembleCmd)
	assembleCmd.Flags().StringVarP(&assembleOutput, "output", "o", "", "write the document here instead of stdout")
	rootCmd.AddCommand(assembleCmd)
}

// addAssembleFlags registers the input and assembly flags shared by the
// commands that read rank listings.
func addAssembleFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("profile", "p", "", "input profile")
	f.String("profiles", "", "HCL file with additional input profiles")
	f.String("root", "", "pre-opened root taxon as rank:Latin, e.g. kl:Aves")
	f.String("sequence", "", "sequence policy: sequential or per-rank")
	f.Int64("factor", 0, "sequence factor")
	f.Int64("baseline", 0, "sequence baseline")
	f.BoolVar(&equality, "equality", false, "treat a value equal to the open taxon as no change")
	f.String("encoding", "", "input charset, e.g. windows-1252")
	f.String("lang", "", "language of single-name inputs")
}

func runAssemble(cmd *cobra.Command, args []string) error {
	start := time.Now()
	tree, err := buildTree(args[0])
	if err != nil {
		return err
	}
	if err := writeDocument(cmd.OutOrStdout(), assembleOutput, tree); err != nil {
		return err
	}
	if assembleOutput != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d taxa to %s in %v.\n", tree.Count(), assembleOutput, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// buildTree reads input with the configured profile. Tree documents are
// returned as read; everything else is assembled.
func buildTree(input string) (*taxon.Node, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, err
	}
	fs := osfs.New("/")

	profiles, err := ingest.LoadProfiles(fs, absOrEmpty(cfg.Assemble.ProfilesFile))
	if err != nil {
		return nil, err
	}
	name := cfg.Assemble.Profile
	if name == "lines" && filepath.Ext(input) == ".json" {
		name = "tree"
	}
	profile, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (have %v)", name, ingest.ProfileNames(profiles))
	}

	opts, err := cfg.AssemblerOptions()
	if err != nil {
		return nil, err
	}
	if equality {
		opts.Detection = hierarchy.EqualityBased
	}

	engine := ingest.NewEngine(fs, profile, logger)
	engine.Encoding = cfg.Assemble.Encoding
	if cfg.Language != "" {
		engine.Language = cfg.Language
	}
	tree, err := engine.Build(abs, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("built tree",
		zap.String("input", input),
		zap.String("profile", name),
		zap.String("root", tree.Latin),
		zap.Int("taxa", tree.Count()))
	return tree, nil
}

func absOrEmpty(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// writeDocument writes tree as an indented JSON document to path, or to w
// when path is empty.
func writeDocument(w io.Writer, path string, tree *taxon.Node) error {
	data, err := json.MarshalIndent(taxon.ToDocument(tree), "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
