// Package mcpserver exposes taxon lookups, assembly and validation as MCP
// tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/agentic-research/taxa/api"
	"github.com/agentic-research/taxa/internal/config"
	"github.com/agentic-research/taxa/internal/hierarchy"
	"github.com/agentic-research/taxa/internal/ingest"
	"github.com/agentic-research/taxa/internal/reconcile"
	"github.com/agentic-research/taxa/internal/store"
	"github.com/agentic-research/taxa/internal/taxon"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps are the collaborators of the tools.
type Deps struct {
	Store    store.Store
	Profiles map[string]*ingest.Profile
	// Assemble is the base for assemble_rows; per-call arguments override
	// the sequence policy and root.
	Assemble hierarchy.Options
	// Reconcile is the base for validate_tree; the mode is always validate.
	Reconcile reconcile.Options
	Language  string
	Log       *zap.Logger
}

type Server struct {
	deps Deps
	mcp  *server.MCPServer
}

func New(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	deps.Log = deps.Log.With(zap.String("component", "mcp"))
	if deps.Profiles == nil {
		deps.Profiles = ingest.BuiltinProfiles()
	}
	s := &Server{
		deps: deps,
		mcp: server.NewMCPServer(
			"taxa",
			Version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
	}
	s.mcp.AddTool(lookupTool, s.handleLookup)
	s.mcp.AddTool(childrenTool, s.handleChildren)
	s.mcp.AddTool(assembleTool, s.handleAssemble)
	s.mcp.AddTool(validateTool, s.handleValidate)
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio blocks serving JSON-RPC on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.deps.Log.Info("serving MCP on stdio")
	return server.ServeStdio(s.mcp)
}

const instructions = `taxa serves a ranked bird taxonomy (class, order, family, genus, species, subspecies).
Use lookup_taxon and list_children to browse the store, assemble_rows to turn flat rank rows into a nested tree document, and validate_tree to compare a tree document with the store without changing it.`

var (
	lookupTool = mcp.NewTool("lookup_taxon",
		mcp.WithDescription("Look up one taxon by scientific name, with its parent and common names."),
		mcp.WithString("latin", mcp.Required(), mcp.Description("Scientific name, e.g. \"Corvus corax\"")),
	)
	childrenTool = mcp.NewTool("list_children",
		mcp.WithDescription("List the direct sub-taxa of a taxon in sibling order."),
		mcp.WithString("latin", mcp.Required(), mcp.Description("Scientific name of the parent taxon")),
	)
	assembleTool = mcp.NewTool("assemble_rows",
		mcp.WithDescription("Assemble flat rank rows into a nested tree document."),
		mcp.WithString("input", mcp.Required(), mcp.Description("Input text in the chosen profile's format")),
		mcp.WithString("profile", mcp.Description("Input profile (lines, ioc, asm, ...); default lines")),
		mcp.WithString("sequence", mcp.Description("Sequence policy"), mcp.Enum("sequential", "per-rank")),
		mcp.WithString("root", mcp.Description("Pre-opened root as rank:Latin, e.g. kl:Aves")),
	)
	validateTool = mcp.NewTool("validate_tree",
		mcp.WithDescription("Compare a tree document with the store and report differences. Never writes."),
		mcp.WithString("tree", mcp.Required(), mcp.Description("Tree document JSON (rang, latijn, subrangen, ...)")),
		mcp.WithString("parent", mcp.Description("Scientific name of the stored parent of the tree root")),
	)
)

// TaxonView is the lookup_taxon result.
type TaxonView struct {
	ID      int64             `json:"id"`
	Latin   string            `json:"latin"`
	Rank    taxon.Rank        `json:"rank"`
	Seq     int64             `json:"seq"`
	Extinct bool              `json:"extinct,omitempty"`
	Parent  string            `json:"parent,omitempty"`
	Names   map[string]string `json:"names,omitempty"`
}

func (s *Server) handleLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	latin, err := req.RequireString("latin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.deps.Store.FindByName(ctx, latin)
	if err != nil {
		return notFound(latin, err), nil
	}
	view := TaxonView{ID: rec.ID, Latin: rec.Latin, Rank: rec.Rank, Seq: rec.Seq, Extinct: rec.Extinct}
	if id, ok := rec.Parent.ID(); ok {
		parent, err := s.deps.Store.FindByID(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("parent of %s: %v", latin, err)), nil
		}
		view.Parent = parent.Latin
	}
	if view.Names, err = s.deps.Store.Names(ctx, rec.ID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("names of %s: %v", latin, err)), nil
	}
	return jsonResult(view)
}

func (s *Server) handleChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	latin, err := req.RequireString("latin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.deps.Store.FindByName(ctx, latin)
	if err != nil {
		return notFound(latin, err), nil
	}
	children, err := s.deps.Store.FindChildren(ctx, rec.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("children of %s: %v", latin, err)), nil
	}
	out := make([]TaxonView, 0, len(children))
	for _, c := range children {
		out = append(out, TaxonView{ID: c.ID, Latin: c.Latin, Rank: c.Rank, Seq: c.Seq, Extinct: c.Extinct, Parent: rec.Latin})
	}
	return jsonResult(out)
}

func (s *Server) handleAssemble(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := req.RequireString("input")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name := req.GetString("profile", "lines")
	profile, ok := s.deps.Profiles[name]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown profile %q, have %v", name, ingest.ProfileNames(s.deps.Profiles))), nil
	}
	if profile.Format == ingest.FormatSQLite {
		return mcp.NewToolResultError("sqlite profiles need a database file"), nil
	}

	opts := s.deps.Assemble
	if seq := req.GetString("sequence", ""); seq != "" {
		if opts.Policy, err = hierarchy.ParseSequencePolicy(seq); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if root := req.GetString("root", ""); root != "" {
		if opts.Root, err = config.ParseRoot(root); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	fs := memfs.New()
	if err := util.WriteFile(fs, "input", []byte(input), 0o644); err != nil {
		return nil, err
	}
	engine := ingest.NewEngine(fs, profile, s.deps.Log)
	if s.deps.Language != "" {
		engine.Language = s.deps.Language
	}
	tree, err := engine.Build("input", opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(taxon.ToDocument(tree))
}

func (s *Server) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("tree")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var doc api.Taxon
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("tree is not a document: %v", err)), nil
	}
	tree, err := taxon.FromDocument(doc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	parent := taxon.Unresolved()
	if name := req.GetString("parent", ""); name != "" {
		rec, err := s.deps.Store.FindByName(ctx, name)
		if err != nil {
			return notFound(name, err), nil
		}
		parent = taxon.Known(rec.ID)
	}

	opts := s.deps.Reconcile
	opts.Mode = reconcile.Validate
	rep := reconcile.New(s.deps.Store, opts, s.deps.Log).Reconcile(ctx, tree, parent)
	return jsonResult(rep)
}

func notFound(latin string, err error) *mcp.CallToolResult {
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no taxon named %q", latin))
	}
	return mcp.NewToolResultError(fmt.Sprintf("lookup %s: %v", latin, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
