// Package ingest reads taxon input files into assembler rows or trees.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/agentic-research/taxa/api"
	"github.com/agentic-research/taxa/internal/hierarchy"
	"github.com/agentic-research/taxa/internal/taxon"
)

// Result is what an input file yields: rows to assemble, or a finished tree
// for tree documents.
type Result struct {
	Rows []hierarchy.Row
	Tree *taxon.Node
}

// Engine drives reading of one input file according to a profile.
type Engine struct {
	FS      billy.Filesystem
	Profile *Profile
	// Encoding names the input charset (e.g. "windows-1252"). Empty or
	// "utf-8" reads the input as is.
	Encoding string
	// Language receives the names of rank-line input.
	Language string
	Log      *zap.Logger

	walker *JsonWalker
}

func NewEngine(fs billy.Filesystem, profile *Profile, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		FS:       fs,
		Profile:  profile,
		Language: "en",
		Log:      logger.With(zap.String("component", "ingest")),
		walker:   NewJsonWalker(),
	}
}

// Ingest reads path with the engine's profile.
func (e *Engine) Ingest(path string) (*Result, error) {
	if e.Profile == nil {
		return nil, errors.New("no input profile")
	}
	var (
		res = &Result{}
		err error
	)
	switch e.Profile.Format {
	case FormatSQLite:
		res.Rows, err = e.ingestSQLite(path)
	case FormatTree:
		res.Tree, err = e.ingestTree(path)
	default:
		err = e.withReader(path, func(r io.Reader) error {
			var rerr error
			switch e.Profile.Format {
			case FormatLines:
				res.Rows, rerr = e.readLines(r)
			case FormatColumns:
				res.Rows, rerr = e.readColumns(r)
			case FormatJSON:
				res.Rows, rerr = e.readJSON(r)
			default:
				rerr = fmt.Errorf("unknown format %q", e.Profile.Format)
			}
			return rerr
		})
	}
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", path, err)
	}
	e.Log.Info("ingested input",
		zap.String("path", path),
		zap.String("profile", e.Profile.Name),
		zap.Int("rows", len(res.Rows)))
	return res, nil
}

// withReader opens path on the engine's filesystem and decodes its charset.
func (e *Engine) withReader(path string, fn func(io.Reader) error) error {
	f, err := e.FS.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r, err := decodeCharset(f, e.Encoding)
	if err != nil {
		return err
	}
	return fn(r)
}

func decodeCharset(r io.Reader, name string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return r, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

func (e *Engine) csvReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = e.Profile.delimiter()
	if e.Profile.Comment != "" {
		cr.Comment = []rune(e.Profile.Comment)[0]
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// readLines reads "rank,latin[,name]" lines, one taxon per line.
func (e *Engine) readLines(r io.Reader) ([]hierarchy.Row, error) {
	cr := e.csvReader(r)
	var rows []hierarchy.Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if len(rec) < 2 {
			return nil, &hierarchy.RowError{Line: line, Err: fmt.Errorf("expected rank and name, got %d fields", len(rec))}
		}
		rank, err := taxon.ParseRank(rec[0])
		if err != nil {
			return nil, &hierarchy.RowError{Line: line, Err: err}
		}
		row := hierarchy.Row{Line: line}
		row.SetValue(rank, e.latin(rec[1], rank))
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			row.Names = map[string]string{e.Language: strings.TrimSpace(rec[2])}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readColumns reads one row per record with a column per rank.
func (e *Engine) readColumns(r io.Reader) ([]hierarchy.Row, error) {
	cr := e.csvReader(r)
	p := e.Profile

	var nameCols map[int]string
	if p.Header {
		header, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		nameCols = map[int]string{}
		if p.NamesFrom > 0 {
			for i := p.NamesFrom - 1; i < len(header); i++ {
				if lang := p.language(header[i]); lang != "" {
					nameCols[i] = lang
				}
			}
		}
	}
	for _, n := range p.Names {
		if n.Column > 0 {
			if nameCols == nil {
				nameCols = map[int]string{}
			}
			nameCols[n.Column-1] = n.Lang
		}
	}

	cell := func(rec []string, col int) string {
		if col < 0 || col >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[col])
	}

	var rows, blank []hierarchy.Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		row := hierarchy.Row{Line: line}
		for _, f := range p.Ranks {
			rank := f.rankOf()
			row.SetValue(rank, e.latin(cell(rec, f.Column-1), rank))
		}
		for col, lang := range nameCols {
			if v := cell(rec, col); v != "" {
				if row.Names == nil {
					row.Names = map[string]string{}
				}
				row.Names[lang] = v
			}
		}
		if p.Extinct != nil && p.Extinct.Column > 0 {
			row.Extinct = p.Extinct.matches(cell(rec, p.Extinct.Column-1))
		}
		if empty(row) {
			blank = append(blank, row)
			continue
		}
		rows = append(rows, blank...)
		blank = blank[:0]
		rows = append(rows, row)
	}
	for _, row := range blank {
		e.Log.Debug("skipping trailing blank row", zap.Int("line", row.Line))
	}
	return rows, nil
}

func empty(row hierarchy.Row) bool {
	for _, v := range row.Values {
		if v != "" {
			return false
		}
	}
	return len(row.Names) == 0 && !row.Extinct
}

// readJSON selects the profile's records from a JSON document.
func (e *Engine) readJSON(r io.Reader) ([]hierarchy.Row, error) {
	var data any
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	selector := e.Profile.Records
	if selector == "" {
		selector = "$[*]"
	}
	records, err := e.walker.Query(data, selector)
	if err != nil {
		return nil, err
	}
	rows := make([]hierarchy.Row, 0, len(records))
	for i, rec := range records {
		row, err := e.recordRow(rec, i+1)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (e *Engine) ingestSQLite(path string) ([]hierarchy.Row, error) {
	dbPath := filepath.Join(e.FS.Root(), path)
	var rows []hierarchy.Row
	n := 0
	err := StreamSQLite(dbPath, e.Profile.Table, func(_ string, rec any) error {
		n++
		row, err := e.recordRow(rec, n)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// recordRow maps one JSON record to a row through the profile's fields.
func (e *Engine) recordRow(rec any, line int) (hierarchy.Row, error) {
	p := e.Profile
	row := hierarchy.Row{Line: line}
	for _, f := range p.Ranks {
		v, err := e.walker.Field(rec, f.Field)
		if err != nil {
			return row, err
		}
		rank := f.rankOf()
		row.SetValue(rank, e.latin(v, rank))
	}
	for _, n := range p.Names {
		if n.Field == "" {
			continue
		}
		v, err := e.walker.Field(rec, n.Field)
		if err != nil {
			return row, err
		}
		if v = strings.TrimSpace(v); v != "" {
			if row.Names == nil {
				row.Names = map[string]string{}
			}
			row.Names[n.Lang] = v
		}
	}
	if p.Extinct != nil && p.Extinct.Field != "" {
		v, err := e.walker.Field(rec, p.Extinct.Field)
		if err != nil {
			return row, err
		}
		row.Extinct = p.Extinct.matches(v)
	}
	return row, nil
}

func (e *Engine) ingestTree(path string) (*taxon.Node, error) {
	var doc api.Taxon
	err := e.withReader(path, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&doc)
	})
	if err != nil {
		return nil, err
	}
	return taxon.FromDocument(doc)
}

// latin applies the profile's name normalization. Epithet-only values keep
// their case apart from trimming.
func (e *Engine) latin(v string, rank taxon.Rank) string {
	v = strings.TrimSpace(v)
	if v == "" || !e.Profile.Normalize {
		return v
	}
	if rank >= taxon.Species && !strings.Contains(v, " ") {
		return strings.ToLower(v)
	}
	return taxon.NormalizeLatin(v, rank)
}

// Build ingests path and assembles its rows into a tree. Tree documents are
// returned as read.
func (e *Engine) Build(path string, opts hierarchy.Options) (*taxon.Node, error) {
	res, err := e.Ingest(path)
	if err != nil {
		return nil, err
	}
	if res.Tree != nil {
		return res.Tree, nil
	}
	tree, err := hierarchy.NewAssembler(opts, e.Log).Assemble(res.Rows)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", path, err)
	}
	return tree, nil
}
