package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/agentic-research/taxa/internal/taxon"
)

// Input formats.
const (
	FormatColumns = "columns" // one row per line, one column per rank
	FormatLines   = "lines"   // rank code, scientific name, common name
	FormatJSON    = "json"    // JSON records selected by JSONPath
	FormatSQLite  = "sqlite"  // JSON records in a SQLite results table
	FormatTree    = "tree"    // an already nested tree document
)

// ProfileSet is the top level of a profiles file.
type ProfileSet struct {
	Profiles []*Profile `hcl:"profile,block"`
}

// Profile describes how to read one kind of input file.
type Profile struct {
	Name      string `hcl:"name,label"`
	Format    string `hcl:"format"`
	Header    bool   `hcl:"header,optional"`
	Delimiter string `hcl:"delimiter,optional"`
	Comment   string `hcl:"comment,optional"`
	// Records selects the record list of a JSON document.
	Records string `hcl:"records,optional"`
	// Table holds the records of a SQLite input.
	Table     string `hcl:"table,optional"`
	Normalize bool   `hcl:"normalize,optional"`
	// NamesFrom is the first (1-based) column holding common names; the
	// header cell of each such column names its language.
	NamesFrom int `hcl:"names_from,optional"`
	// Languages maps header cells to language codes.
	Languages map[string]string `hcl:"languages,optional"`

	Ranks   []*RankField  `hcl:"rank,block"`
	Names   []*NameField  `hcl:"name,block"`
	Extinct *ExtinctField `hcl:"extinct,block"`
}

// RankField locates a rank value by 1-based column or record field path.
type RankField struct {
	Rank   string `hcl:"rank,label"`
	Column int    `hcl:"column,optional"`
	Field  string `hcl:"field,optional"`
}

// NameField locates the common name in one language.
type NameField struct {
	Lang   string `hcl:"lang,label"`
	Column int    `hcl:"column,optional"`
	Field  string `hcl:"field,optional"`
}

// ExtinctField locates the extinct flag. An empty Value accepts the usual
// truthy spellings.
type ExtinctField struct {
	Column int    `hcl:"column,optional"`
	Field  string `hcl:"field,optional"`
	Value  string `hcl:"value,optional"`
}

const builtinProfiles = `
profile "lines" {
  format    = "lines"
  delimiter = ","
  comment   = "#"
}

profile "ioc" {
  format     = "columns"
  header     = true
  normalize  = true
  names_from = 4
  languages = {
    English = "en"
    Dutch   = "nl"
    German  = "de"
    French  = "fr"
    Spanish = "es"
  }
  rank "or" { column = 1 }
  rank "fa" { column = 2 }
  rank "so" { column = 3 }
}

profile "asm" {
  format    = "json"
  records   = "$[*]"
  normalize = true
  rank "or" { field = "order" }
  rank "fa" { field = "family" }
  rank "ge" { field = "genus" }
  rank "so" { field = "specificEpithet" }
  name "en" { field = "mainCommonName" }
  extinct { field = "extinct" }
}

profile "results" {
  format = "sqlite"
  table  = "results"
  rank "or" { field = "order" }
  rank "fa" { field = "family" }
  rank "ge" { field = "genus" }
  rank "so" { field = "species" }
  rank "oso" { field = "subspecies" }
  name "en" { field = "name" }
}

profile "tree" {
  format = "tree"
}
`

// ParseProfiles decodes HCL profile definitions. filename only picks the
// syntax (.hcl or .json) and labels diagnostics.
func ParseProfiles(filename string, src []byte) (map[string]*Profile, error) {
	var set ProfileSet
	if err := hclsimple.Decode(filename, src, nil, &set); err != nil {
		return nil, fmt.Errorf("decode profiles %s: %w", filename, err)
	}
	out := make(map[string]*Profile, len(set.Profiles))
	for _, p := range set.Profiles {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", p.Name, err)
		}
		out[p.Name] = p
	}
	return out, nil
}

// BuiltinProfiles returns the profiles shipped with the binary.
func BuiltinProfiles() map[string]*Profile {
	profiles, err := ParseProfiles("builtin.hcl", []byte(builtinProfiles))
	if err != nil {
		panic(err)
	}
	return profiles
}

// LoadProfiles returns the built-in profiles overlaid with those in path,
// if path is set.
func LoadProfiles(fs billy.Filesystem, path string) (map[string]*Profile, error) {
	profiles := BuiltinProfiles()
	if path == "" {
		return profiles, nil
	}
	src, err := util.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	extra, err := ParseProfiles(path, src)
	if err != nil {
		return nil, err
	}
	for name, p := range extra {
		profiles[name] = p
	}
	return profiles, nil
}

// ProfileNames lists profile names in sorted order.
func ProfileNames(profiles map[string]*Profile) []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (p *Profile) validate() error {
	switch p.Format {
	case FormatLines, FormatTree:
		return nil
	case FormatColumns:
		for _, r := range p.Ranks {
			if r.Column <= 0 {
				return fmt.Errorf("rank %s: column must be 1 or more", r.Rank)
			}
		}
	case FormatJSON, FormatSQLite:
		for _, r := range p.Ranks {
			if r.Field == "" {
				return fmt.Errorf("rank %s: field is required", r.Rank)
			}
		}
	default:
		return fmt.Errorf("unknown format %q", p.Format)
	}
	if len(p.Ranks) == 0 {
		return fmt.Errorf("format %s needs at least one rank block", p.Format)
	}
	for _, r := range p.Ranks {
		if _, err := taxon.ParseRank(r.Rank); err != nil {
			return err
		}
	}
	return nil
}

// rankOf returns the parsed rank of a validated field.
func (f *RankField) rankOf() taxon.Rank {
	r, _ := taxon.ParseRank(f.Rank)
	return r
}

// language resolves a header cell to a language code.
func (p *Profile) language(header string) string {
	header = strings.TrimSpace(header)
	if code, ok := p.Languages[header]; ok {
		return code
	}
	return strings.ToLower(header)
}

func (p *Profile) delimiter() rune {
	if p.Delimiter == "" {
		return ','
	}
	if p.Delimiter == `\t` {
		return '\t'
	}
	return []rune(p.Delimiter)[0]
}

var truthy = map[string]bool{"true": true, "1": true, "yes": true, "y": true, "x": true, "ja": true, "j": true}

func (e *ExtinctField) matches(v string) bool {
	v = strings.TrimSpace(v)
	if e.Value != "" {
		return strings.EqualFold(v, e.Value)
	}
	return truthy[strings.ToLower(v)]
}
