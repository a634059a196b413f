package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentic-research/taxa/internal/taxon"
)

// Mode selects how much a run may change the store.
type Mode int

const (
	// Validate only reports.
	Validate Mode = iota
	// Create adds missing taxa and names and syncs fields, but leaves
	// misplaced records where they are.
	Create
	// FullSync also moves misplaced records under their input parent.
	FullSync
)

// ParseMode accepts "validate", "create" and "full-sync".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "validate", "readonly", "check":
		return Validate, nil
	case "create":
		return Create, nil
	case "full-sync", "fullsync", "sync":
		return FullSync, nil
	}
	return Validate, fmt.Errorf("unknown reconcile mode %q", s)
}

func (m Mode) String() string {
	switch m {
	case Create:
		return "create"
	case FullSync:
		return "full-sync"
	default:
		return "validate"
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Kind classifies a finding.
type Kind string

const (
	KindMissing      Kind = "missing"
	KindCreated      Kind = "created"
	KindConflict     Kind = "structure-conflict"
	KindReparented   Kind = "reparented"
	KindUpdated      Kind = "updated"
	KindNewName      Kind = "new-name"
	KindNameChanged  Kind = "name-changed"
	KindNameUnlisted Kind = "name-unlisted"
	KindSkipped      Kind = "skipped"
	KindUnlisted     Kind = "unlisted"
	KindError        Kind = "error"
)

// Finding is one outcome of a run, attached to a taxon.
type Finding struct {
	Kind    Kind       `json:"kind" yaml:"kind"`
	Rank    taxon.Rank `json:"rank" yaml:"rank"`
	Latin   string     `json:"latin" yaml:"latin"`
	ID      int64      `json:"id,omitempty" yaml:"id,omitempty"`
	Lang    string     `json:"lang,omitempty" yaml:"lang,omitempty"`
	Field   string     `json:"field,omitempty" yaml:"field,omitempty"`
	Before  string     `json:"before,omitempty" yaml:"before,omitempty"`
	After   string     `json:"after,omitempty" yaml:"after,omitempty"`
	Applied bool       `json:"applied" yaml:"applied"`
	Err     string     `json:"error,omitempty" yaml:"error,omitempty"`
}

func (f Finding) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", f.Kind, f.Rank.Code(), f.Latin)
	if f.Lang != "" {
		fmt.Fprintf(&b, " [%s]", f.Lang)
	}
	if f.Field != "" {
		fmt.Fprintf(&b, " %s", f.Field)
	}
	if f.Before != "" || f.After != "" {
		fmt.Fprintf(&b, ": %q -> %q", f.Before, f.After)
	}
	if f.Err != "" {
		fmt.Fprintf(&b, ": %s", f.Err)
	}
	return b.String()
}

// Counter tallies one rank or language.
type Counter struct {
	Seen    int `json:"seen" yaml:"seen"`
	Created int `json:"created" yaml:"created"`
	Updated int `json:"updated" yaml:"updated"`
}

// Totals holds the per-rank and per-language counters of a run.
type Totals struct {
	Ranks     [taxon.RankCount]Counter `json:"ranks" yaml:"ranks"`
	Languages map[string]*Counter      `json:"languages" yaml:"languages"`
}

func (t *Totals) lang(code string) *Counter {
	if t.Languages == nil {
		t.Languages = map[string]*Counter{}
	}
	c, ok := t.Languages[code]
	if !ok {
		c = &Counter{}
		t.Languages[code] = c
	}
	return c
}

// LanguageCodes returns the counted languages in sorted order.
func (t *Totals) LanguageCodes() []string {
	out := make([]string, 0, len(t.Languages))
	for k := range t.Languages {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Report is the result of one reconcile run.
type Report struct {
	RunID    string    `json:"run_id" yaml:"run_id"`
	Mode     Mode      `json:"mode" yaml:"mode"`
	Root     string    `json:"root" yaml:"root"`
	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished" yaml:"finished"`
	Findings []Finding `json:"findings" yaml:"findings"`
	Totals   Totals    `json:"totals" yaml:"totals"`
}

// Count returns the number of findings of kind k.
func (r *Report) Count(k Kind) int {
	n := 0
	for _, f := range r.Findings {
		if f.Kind == k {
			n++
		}
	}
	return n
}

// Filter returns the findings of the given kinds.
func (r *Report) Filter(kinds ...Kind) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		for _, k := range kinds {
			if f.Kind == k {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// HasErrors reports whether any store operation failed.
func (r *Report) HasErrors() bool { return r.Count(KindError) > 0 }

func (r *Report) add(f Finding) { r.Findings = append(r.Findings, f) }
