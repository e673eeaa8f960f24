// Package catalog holds every SQL statement dwhetl runs against the
// warehouse: the drop, create, copy, truncate and insert sequences that turn
// staged event logs and the song catalog into the songplays star schema.
//
// Statements are text/template sources. Infrastructure identifiers (source
// paths, the IAM role, the region) are parameters and never appear in the
// templates themselves.
package catalog

import (
	"slices"
	"text/template"
)

// Kind identifies the sequence a statement belongs to.
type Kind string

// Statement kinds, in the order a full reset-and-load applies them.
const (
	KindDrop     Kind = "drop"
	KindCreate   Kind = "create"
	KindTruncate Kind = "truncate"
	KindCopy     Kind = "copy"
	KindInsert   Kind = "insert"
)

// Kinds lists every statement kind in execution order.
var Kinds = []Kind{KindDrop, KindCreate, KindTruncate, KindCopy, KindInsert}

// ParseKind validates a sequence name.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	return k, slices.Contains(Kinds, k)
}

// Table names.
const (
	TableStagingEvents = "staging_events"
	TableStagingSongs  = "staging_songs"
	TableSongplays     = "songplays"
	TableUsers         = "users"
	TableSongs         = "songs"
	TableArtists       = "artists"
	TableTime          = "time"
)

// External sources that feed the staging tables.
const (
	SourceEvents = "source.log_data"
	SourceSongs  = "source.song_data"
)

// Statement is one SQL statement in a sequence.
type Statement struct {
	Name string
	Kind Kind
	// Table is the table the statement writes or defines.
	Table string
	// Reads lists the tables or sources the statement reads.
	Reads []string
	// Dialects restricts the statement to the named dialects. Empty means all.
	Dialects []string
	// Requires lists the Params fields a copy statement cannot run without.
	Requires []string
	// Template is the text/template source of the SQL.
	Template string

	tmpl *template.Template
}

// AppliesTo reports whether the statement runs under dialect.
func (s Statement) AppliesTo(dialect string) bool {
	return len(s.Dialects) == 0 || slices.Contains(s.Dialects, dialect)
}

// Catalog is an ordered, immutable set of statements.
type Catalog struct {
	statements []Statement
}

// New builds a catalog from statements, parsing every template up front.
func New(statements []Statement) (*Catalog, error) {
	parsed := make([]Statement, len(statements))
	for i, s := range statements {
		t, err := template.New(s.Name).Funcs(placeholderFuncs).Option("missingkey=error").Parse(s.Template)
		if err != nil {
			return nil, &TemplateError{Statement: s.Name, Err: err}
		}
		s.tmpl = t
		parsed[i] = s
	}
	return &Catalog{statements: parsed}, nil
}

// Default returns the star schema catalog.
func Default() *Catalog {
	c, err := New(defaultStatements())
	if err != nil {
		panic(err)
	}
	return c
}

// Sequence returns the statements of kind k in execution order, across all
// dialects.
func (c *Catalog) Sequence(k Kind) []Statement {
	var out []Statement
	for _, s := range c.statements {
		if s.Kind == k {
			out = append(out, s)
		}
	}
	return out
}

// Drops returns the drop sequence.
func (c *Catalog) Drops() []Statement { return c.Sequence(KindDrop) }

// Creates returns the create sequence.
func (c *Catalog) Creates() []Statement { return c.Sequence(KindCreate) }

// Truncates returns the truncate sequence.
func (c *Catalog) Truncates() []Statement { return c.Sequence(KindTruncate) }

// Copies returns the copy sequence.
func (c *Catalog) Copies() []Statement { return c.Sequence(KindCopy) }

// Inserts returns the insert sequence. The order is fixed: the fact table
// first, then users, songs, artists and time.
func (c *Catalog) Inserts() []Statement { return c.Sequence(KindInsert) }

// StagingTables returns the tables the copy sequence loads, in order.
func (c *Catalog) StagingTables() []string {
	var out []string
	for _, s := range c.Copies() {
		if !slices.Contains(out, s.Table) {
			out = append(out, s.Table)
		}
	}
	return out
}

// Tables returns every table the create sequence defines, in order.
func (c *Catalog) Tables() []string {
	var out []string
	for _, s := range c.Creates() {
		if s.Table != "" && !slices.Contains(out, s.Table) {
			out = append(out, s.Table)
		}
	}
	return out
}

// TableRef returns the SQL reference for a table, quoting names that collide
// with reserved words.
func TableRef(table string) string {
	if table == TableTime {
		return `"time"`
	}
	return table
}
