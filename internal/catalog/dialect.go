package catalog

import (
	"fmt"
	"strings"
	"text/template"
)

// Dialect supplies the SQL fragments that differ between warehouses.
type Dialect struct {
	Name string
	// IdentityColumn is the column definition of the fact table's surrogate key.
	IdentityColumn string
	// epoch converts a millisecond epoch column to a TIMESTAMP truncated to
	// whole seconds.
	epoch func(col string) string
}

// Epoch renders the millisecond-epoch to timestamp conversion for col.
func (d Dialect) Epoch(col string) string {
	return d.epoch(col)
}

// SongplaySequence backs songplay_id on dialects without IDENTITY columns.
const SongplaySequence = "songplays_songplay_id_seq"

var dialects = map[string]Dialect{
	"redshift": {
		Name:           "redshift",
		IdentityColumn: "BIGINT IDENTITY(0,1)",
		epoch: func(col string) string {
			return fmt.Sprintf("TIMESTAMP 'epoch' + (%s / 1000) * INTERVAL '1 second'", col)
		},
	},
	"duckdb": {
		Name:           "duckdb",
		IdentityColumn: fmt.Sprintf("BIGINT DEFAULT nextval('%s')", SongplaySequence),
		epoch: func(col string) string {
			return fmt.Sprintf("epoch_ms(%s - %s %% 1000)", col, col)
		},
	},
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, fmt.Errorf("no statement dialect for adapter %q", name)
	}
	return d, nil
}

// quote renders s as a single-quoted SQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// placeholderFuncs lets templates parse before a dialect is chosen. Render
// replaces them with the dialect's functions.
var placeholderFuncs = template.FuncMap{
	"quote":    quote,
	"epoch":    func(string) string { return "" },
	"identity": func() string { return "" },
}

func (d Dialect) funcs() template.FuncMap {
	return template.FuncMap{
		"quote":    quote,
		"epoch":    d.Epoch,
		"identity": func() string { return d.IdentityColumn },
	}
}
