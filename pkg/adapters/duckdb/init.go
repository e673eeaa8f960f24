package duckdb

import (
	"log/slog"

	"github.com/leapstack-labs/dwhetl/pkg/adapter"
)

// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/dwhetl/pkg/adapters/duckdb"
func init() {
	adapter.Register(adapter.Target{
		Name:   "duckdb",
		Remote: false,
		New:    func(logger *slog.Logger) adapter.Adapter { return New(logger) },
	})
}
