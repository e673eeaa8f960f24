package redshift

import (
	"log/slog"

	"github.com/leapstack-labs/dwhetl/pkg/adapter"
)

// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/dwhetl/pkg/adapters/redshift"
func init() {
	adapter.Register(adapter.Target{
		Name:   "redshift",
		Remote: true,
		New:    func(logger *slog.Logger) adapter.Adapter { return New(logger) },
	})
}
