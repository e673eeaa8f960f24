// Package adapter provides the warehouse connection contract used by the
// dwhetl pipeline.
//
// Concrete adapter implementations are in pkg/adapters/ subdirectories and
// register themselves by name in their init() functions.
package adapter

import (
	"context"

	"github.com/leapstack-labs/dwhetl/pkg/core"
)

type (
	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Rows is an alias for core.Rows.
	Rows = core.Rows
)

// Execer executes a single statement and reports the rows it affected.
type Execer interface {
	Exec(ctx context.Context, sql string) (int64, error)
}

// Adapter defines the interface that all warehouse adapters must implement.
// An adapter owns exactly one connection and is used serially.
type Adapter interface {
	Execer

	// Connect establishes the connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Execer) error) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// CountRows returns the number of rows in a table.
	CountRows(ctx context.Context, table string) (int64, error)

	// DialectName names the SQL dialect the statement catalog renders for.
	DialectName() string

	// IsNotExist reports whether err means the referenced object is missing.
	IsNotExist(err error) bool
}
