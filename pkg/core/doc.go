// Package core defines the shared language of dwhetl.
//
// This package contains:
//   - Connection settings for warehouse adapters (AdapterConfig, Rows)
//   - Run bookkeeping entities (Run, StepRun and their statuses)
//   - The Store interface implemented by internal/state
//
// The Golden Rule: pkg/core imports only the standard library.
// All other packages depend on core, not the reverse.
package core
