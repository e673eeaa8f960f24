// Package redshift provides the Amazon Redshift warehouse adapter for dwhetl.
//
// Redshift speaks the PostgreSQL wire protocol, so the adapter connects
// through the pgx database/sql driver.
package redshift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/leapstack-labs/dwhetl/pkg/adapter"
)

// DefaultPort is the port Redshift clusters listen on unless configured otherwise.
const DefaultPort = 5439

// SQLSTATE codes that mean the referenced object is missing.
var notExistCodes = map[string]bool{
	"42P01": true, // undefined_table
	"42704": true, // undefined_object
	"3F000": true, // invalid_schema_name
}

// Adapter implements the adapter.Adapter interface for Redshift.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new Redshift adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "redshift"
}

// Connect establishes a connection to the cluster endpoint.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	a.Logger.Debug("connecting to redshift",
		slog.String("host", cfg.Host),
		slog.Int("port", portOrDefault(cfg.Port)),
		slog.String("database", cfg.Database))

	if err := a.Open("pgx", buildDSN(cfg)); err != nil {
		return err
	}

	if err := a.DB.PingContext(ctx); err != nil {
		_ = a.DB.Close()
		a.DB = nil
		return fmt.Errorf("failed to connect to redshift at %s:%d: %w", cfg.Host, portOrDefault(cfg.Port), err)
	}

	a.Cfg = cfg
	return nil
}

// IsNotExist reports whether err carries a SQLSTATE for a missing object.
func (a *Adapter) IsNotExist(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return notExistCodes[pgErr.Code]
	}
	return false
}

// buildDSN constructs a key=value connection string.
//
// Redshift rejects the extended protocol's statement cache in some
// configurations, so the simple protocol is the default exec mode.
func buildDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	opts := map[string]string{
		"sslmode":                 "require",
		"default_query_exec_mode": "simple_protocol",
	}
	for k, v := range cfg.Options {
		opts[k] = v
	}

	dsn := fmt.Sprintf("host=%s port=%d", quoteDSNValue(host), portOrDefault(cfg.Port))
	if cfg.Database != "" {
		dsn += fmt.Sprintf(" dbname=%s", quoteDSNValue(cfg.Database))
	}
	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", quoteDSNValue(cfg.Username))
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", quoteDSNValue(cfg.Password))
	}
	if cfg.Schema != "" {
		opts["search_path"] = cfg.Schema
	}

	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		dsn += fmt.Sprintf(" %s=%s", k, quoteDSNValue(opts[k]))
	}

	return dsn
}

func portOrDefault(port int) int {
	if port == 0 {
		return DefaultPort
	}
	return port
}

// quoteDSNValue quotes values containing spaces or quotes per libpq rules.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
