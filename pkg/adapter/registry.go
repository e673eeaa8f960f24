package adapter

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Factory builds an unconnected adapter. A nil logger means discard.
type Factory func(logger *slog.Logger) Adapter

// Target describes a warehouse type selectable through target.type.
type Target struct {
	Name string
	// Remote targets are reached over the network and need host credentials.
	Remote bool
	New    Factory
}

var (
	targetsMu sync.RWMutex
	targets   = map[string]Target{}
)

// Register makes a target available by name. Adapter packages call it from
// init; registering an empty or duplicate name panics.
func Register(t Target) {
	if t.Name == "" || t.New == nil {
		panic("adapter: Register requires a name and a factory")
	}

	targetsMu.Lock()
	defer targetsMu.Unlock()
	if _, dup := targets[t.Name]; dup {
		panic("adapter: target registered twice: " + t.Name)
	}
	targets[t.Name] = t
}

// Lookup returns the registered target with the given name.
func Lookup(name string) (Target, bool) {
	targetsMu.RLock()
	defer targetsMu.RUnlock()
	t, ok := targets[name]
	return t, ok
}

// TargetNames lists registered target names in sorted order.
func TargetNames() []string {
	targetsMu.RLock()
	defer targetsMu.RUnlock()
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewAdapter builds the adapter for cfg.Type without connecting it.
func NewAdapter(cfg Config, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("target.type is not set")
	}

	t, ok := Lookup(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: TargetNames()}
	}
	return t.New(logger), nil
}

// UnknownAdapterError reports a target.type no adapter registered.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown target type %q (available: %s)", e.Type, strings.Join(e.Available, ", "))
}
