package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingParam is returned when a copy statement lacks a required parameter.
var ErrMissingParam = errors.New("missing required parameter")

// Params are the infrastructure identifiers substituted into copy statements.
type Params struct {
	// EventsPath locates the event-log files (s3:// prefix or local glob).
	EventsPath string
	// EventsJSONPaths is the field-mapping descriptor for the event logs.
	// Empty means keys are matched to column names.
	EventsJSONPaths string
	// SongsPath locates the song-catalog files.
	SongsPath string
	// IAMRoleARN authorizes the warehouse to read from object storage.
	IAMRoleARN string
	// Region of the source bucket.
	Region string
}

func (p Params) lookup(field string) (string, error) {
	switch field {
	case "EventsPath":
		return p.EventsPath, nil
	case "EventsJSONPaths":
		return p.EventsJSONPaths, nil
	case "SongsPath":
		return p.SongsPath, nil
	case "IAMRoleARN":
		return p.IAMRoleARN, nil
	case "Region":
		return p.Region, nil
	}
	return "", fmt.Errorf("unknown parameter %q", field)
}

// Rendered is a statement with its final SQL text.
type Rendered struct {
	Statement Statement
	SQL       string
}

// Render produces the SQL of every statement of kind k that applies to the
// dialect, in sequence order.
func (c *Catalog) Render(k Kind, dialect Dialect, params Params) ([]Rendered, error) {
	var out []Rendered
	for _, s := range c.Sequence(k) {
		if !s.AppliesTo(dialect.Name) {
			continue
		}
		sql, err := s.Render(dialect, params)
		if err != nil {
			return nil, err
		}
		out = append(out, Rendered{Statement: s, SQL: sql})
	}
	return out, nil
}

// Render executes the statement's template for dialect.
func (s Statement) Render(dialect Dialect, params Params) (string, error) {
	for _, field := range s.Requires {
		v, err := params.lookup(field)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("%w: %s statement %s needs %s", ErrMissingParam, s.Kind, s.Name, field)
		}
	}

	if s.tmpl == nil {
		return "", fmt.Errorf("statement %s was not built by catalog.New", s.Name)
	}
	t, err := s.tmpl.Clone()
	if err != nil {
		return "", &TemplateError{Statement: s.Name, Err: err}
	}

	var b strings.Builder
	if err := t.Funcs(dialect.funcs()).Execute(&b, params); err != nil {
		return "", &TemplateError{Statement: s.Name, Err: err}
	}
	return strings.TrimSpace(b.String()), nil
}

// TemplateError reports a statement template that failed to parse or execute.
type TemplateError struct {
	Statement string
	Err       error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("statement %s: template error: %v", e.Statement, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }
