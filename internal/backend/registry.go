// Package backend maps logical table names to physical row sources in a
// clinical data warehouse.
//
// A Source is either a physical table whose columns may carry a physical
// source name (aliased back to the logical name), or an inline query whose
// result columns already use logical names. Every source exposes a
// patient_id column.
//
// Registries are immutable after construction and safe for concurrent use.
package backend

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// PatientID is the key column every source exposes.
const PatientID = "patient_id"

// Names the compiler introduces during row selection. Sources may not use
// them as table or column names.
const (
	RowNumberColumn = "_row_num"
	RankedAlias     = "_ranked"
)

func isReserved(name string) bool {
	return strings.EqualFold(name, RowNumberColumn) || strings.EqualFold(name, RankedAlias)
}

// Column types accepted in backend definitions.
var columnTypes = []string{"int", "float", "boolean", "date", "datetime", "code", "categorical", "string"}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Column is one logical column of a source.
type Column struct {
	Name   string `yaml:"name" json:"name"`
	Type   string `yaml:"type" json:"type"`
	Source string `yaml:"source,omitempty" json:"source,omitempty"` // physical name; defaults to Name
	System string `yaml:"system,omitempty" json:"system,omitempty"` // coding system of code columns
}

// PhysicalName returns the column's name in the physical table.
func (c Column) PhysicalName() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Name
}

// Source describes how to read one logical table.
type Source struct {
	Name    string   `yaml:"name" json:"name"`
	Table   string   `yaml:"source,omitempty" json:"source,omitempty"` // physical table; defaults to Name
	Query   string   `yaml:"query,omitempty" json:"query,omitempty"`   // inline query text; excludes Table
	Columns []Column `yaml:"columns" json:"columns"`
}

// IsQuery reports whether the source is an inline query.
func (s *Source) IsQuery() bool {
	return s.Query != ""
}

// PhysicalTable returns the physical table name.
func (s *Source) PhysicalTable() string {
	if s.Table != "" {
		return s.Table
	}
	return s.Name
}

// Column looks up a logical column.
func (s *Source) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the logical column names in declaration order.
func (s *Source) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Registry resolves logical table names.
type Registry struct {
	name    string
	order   []string
	sources map[string]*Source
}

// NewRegistry validates the given sources and returns a registry. A
// patient_id column is prepended to any source that does not declare one.
func NewRegistry(name string, sources ...Source) (*Registry, error) {
	r := &Registry{
		name:    name,
		sources: make(map[string]*Source, len(sources)),
	}

	for _, src := range sources {
		if err := validateSource(src); err != nil {
			return nil, fmt.Errorf("backend %s: %w", name, err)
		}
		if _, dup := r.sources[src.Name]; dup {
			return nil, fmt.Errorf("backend %s: duplicate table %q", name, src.Name)
		}

		s := src
		s.Columns = slices.Clone(src.Columns)
		if _, ok := s.Column(PatientID); !ok {
			s.Columns = append([]Column{{Name: PatientID, Type: "int"}}, s.Columns...)
		}
		r.sources[s.Name] = &s
		r.order = append(r.order, s.Name)
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error. Used for builtin
// backends.
func MustRegistry(name string, sources ...Source) *Registry {
	r, err := NewRegistry(name, sources...)
	if err != nil {
		panic(err)
	}
	return r
}

// Name returns the backend name.
func (r *Registry) Name() string {
	return r.name
}

// Tables returns the logical table names in declaration order.
func (r *Registry) Tables() []string {
	return slices.Clone(r.order)
}

// Resolve returns a copy of the source for a logical table name; changes to
// it do not reach the registry. Unknown names fail with a
// *TableNotFoundError.
func (r *Registry) Resolve(name string) (*Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, &TableNotFoundError{Table: name, Backend: r.name}
	}
	src := *s
	src.Columns = slices.Clone(s.Columns)
	return &src, nil
}

func validateSource(s Source) error {
	if s.Name == "" {
		return errors.New("table with empty name")
	}
	if !identRe.MatchString(s.Name) {
		return fmt.Errorf("table %q: name must be an identifier", s.Name)
	}
	if isReserved(s.Name) {
		return fmt.Errorf("table %q: name is reserved", s.Name)
	}
	if s.Table != "" && s.Query != "" {
		return fmt.Errorf("table %q: source and query are mutually exclusive", s.Name)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("table %q: no columns", s.Name)
	}

	seen := make(map[string]bool)
	for _, c := range s.Columns {
		if !identRe.MatchString(c.Name) {
			return fmt.Errorf("table %q: column %q: name must be an identifier", s.Name, c.Name)
		}
		if isReserved(c.Name) {
			return fmt.Errorf("table %q: column %q: name is reserved", s.Name, c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %q: duplicate column %q", s.Name, c.Name)
		}
		seen[c.Name] = true
		if !slices.Contains(columnTypes, c.Type) {
			return fmt.Errorf("table %q: column %q: unknown type %q", s.Name, c.Name, c.Type)
		}
		if s.Query != "" && c.Source != "" {
			return fmt.Errorf("table %q: column %q: query tables cannot alias columns", s.Name, c.Name)
		}
	}
	return nil
}

// TableNotFoundError reports a logical table the backend does not define.
type TableNotFoundError struct {
	Table   string
	Backend string
}

func (e *TableNotFoundError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("unknown table '%s'", e.Table)
	}
	return fmt.Sprintf("unknown table '%s' in backend %s", e.Table, e.Backend)
}

// IsTableNotFound returns true if err is or wraps a *TableNotFoundError.
func IsTableNotFound(err error) bool {
	var tnf *TableNotFoundError
	return errors.As(err, &tnf)
}

// ColumnNotFoundError reports a column a source does not define.
type ColumnNotFoundError struct {
	Table  string
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("unknown column '%s' in table '%s'", e.Column, e.Table)
}
