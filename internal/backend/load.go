package backend

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE []byte

// LoadError reports a backend definition file that could not be loaded.
type LoadError struct {
	Path    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Load reads a backend definition, choosing the format by file extension:
// .cue files are unified with the embedded schema, .yaml and .yml files are
// decoded strictly.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backend: %w", err)
	}

	switch filepath.Ext(path) {
	case ".cue":
		return LoadCUE(path, data)
	case ".yaml", ".yml":
		return LoadYAML(path, data)
	default:
		return nil, &LoadError{Path: path, Message: "unsupported backend file extension (want .cue, .yaml or .yml)"}
	}
}

// Resolve returns the builtin backend called nameOrPath, or loads it from a
// file when no builtin matches.
func Resolve(nameOrPath string) (*Registry, error) {
	if r, ok := Builtin(nameOrPath); ok {
		return r, nil
	}
	if _, err := os.Stat(nameOrPath); err != nil {
		return nil, fmt.Errorf("backend %q is neither builtin nor a readable file: %w", nameOrPath, err)
	}
	return Load(nameOrPath)
}

// LoadCUE builds a registry from CUE source. Table and column order follow
// declaration order in the file.
//
//	name: "custom"
//	tables: events: {
//		source: "Events"
//		columns: code: {type: "code", source: "Code", system: "ctv3"}
//	}
func LoadCUE(path string, data []byte) (*Registry, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile embedded schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(path, err)
	}

	backend := schema.LookupPath(cue.ParsePath("#Backend")).Unify(v)
	if err := backend.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(path, err)
	}

	name, err := backend.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return nil, formatCUEError(path, err)
	}

	iter, err := backend.LookupPath(cue.ParsePath("tables")).Fields()
	if err != nil {
		return nil, formatCUEError(path, err)
	}

	var sources []Source
	for iter.Next() {
		src, err := decodeCUETable(iter.Label(), iter.Value())
		if err != nil {
			return nil, formatCUEError(path, err)
		}
		sources = append(sources, src)
	}

	r, err := NewRegistry(name, sources...)
	if err != nil {
		return nil, &LoadError{Path: path, Message: err.Error()}
	}
	return r, nil
}

func decodeCUETable(name string, v cue.Value) (Source, error) {
	var header struct {
		Source string `json:"source"`
		Query  string `json:"query"`
	}
	if err := v.Decode(&header); err != nil {
		return Source{}, err
	}

	src := Source{Name: name, Table: header.Source, Query: header.Query}

	iter, err := v.LookupPath(cue.ParsePath("columns")).Fields()
	if err != nil {
		return Source{}, err
	}
	for iter.Next() {
		var col Column
		if err := iter.Value().Decode(&col); err != nil {
			return Source{}, err
		}
		col.Name = iter.Label()
		src.Columns = append(src.Columns, col)
	}
	return src, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(path string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Path: path, Message: err.Error()}
	}

	first := errs[0]
	loadErr := &LoadError{Path: path, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		loadErr.Pos = positions[0]
	}
	return loadErr
}

// yamlBackend is the on-disk YAML layout. Tables and columns are lists so
// declaration order survives decoding.
type yamlBackend struct {
	Name   string   `yaml:"name"`
	Tables []Source `yaml:"tables"`
}

// LoadYAML builds a registry from YAML source. Unknown keys are rejected.
//
//	name: custom
//	tables:
//	  - name: events
//	    source: Events
//	    columns:
//	      - {name: code, type: code, source: Code, system: ctv3}
func LoadYAML(path string, data []byte) (*Registry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc yamlBackend
	if err := dec.Decode(&doc); err != nil {
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("parse yaml: %v", err)}
	}
	if doc.Name == "" {
		return nil, &LoadError{Path: path, Message: "name is required"}
	}

	r, err := NewRegistry(doc.Name, doc.Tables...)
	if err != nil {
		return nil, &LoadError{Path: path, Message: err.Error()}
	}
	return r, nil
}

// IsLoadError returns true if err is or wraps a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
