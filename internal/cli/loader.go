package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"
	"github.com/rs/zerolog"

	"github.com/roach88/cohortql/internal/backend"
	"github.com/roach88/cohortql/internal/queryir"
	"github.com/roach88/cohortql/internal/querysql"
	"github.com/roach88/cohortql/internal/serialize"
	"github.com/roach88/cohortql/internal/store"
)

// LoadError represents an error that occurred while loading a definition,
// a backend or a dialect.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position of backend errors, if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Definition is a decoded definition file.
type Definition struct {
	Path     string
	Portable *serialize.Portable
	Cohort   *queryir.Cohort
}

// Hash returns the definition's content hash.
func (d *Definition) Hash() (string, error) {
	return d.Portable.Hash()
}

// LoadDefinition reads and decodes a portable definition file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definition not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}

	var p serialize.Portable
	if err := p.UnmarshalJSON(data); err != nil {
		return nil, &LoadError{Code: ErrCodeDecodeFailed, Message: fmt.Sprintf("%s: %v", path, err)}
	}
	cohort, err := serialize.FromPortable(&p)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeDecodeFailed, Message: fmt.Sprintf("%s: %v", path, err)}
	}
	return &Definition{Path: path, Portable: &p, Cohort: cohort}, nil
}

// LoadBackend resolves a builtin backend or loads a backend file.
func LoadBackend(nameOrPath string) (*backend.Registry, error) {
	r, err := backend.Resolve(nameOrPath)
	if err != nil {
		loadErr := &LoadError{Code: ErrCodeBackendFailed, Message: err.Error()}
		var be *backend.LoadError
		if errors.As(err, &be) {
			loadErr.Pos = be.Pos
		}
		return nil, loadErr
	}
	return r, nil
}

// newCompiler builds a compiler for the configured backend and dialect.
func (o *RootOptions) newCompiler() (*querysql.Compiler, error) {
	registry, err := LoadBackend(o.backendName())
	if err != nil {
		return nil, err
	}
	dialect, err := querysql.DialectByName(o.dialectName())
	if err != nil {
		return nil, &LoadError{Code: ErrCodeDialect, Message: err.Error()}
	}
	return querysql.NewCompiler(registry, dialect, querysql.WithLogger(o.Logger())), nil
}

// target returns the names compilations are recorded under: the
// configured backend's own name and the dialect's canonical name.
func (o *RootOptions) target() (string, string, error) {
	registry, err := LoadBackend(o.backendName())
	if err != nil {
		return "", "", err
	}
	dialect, err := querysql.DialectByName(o.dialectName())
	if err != nil {
		return "", "", &LoadError{Code: ErrCodeDialect, Message: err.Error()}
	}
	return registry.Name(), dialect.Name, nil
}

// openStore opens the configured definition store.
func (o *RootOptions) openStore() (*store.Store, error) {
	path := o.Config.DB
	if path == "" {
		path = "cohortql.db"
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: err.Error()}
	}
	return st, nil
}

func (o *RootOptions) backendName() string {
	if o.Config.Backend == "" {
		return backend.TPPName
	}
	return o.Config.Backend
}

func (o *RootOptions) dialectName() string {
	if o.Config.Dialect == "" {
		return querysql.DefaultDialect.Name
	}
	return o.Config.Dialect
}

// Logger returns the configured logger; commands run outside the root
// command log nothing.
func (o *RootOptions) Logger() zerolog.Logger {
	return o.logger
}

// compileAndValidate validates a definition and compiles it.
func compileAndValidate(c *querysql.Compiler, def *Definition) (*querysql.Plan, error) {
	if err := queryir.Validate(def.Cohort); err != nil {
		return nil, err
	}
	return c.Plan(def.Cohort)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeReadFailed    = "E002" // File read error
	ErrCodeDecodeFailed  = "E003" // Portable definition could not be decoded
	ErrCodeBackendFailed = "E004" // Backend could not be resolved or loaded
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeDialect       = "E006" // Unknown dialect
	ErrCodeWriteFailed   = "E007" // File write error

	// Definition errors
	ErrCodeInvalidDefinition = "E101" // Validation violations
	ErrCodeInvariant         = "E102" // Malformed graph reached the compiler
	ErrCodeTableNotFound     = "E103" // Table not defined by the backend
	ErrCodeColumnNotFound    = "E104" // Column not defined by the source
	ErrCodeCodelistSystem    = "E105" // Code list system differs from the column's

	// Store errors
	ErrCodeStore         = "E201" // Store could not be opened or queried
	ErrCodeStoreNotFound = "E202" // Name, revision or compilation not stored
)

// ErrorCode maps an error to a CLI error code.
func ErrorCode(err error) string {
	var (
		loadErr *LoadError
		tnf     *backend.TableNotFoundError
		cnf     *backend.ColumnNotFoundError
		cse     *querysql.CodelistSystemError
	)
	switch {
	case errors.As(err, &loadErr):
		return loadErr.Code
	case errors.As(err, &tnf):
		return ErrCodeTableNotFound
	case errors.As(err, &cnf):
		return ErrCodeColumnNotFound
	case errors.As(err, &cse):
		return ErrCodeCodelistSystem
	case queryir.IsValidationError(err):
		return ErrCodeInvalidDefinition
	case querysql.IsInvariantError(err):
		return ErrCodeInvariant
	case serialize.IsDecodeError(err):
		return ErrCodeDecodeFailed
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeStoreNotFound
	default:
		return ErrCodeGeneric
	}
}

// errorMessage strips the code prefix LoadError adds to its own message.
func errorMessage(err error) string {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Message
	}
	return err.Error()
}

// validationDetails lists violations for JSON error details.
func validationDetails(err error) any {
	var ve *queryir.ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	msgs := make([]string, len(ve.Violations))
	for i, v := range ve.Violations {
		msgs[i] = v.String()
	}
	return msgs
}
