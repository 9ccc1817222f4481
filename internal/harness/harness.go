package harness

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/roach88/cohortql/internal/backend"
	"github.com/roach88/cohortql/internal/ir"
	"github.com/roach88/cohortql/internal/queryir"
	"github.com/roach88/cohortql/internal/querysql"
	"github.com/roach88/cohortql/internal/serialize"
)

// Option configures a run.
type Option func(*runner)

// WithLogger sets the logger passed to the compiler and used for run
// events. Runs are silent by default.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *runner) {
		r.logger = logger
	}
}

type runner struct {
	logger zerolog.Logger
}

// Run executes a scenario and returns the result.
//
// Each run compiles the definition with the SQLite dialect and executes it
// against a fresh in-memory database holding only the scenario's fixtures.
// All statements run on one connection because SQLite temp tables are per
// connection.
//
// Execution flow:
// 1. Load the backend and the portable definition
// 2. Validate and compile (or match the expected error)
// 3. Load fixtures and execute every statement
// 4. Compare the result with Expect and evaluate assertions
//
// A returned error means the scenario could not be run at all; failed
// expectations are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	r := &runner{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	logger := r.logger.With().Str("scenario", scenario.Name).Logger()

	registry, err := backend.Resolve(scenario.Backend)
	if err != nil {
		return nil, fmt.Errorf("load backend: %w", err)
	}

	data, err := os.ReadFile(scenario.Definition)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	cohort, err := serialize.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}

	result := NewResult()
	stmts, err := compile(cohort, registry, logger)
	if scenario.ExpectError != "" {
		result.Err = err
		if err == nil {
			result.AddError(fmt.Sprintf("expected %s error, compilation succeeded", scenario.ExpectError))
		} else if kind := errorKind(err); kind != scenario.ExpectError {
			result.AddError(fmt.Sprintf("expected %s error, got %s: %v", scenario.ExpectError, kind, err))
		}
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	result.Statements = stmts

	if err := execute(ctx, scenario.Fixtures, stmts, result); err != nil {
		return nil, err
	}
	logger.Debug().
		Int("statements", len(stmts)).
		Int("rows", len(result.Rows)).
		Msg("executed scenario")

	if scenario.Expect != nil {
		for _, msg := range compareExpect(scenario.Expect, result) {
			result.AddError(msg)
		}
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func compile(cohort *queryir.Cohort, registry *backend.Registry, logger zerolog.Logger) ([]string, error) {
	if err := queryir.Validate(cohort); err != nil {
		return nil, err
	}
	c := querysql.NewCompiler(registry, querysql.SQLite, querysql.WithLogger(logger))
	return c.Compile(cohort)
}

// errorKind classifies a compile error into a Scenario.ExpectError kind.
func errorKind(err error) string {
	var (
		tnf *backend.TableNotFoundError
		cnf *backend.ColumnNotFoundError
		cse *querysql.CodelistSystemError
	)
	switch {
	case errors.As(err, &tnf):
		return ErrorTableNotFound
	case errors.As(err, &cnf):
		return ErrorColumnNotFound
	case errors.As(err, &cse):
		return ErrorCodelistSystem
	case queryir.IsValidationError(err):
		return ErrorValidation
	case querysql.IsInvariantError(err):
		return ErrorInvariant
	default:
		return "unknown"
	}
}

// execute loads the fixtures into a fresh database, runs every statement
// and reads the final select into result.
func execute(ctx context.Context, fixtures []Fixture, stmts []string, result *Result) error {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	defer conn.Close()

	for _, f := range fixtures {
		if err := loadFixture(ctx, conn, f); err != nil {
			return fmt.Errorf("load fixture %s: %w", f.Table, err)
		}
	}

	for i, stmt := range stmts[:len(stmts)-1] {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute statement %d: %w", i+1, err)
		}
	}

	rows, err := conn.QueryContext(ctx, stmts[len(stmts)-1])
	if err != nil {
		return fmt.Errorf("execute final select: %w", err)
	}
	defer rows.Close()

	result.Columns, err = rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	for rows.Next() {
		values := make([]any, len(result.Columns))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}

		row := make([]ir.IRValue, len(values))
		for i, v := range values {
			row[i], err = normalize(v)
			if err != nil {
				return fmt.Errorf("column %s: %w", result.Columns[i], err)
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}

	slices.SortStableFunc(result.Rows, func(a, b []ir.IRValue) int {
		return comparePatients(a[0], b[0])
	})
	return nil
}

// loadFixture creates an untyped table and inserts its rows with bound
// parameters. Identifiers were validated when the scenario was loaded.
func loadFixture(ctx context.Context, conn *sql.Conn, f Fixture) error {
	d := querysql.SQLite
	cols := make([]string, len(f.Columns))
	marks := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		cols[i] = d.QuoteIdent(c)
		marks[i] = "?"
	}

	table := d.QuoteIdent(f.Table)
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", "))); err != nil {
		return err
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	for i, row := range f.Rows {
		if _, err := conn.ExecContext(ctx, insert, row...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// normalize converts a SQLite or YAML value to an IRValue. SQLite has no
// boolean type, so booleans become 1 and 0; integral floats become ints and
// other floats are kept as their shortest decimal text.
func normalize(v any) (ir.IRValue, error) {
	switch val := v.(type) {
	case nil:
		return ir.IRNull{}, nil
	case []byte:
		return ir.IRString(val), nil
	case string:
		return ir.IRString(val), nil
	case bool:
		if val {
			return ir.IRInt(1), nil
		}
		return ir.IRInt(0), nil
	case int:
		return ir.IRInt(val), nil
	case int64:
		return ir.IRInt(val), nil
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return ir.IRInt(int64(val)), nil
		}
		return ir.IRString(strconv.FormatFloat(val, 'f', -1, 64)), nil
	default:
		return nil, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

// comparePatients orders patient ids numerically when both are ints.
func comparePatients(a, b ir.IRValue) int {
	ai, aok := a.(ir.IRInt)
	bi, bok := b.(ir.IRInt)
	if aok && bok {
		return cmp.Compare(ai, bi)
	}
	return strings.Compare(render(a), render(b))
}

// compareExpect reports every difference between expect and the result.
func compareExpect(expect *Expect, result *Result) []string {
	var errs []string
	if len(expect.Columns) > 0 && !slices.Equal(expect.Columns, result.Columns) {
		errs = append(errs, fmt.Sprintf("columns: expected %v, got %v", expect.Columns, result.Columns))
	}
	if len(expect.Rows) != len(result.Rows) {
		errs = append(errs, fmt.Sprintf("rows: expected %d, got %d", len(expect.Rows), len(result.Rows)))
		return errs
	}

	for i, want := range expect.Rows {
		got := result.Rows[i]
		if len(want) != len(got) {
			errs = append(errs, fmt.Sprintf("row %d: expected %d values, got %d", i, len(want), len(got)))
			continue
		}
		for j := range want {
			if !valuesEqual(want[j], got[j]) {
				errs = append(errs, fmt.Sprintf("row %d column %s: expected %v, got %s", i, result.Columns[j], want[j], render(got[j])))
			}
		}
	}
	return errs
}

// valuesEqual compares an expected YAML value with a normalized result value.
func valuesEqual(expected any, actual ir.IRValue) bool {
	want, err := normalize(expected)
	if err != nil {
		return false
	}
	return render(want) == render(actual)
}

func render(v ir.IRValue) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}
