package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohortql/internal/serialize"
)

func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var resp struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp.CLIResponse
}

func TestSQLCommand_Text(t *testing.T) {
	out, err := execute(t, "sql", "--backend", testBackend, "--dialect", "sqlite", latestPositive)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, `CREATE TEMPORARY TABLE "group_1" AS`), out)
	assert.Contains(t, out, "GROUP BY \"t\".\"patient_id\";\n\nCREATE TEMPORARY TABLE \"group_2\" AS")
	assert.True(t, strings.HasSuffix(out, "WHERE \"group_1\".\"exists\" = TRUE;\n"), out)
	assert.Equal(t, 3, strings.Count(out, ";\n"))
}

func TestSQLCommand_JSON(t *testing.T) {
	out, err := execute(t, "sql", "--backend", testBackend, "--format", "json", latestPositive)
	require.NoError(t, err)

	var result SQLResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", result.Backend)
	assert.Equal(t, "mssql", result.Dialect)
	assert.Equal(t, latestPositive, result.Definition)
	require.Len(t, result.Statements, 3)
	assert.Contains(t, result.Statements[0], "INTO [#group_1]")

	data, err := os.ReadFile(latestPositive)
	require.NoError(t, err)
	var p serialize.Portable
	require.NoError(t, p.UnmarshalJSON(data))
	hash, err := p.Hash()
	require.NoError(t, err)
	assert.Equal(t, hash, result.DefinitionHash)
}

func TestSQLCommand_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study.sql")
	out, err := execute(t, "sql", "--backend", testBackend, "--dialect", "sqlite", "-o", path, latestPositive)
	require.NoError(t, err)
	assert.Equal(t, "Wrote 3 statement(s) to "+path+"\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `CREATE TEMPORARY TABLE "group_1" AS`))
}

func TestSQLCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"missing file", []string{"sql", "--backend", testBackend, "testdata/none.json"}, ErrCodeNotFound},
		{"unknown node", []string{"sql", "--backend", testBackend, "testdata/bad/unknown_node.json"}, ErrCodeDecodeFailed},
		{"unknown backend", []string{"sql", "--backend", "nope", latestPositive}, ErrCodeBackendFailed},
		{"unknown dialect", []string{"sql", "--backend", testBackend, "--dialect", "oracle", latestPositive}, ErrCodeDialect},
		{"table not in backend", []string{"sql", latestPositive}, ErrCodeTableNotFound},
		{"invalid definition", []string{"sql", "--backend", testBackend, "testdata/definitions/no_population.json"}, ErrCodeInvalidDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append(tt.args, "--format", "json")...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			resp := decodeResponse(t, out, nil)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code, resp.Error.Message)
		})
	}
}

func TestSQLCommand_ValidationDetails(t *testing.T) {
	out, err := execute(t, "sql", "--backend", testBackend, "--format", "json", "testdata/definitions/no_population.json")
	require.Error(t, err)

	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, []any{`missing "population" output`}, resp.Error.Details)
}

func TestSQLCommand_TextError(t *testing.T) {
	out, err := execute(t, "sql", latestPositive)
	require.Error(t, err)
	assert.Contains(t, out, "Error [E103]: ")
	assert.Contains(t, out, "unknown table 't' in backend tpp")
}

func TestSQLCommand_Verbose(t *testing.T) {
	cmd := NewRootCommand()
	out, errOut := &strings.Builder{}, &strings.Builder{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"sql", "-v", "--backend", testBackend, latestPositive})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, errOut.String(), "Loaded "+latestPositive+": 5 node(s), 2 output(s)")
	assert.Contains(t, errOut.String(), "Staged #group_2 (row of t): [value]")
	assert.NotContains(t, out.String(), "Loaded")
}

func TestExplainCommand_Text(t *testing.T) {
	out, err := execute(t, "explain", "--backend", testBackend, "testdata/definitions/events_since_first_positive.json")
	require.NoError(t, err)

	assert.Contains(t, out, "Backend: test  Dialect: mssql")
	for _, want := range []string{"#group_1", "#group_2", "#group_3", "aggregate", "row", "events", "patient_id, count, max_value", "first_positive", "events_after"} {
		assert.Contains(t, out, want)
	}
}

func TestExplainCommand_JSON(t *testing.T) {
	out, err := execute(t, "explain", "--backend", testBackend, "--dialect", "sqlite", "--format", "json", "testdata/definitions/events_since_first_positive.json")
	require.NoError(t, err)

	var plan struct {
		Stages []struct {
			Table     string   `json:"table"`
			Kind      string   `json:"kind"`
			DependsOn []string `json:"depends_on"`
		} `json:"stages"`
		Outputs []struct {
			Name  string `json:"name"`
			Table string `json:"table"`
		} `json:"outputs"`
	}
	decodeResponse(t, out, &plan)

	require.Len(t, plan.Stages, 3)
	assert.Equal(t, "aggregate", plan.Stages[0].Kind)
	assert.Equal(t, "row", plan.Stages[1].Kind)
	assert.Equal(t, []string{"group_2"}, plan.Stages[2].DependsOn)
	require.Len(t, plan.Outputs, 3)
	assert.Equal(t, "first_positive", plan.Outputs[0].Name)
	assert.Equal(t, "group_3", plan.Outputs[2].Table)
}

func TestDemoCommand_SQL(t *testing.T) {
	out, err := execute(t, "demo")
	require.NoError(t, err)
	assert.Equal(t, 6, strings.Count(out, ";\n"))
	assert.Contains(t, out, "INTO [#group_1]")
}

func TestDemoCommand_Portable(t *testing.T) {
	out, err := execute(t, "demo", "--portable")
	require.NoError(t, err)

	cohort, err := serialize.Unmarshal([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "population", cohort.Names()[0])
	assert.True(t, strings.HasSuffix(out, "}\n"))
}

func TestDemoCommand_PortableJSON(t *testing.T) {
	out, err := execute(t, "demo", "--portable", "--format", "json")
	require.NoError(t, err)

	var portable map[string]any
	resp := decodeResponse(t, out, &portable)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1", portable["version"])
}
