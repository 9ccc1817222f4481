package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes a scenario file next to an empty definition file.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "def.json"), []byte("{}"), 0644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario := loadTestScenario(t, "events_since_first_positive")

	assert.Equal(t, "events_since_first_positive", scenario.Name)
	assert.Equal(t, filepath.Join("testdata", "backends", "test.yaml"), scenario.Backend)
	assert.Equal(t, filepath.Join("testdata", "definitions", "events_since_first_positive.json"), scenario.Definition)

	require.Len(t, scenario.Fixtures, 2)
	assert.Equal(t, "Events", scenario.Fixtures[1].Table)
	assert.Equal(t, []string{"patient_id", "Code", "EventDate", "Value"}, scenario.Fixtures[1].Columns)
	assert.Equal(t, []any{1, "XE2q5", "2019-12-01", 9}, scenario.Fixtures[1].Rows[0])

	require.NotNil(t, scenario.Expect)
	assert.Equal(t, []any{3, "2020-04-01", nil, nil}, scenario.Expect.Rows[1])

	require.Len(t, scenario.Assertions, 4)
	assert.Equal(t, AssertSQLContains, scenario.Assertions[2].Type)
	assert.Equal(t, 3, scenario.Assertions[2].Statement)
	require.NotNil(t, scenario.Assertions[2].Count)
	assert.Equal(t, 1, *scenario.Assertions[2].Count)
	assert.Equal(t, int64(1), scenario.Assertions[3].Patient)
}

func TestLoadScenario_BuiltinBackendNotResolved(t *testing.T) {
	path := writeScenario(t, `
name: builtin
description: "Uses the builtin backend"
backend: tpp
definition: def.json
assertions:
  - type: one_row_per_patient
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "tpp", scenario.Backend)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "def.json"), scenario.Definition)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "Misspelled field"
backend: tpp
definition: def.json
assertion:
  - type: one_row_per_patient
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	header := "name: bad\ndescription: \"Invalid scenario\"\nbackend: tpp\ndefinition: def.json\n"

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "description: x\nbackend: tpp\ndefinition: def.json\nassertions:\n  - type: one_row_per_patient\n",
			want: "name is required",
		},
		{
			name: "missing description",
			body: "name: x\nbackend: tpp\ndefinition: def.json\nassertions:\n  - type: one_row_per_patient\n",
			want: "description is required",
		},
		{
			name: "missing backend",
			body: "name: x\ndescription: x\ndefinition: def.json\nassertions:\n  - type: one_row_per_patient\n",
			want: "backend is required",
		},
		{
			name: "missing definition file",
			body: "name: x\ndescription: x\nbackend: tpp\ndefinition: other.json\nassertions:\n  - type: one_row_per_patient\n",
			want: "definition file not found",
		},
		{
			name: "nothing to check",
			body: header,
			want: "expect or assertions is required",
		},
		{
			name: "unknown error kind",
			body: header + "expect_error: boom\n",
			want: `unknown expect_error "boom"`,
		},
		{
			name: "error with assertions",
			body: header + "expect_error: invariant\nassertions:\n  - type: one_row_per_patient\n",
			want: "expect_error cannot be combined",
		},
		{
			name: "bad table name",
			body: header + "fixtures:\n  - table: \"t; DROP\"\n    columns: [patient_id]\nassertions:\n  - type: one_row_per_patient\n",
			want: "invalid table name",
		},
		{
			name: "bad column name",
			body: header + "fixtures:\n  - table: t\n    columns: [\"a b\"]\nassertions:\n  - type: one_row_per_patient\n",
			want: `invalid column name "a b"`,
		},
		{
			name: "short row",
			body: header + "fixtures:\n  - table: t\n    columns: [patient_id, date]\n    rows:\n      - [1]\nassertions:\n  - type: one_row_per_patient\n",
			want: "row 0 has 1 values, want 2",
		},
		{
			name: "missing count",
			body: header + "assertions:\n  - type: row_count\n",
			want: "non-negative count is required for row_count",
		},
		{
			name: "missing text",
			body: header + "assertions:\n  - type: sql_contains\n",
			want: "text is required for sql_contains",
		},
		{
			name: "missing values",
			body: header + "assertions:\n  - type: patient_row\n    patient: 1\n",
			want: "values are required for patient_row",
		},
		{
			name: "unknown assertion",
			body: header + "assertions:\n  - type: trace_contains\n",
			want: `unknown assertion type "trace_contains"`,
		},
		{
			name: "missing assertion type",
			body: header + "assertions:\n  - count: 1\n",
			want: "assertions[0]: type is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_AllTestdata(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}
