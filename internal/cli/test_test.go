package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyScenarioTree copies the latest_positive scenario with the backend and
// definition it references into a temp dir and returns the scenarios dir.
func copyScenarioTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"testdata/backend.yaml":                   "backend.yaml",
		latestPositive:                            "definitions/latest_positive.json",
		"testdata/scenarios/latest_positive.yaml": "scenarios/latest_positive.yaml",
	}
	for src, dst := range files {
		data, err := os.ReadFile(src)
		require.NoError(t, err)
		path := filepath.Join(root, dst)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, data, 0644))
	}
	return filepath.Join(root, "scenarios")
}

func TestTestCommand_Failures(t *testing.T) {
	out, err := execute(t, "test", "testdata/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "ok    latest_positive")
	assert.Contains(t, out, "FAIL  wrong_rows")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, "test", "--filter", "latest_*", "testdata/scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "All scenarios passed")

	out, err = execute(t, "test", "--filter", "nothing_*", "testdata/scenarios")
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTestCommand_JSON(t *testing.T) {
	out, err := execute(t, "test", "--format", "json", "testdata/scenarios")
	require.Error(t, err)

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Failed)

	for _, s := range result.Scenarios {
		if s.Name == "wrong_rows" {
			assert.False(t, s.Pass)
			assert.NotEmpty(t, s.Errors)
		} else {
			assert.True(t, s.Pass)
		}
	}
}

func TestTestCommand_UpdateGolden(t *testing.T) {
	dir := copyScenarioTree(t)
	golden := filepath.Join(dir, "golden", "latest_positive.golden")

	out, err := execute(t, "test", "--update", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ok    latest_positive (golden updated)")

	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"latest_positive"`)

	// A matching golden file passes.
	out, err = execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ok    latest_positive\n")

	// A stale one fails.
	require.NoError(t, os.WriteFile(golden, []byte(`{"rows":[]}`), 0644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "result does not match golden file")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", "testdata/none")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestFindScenarioFiles(t *testing.T) {
	files, err := findScenarioFiles("testdata/scenarios", "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "latest_positive.yaml"),
		filepath.Join("testdata", "scenarios", "wrong_rows.yaml"),
	}, files)

	_, err = findScenarioFiles("testdata/scenarios", "[")
	assert.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "golden", "b.golden"), goldenFilePath(filepath.Join("a", "b.yaml")))
}
