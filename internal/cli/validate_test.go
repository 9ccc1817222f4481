package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand_Valid(t *testing.T) {
	out, err := execute(t, "validate", latestPositive, testBackend)
	require.NoError(t, err)
	assert.Contains(t, out, "ok    "+latestPositive+" (definition)")
	assert.Contains(t, out, "ok    "+testBackend+" (backend)")
}

func TestValidateCommand_Invalid(t *testing.T) {
	out, err := execute(t, "validate", latestPositive, "testdata/definitions/no_population.json", "testdata/bad/unknown_node.json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "ok    "+latestPositive)
	assert.Contains(t, out, "FAIL  testdata/definitions/no_population.json (definition)")
	assert.Contains(t, out, `E101: missing "population" output`)
	assert.Contains(t, out, "FAIL  testdata/bad/unknown_node.json (definition)")
	assert.Contains(t, out, "E003: ")
}

func TestValidateCommand_InvalidBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: bad\ntables:\n  - name: t\n    colums: []\n"), 0644))

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL  "+path+" (backend)")
	assert.Contains(t, out, ErrCodeBackendFailed)
}

func TestValidateCommand_JSON(t *testing.T) {
	out, err := execute(t, "validate", "--format", "json", latestPositive, "testdata/definitions/no_population.json")
	require.Error(t, err)

	var result ValidationResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, result.Valid)
	require.Len(t, result.Files, 2)
	assert.True(t, result.Files[0].Valid)
	assert.False(t, result.Files[1].Valid)
	require.Len(t, result.Files[1].Errors, 1)
	assert.Equal(t, ErrCodeInvalidDefinition, result.Files[1].Errors[0].Code)
}

func TestValidateCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}
