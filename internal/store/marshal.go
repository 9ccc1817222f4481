package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/cohortql/internal/ir"
)

// marshalStatements converts a statement list to canonical JSON TEXT.
func marshalStatements(stmts []string) (string, error) {
	arr := make(ir.IRArray, len(stmts))
	for i, s := range stmts {
		arr[i] = ir.IRString(s)
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal statements: %w", err)
	}
	return string(data), nil
}

// unmarshalStatements parses the TEXT written by marshalStatements.
func unmarshalStatements(data string) ([]string, error) {
	var stmts []string
	if err := json.Unmarshal([]byte(data), &stmts); err != nil {
		return nil, fmt.Errorf("unmarshal statements: %w", err)
	}
	if stmts == nil {
		stmts = []string{}
	}
	return stmts, nil
}
