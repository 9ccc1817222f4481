package querysql

import (
	"errors"
	"fmt"
)

// InvariantError reports a malformed query graph that a correct authoring
// surface never builds. Compilation stops at the first one.
type InvariantError struct {
	Node    string // node kind, if the violation concerns a node
	Message string
}

func (e *InvariantError) Error() string {
	if e.Node == "" {
		return "invariant violation: " + e.Message
	}
	return fmt.Sprintf("invariant violation at %s: %s", e.Node, e.Message)
}

// IsInvariantError returns true if err is or wraps an *InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// CodelistSystemError reports a code list filtered against a column of a
// different coding system.
type CodelistSystemError struct {
	Table  string
	Column string
	Want   string // column system
	Got    string // code list system
}

func (e *CodelistSystemError) Error() string {
	return fmt.Sprintf("column %s.%s uses coding system %q, code list uses %q", e.Table, e.Column, e.Want, e.Got)
}
