package serialize

import (
	"errors"
	"fmt"
)

// DecodeError reports a portable definition that cannot be rebuilt: an
// unknown id or tag, a reference cycle, or a malformed attribute.
type DecodeError struct {
	ID      string // node id, if the error concerns one node
	Message string
}

func (e *DecodeError) Error() string {
	if e.ID == "" {
		return "decode definition: " + e.Message
	}
	return fmt.Sprintf("decode definition: node %s: %s", e.ID, e.Message)
}

// IsDecodeError returns true if err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
