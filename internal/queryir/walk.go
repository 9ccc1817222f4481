package queryir

import (
	"errors"
	"fmt"
)

// ErrSkipChildren may be returned by a Walk visitor to skip the children of
// the node just visited.
var ErrSkipChildren = errors.New("skip children")

// Children returns the nodes n references: its source first, then a
// node-valued filter operand.
func Children(n Node) []Node {
	if isNil(n) {
		return nil
	}
	switch node := n.(type) {
	case *BaseTable:
		return nil
	case *FilteredTable:
		var out []Node
		if !isNil(node.Source) {
			out = append(out, node.Source)
		}
		if v, ok := node.Value.(Value); ok && !isNil(v) {
			out = append(out, v)
		}
		return out
	case *Row:
		if !isNil(node.Source) {
			return []Node{node.Source}
		}
	case *ValueFromRow:
		if !isNil(node.Source) {
			return []Node{node.Source}
		}
	case *ValueFromAggregate:
		if !isNil(node.Source) {
			return []Node{node.Source}
		}
	}
	return nil
}

// Walk visits every node reachable from roots depth first, parents before
// children, visiting each node once no matter how many paths reach it.
// Returning ErrSkipChildren from fn skips the node's children; any other
// error stops the walk and is returned.
func Walk(roots []Node, fn func(Node) error) error {
	seen := make(map[Node]bool)
	var visit func(Node) error
	visit = func(n Node) error {
		if isNil(n) || seen[n] {
			return nil
		}
		seen[n] = true
		if err := fn(n); err != nil {
			if errors.Is(err, ErrSkipChildren) {
				return nil
			}
			return err
		}
		for _, child := range Children(n) {
			if err := visit(child); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := visit(root); err != nil {
			return err
		}
	}
	return nil
}

// CycleError reports a node graph that references itself.
type CycleError struct {
	Kind string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("query graph contains a cycle through a %s node", e.Kind)
}

// Topological returns every node reachable from roots with each node after
// all nodes it references (post-order). Roots are processed in order, so
// the result is deterministic for a given graph.
func Topological(roots []Node) ([]Node, error) {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[Node]int)
	var order []Node

	var visit func(Node) error
	visit = func(n Node) error {
		switch state[n] {
		case done:
			return nil
		case visiting:
			return &CycleError{Kind: Kind(n)}
		}
		state[n] = visiting
		for _, child := range Children(n) {
			if err := visit(child); err != nil {
				return err
			}
		}
		state[n] = done
		order = append(order, n)
		return nil
	}

	for _, root := range roots {
		if isNil(root) {
			continue
		}
		if err := visit(root); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Chain returns the linear chain ending at t, root first. The first
// element is a *BaseTable for every well-formed chain.
func Chain(t Table) []Table {
	var rev []Table
	seen := make(map[Table]bool)
	for cur := t; !isNil(cur); {
		if seen[cur] {
			break
		}
		seen[cur] = true
		rev = append(rev, cur)
		ft, ok := cur.(*FilteredTable)
		if !ok {
			break
		}
		cur = ft.Source
	}

	chain := make([]Table, len(rev))
	for i, n := range rev {
		chain[len(rev)-1-i] = n
	}
	return chain
}

// isNil reports whether n is nil or a typed nil pointer.
func isNil(n Node) bool {
	switch node := n.(type) {
	case nil:
		return true
	case *BaseTable:
		return node == nil
	case *FilteredTable:
		return node == nil
	case *Row:
		return node == nil
	case *ValueFromRow:
		return node == nil
	case *ValueFromAggregate:
		return node == nil
	}
	return false
}
