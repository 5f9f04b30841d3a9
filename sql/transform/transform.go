// Copyright 2026 The DFC SQL Rewriter Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transform provides generic, immutable bottom-up rewriting over
// sql/ast trees: NodeFunc/TransformUp walk every node via Children() and
// rebuild the path back to the root via WithChildren() wherever a visit
// actually changed something. This is the same TreeIdentity-tracking
// shape go-mysql-server's sql/transform package uses over sql.Node, kept
// here so the constraint transformer's rewrites (table-reference
// rewriting, aggregate lowering, finalize re-aggregation) never mutate a
// shared node in place — every rewrite produces a new
// tree, and unchanged subtrees are returned as-is (SameTree) so callers
// can skip redundant work.
package transform

import "github.com/reallocf/dfc-sql-rewriter/sql/ast"

// TreeIdentity reports whether a transformation actually produced a new
// tree (NewTree) or left the input unchanged (SameTree), so callers can
// avoid re-serializing or re-validating a subtree nothing touched.
type TreeIdentity bool

const (
	SameTree TreeIdentity = false
	NewTree  TreeIdentity = true
)

// NodeFunc is applied to every node during a traversal. It returns the
// (possibly replaced) node, whether it changed, and an error to abort the
// traversal.
type NodeFunc func(ast.Node) (ast.Node, TreeIdentity, error)

// ExprFunc is the expression-only counterpart of NodeFunc, used by
// TransformExpressionsUp to rewrite just the expression nodes of a tree
// (columns, predicates) without having to pattern-match on statement or
// table-expression shapes.
type ExprFunc func(ast.Expression) (ast.Expression, TreeIdentity, error)

// TransformUp rewrites n bottom-up: every child is transformed first (and
// recursively), the node is rebuilt from its (possibly new) children via
// WithChildren only if at least one child changed, and finally f is
// applied to the (possibly rebuilt) node itself.
func TransformUp(n ast.Node, f NodeFunc) (ast.Node, TreeIdentity, error) {
	if n == nil {
		return nil, SameTree, nil
	}
	children := n.Children()
	if len(children) == 0 {
		return f(n)
	}

	newChildren := make([]ast.Node, len(children))
	same := SameTree
	for i, c := range children {
		newChild, identity, err := TransformUp(c, f)
		if err != nil {
			return nil, SameTree, err
		}
		newChildren[i] = newChild
		if identity == NewTree {
			same = NewTree
		}
	}

	current := n
	if same == NewTree {
		rebuilt, err := n.WithChildren(newChildren...)
		if err != nil {
			return nil, SameTree, err
		}
		current = rebuilt
	}

	newNode, identity, err := f(current)
	if err != nil {
		return nil, SameTree, err
	}
	if identity == NewTree {
		same = NewTree
	}
	return newNode, same, nil
}

// TransformExpressionsUp rewrites every ast.Expression reachable from n,
// bottom-up, leaving statement/table-expression scaffolding nodes (the
// SELECT, the FROM, the JOIN shape) untouched except for threading the
// rewritten expressions back through via WithChildren.
func TransformExpressionsUp(n ast.Node, f ExprFunc) (ast.Node, TreeIdentity, error) {
	return TransformUp(n, func(node ast.Node) (ast.Node, TreeIdentity, error) {
		expr, ok := node.(ast.Expression)
		if !ok {
			return node, SameTree, nil
		}
		return f(expr)
	})
}

// Inspect calls visit on every node reachable from n (including n), in
// pre-order, stopping the descent into a subtree whenever visit returns
// false for its root.
func Inspect(n ast.Node, visit func(ast.Node) bool) {
	ast.Walk(n, visit)
}
