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

// Package ast is the DuckDB-dialect SQL AST facade. It defines a
// sealed set of node kinds for statements and expressions, exposes
// classifiers for the constructs the rewriter cares about (columns,
// aggregates, subqueries, CTEs, joins), and serializes nodes back to SQL
// text. Node ownership is tree-shaped: no node stores a parent pointer,
// so rewrite passes walk downward with an explicit scope stack instead of
// climbing ancestry links.
package ast

// Node is the sealed interface implemented by every statement and
// expression in the tree. Exhaustive type switches over Node are the
// idiomatic way to dispatch on node kind; there is no reflection-based
// inspection anywhere in this package.
type Node interface {
	// String renders the node back to DuckDB-dialect SQL text.
	String() string
	// Children returns this node's direct child nodes, in the order
	// transform.TransformUp should visit them.
	Children() []Node
	// WithChildren returns a copy of this node with its children replaced.
	// len(children) must equal len(Children()); the concrete type decides
	// how to reassign each slot. Used by sql/transform to rebuild a path
	// from the leaves up without storing parent pointers anywhere.
	WithChildren(children ...Node) (Node, error)
	node()
}

// Expression is a Node that denotes a value: columns, literals, operators,
// function calls, subqueries used as scalars, and CASE expressions.
type Expression interface {
	Node
	expression()
}

// Statement is a Node that denotes a top-level SQL statement: SELECT,
// INSERT, or a statement this facade doesn't model deeply (UPDATE, DDL)
// and passes through opaquely.
type Statement interface {
	Node
	statement()
}

type baseNode struct{}

func (baseNode) node() {}
