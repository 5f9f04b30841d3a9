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

package ast

import "strings"

// AggregateFunctionNames is the set of DuckDB aggregate functions the
// constraint transformer recognizes for HAVING-context validation and
// scan-context lowering.
var AggregateFunctionNames = map[string]bool{
	"COUNT":                 true,
	"COUNT_STAR":            true,
	"COUNT_IF":              true,
	"COUNTIF":               true,
	"APPROX_COUNT_DISTINCT": true,
	"APPROX_DISTINCT":       true,
	"REGR_COUNT":            true,
	"ARRAY_AGG":             true,
	"ARRAYAGG":              true,
	"MAX":                   true,
	"MIN":                   true,
	"SUM":                   true,
	"AVG":                   true,
	"STDDEV":                true,
	"STDDEV_POP":            true,
	"STDDEV_SAMP":           true,
	"VARIANCE":              true,
	"VAR_POP":                true,
	"VAR_SAMP":                true,
	"QUANTILE":              true,
	"QUANTILE_CONT":         true,
	"QUANTILE_DISC":         true,
	"PERCENTILE_CONT":       true,
	"PERCENTILE_DISC":       true,
	"STRING_AGG":            true,
	"LISTAGG":               true,
	"GROUP_CONCAT":          true,
	"FIRST":                 true,
	"LAST":                  true,
	"ANY_VALUE":             true,
	"MODE":                  true,
	"MEDIAN":                true,
	"BOOL_AND":              true,
	"BOOL_OR":               true,
}

// CountLikeFunctionNames are aggregate lowering's "→ literal 1" group:
// their scalar-row equivalent is always exactly one.
var CountLikeFunctionNames = map[string]bool{
	"COUNT":                 true,
	"COUNT_STAR":            true,
	"APPROX_COUNT_DISTINCT": true,
	"APPROX_DISTINCT":       true,
	"REGR_COUNT":            true,
}

// walkNode performs a pre-order traversal of n, calling visit on every
// node reached (including n itself) and stopping early if visit returns
// false for a given node (its children are then skipped, but the
// traversal otherwise continues with siblings). There is no ancestor
// tracking: callers that need to know "is this column inside an
// aggregate" pass a closure that carries its own explicit stack instead
// of climbing parent pointers.
func walkNode(n Node, visit func(Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for _, c := range n.Children() {
		walkNode(c, visit)
	}
}

// Walk performs a pre-order traversal of n and every descendant,
// including n.
func Walk(n Node, visit func(Node) bool) {
	walkNode(n, visit)
}

// FindColumns returns every Column reachable from n, in pre-order.
func FindColumns(n Node) []*Column {
	var out []*Column
	Walk(n, func(node Node) bool {
		if col, ok := node.(*Column); ok {
			out = append(out, col)
		}
		return true
	})
	return out
}

// FindAggregates returns every aggregate FuncCall reachable from each
// root, in pre-order, without descending into nested scalar subqueries
// (a subquery's own aggregates belong to its own query, not to the
// constraint containing it).
func FindAggregates(roots []Expression) []*FuncCall {
	var out []*FuncCall
	for _, root := range roots {
		Walk(root, func(node Node) bool {
			switch n := node.(type) {
			case *ScalarSubquery, *ExistsExpr:
				return false
			case *FuncCall:
				if n.IsAggregate() {
					out = append(out, n)
				}
			}
			return true
		})
	}
	return out
}

// FindAggregatesIn is a convenience wrapper for a single expression root.
func FindAggregatesIn(root Expression) []*FuncCall {
	if root == nil {
		return nil
	}
	return FindAggregates([]Expression{root})
}

// ColumnsInAggregates returns the set of (table, column) pairs referenced
// by any aggregate function reachable from root, lowercased.
func ColumnsInAggregates(root Expression) map[[2]string]bool {
	out := map[[2]string]bool{}
	for _, agg := range FindAggregatesIn(root) {
		for _, col := range FindColumns(agg) {
			out[[2]string{col.TableName(), col.ColumnName()}] = true
		}
	}
	return out
}

// IsBareColumnOutsideAggregate reports whether col is NOT nested inside
// any aggregate function within root. Because ast.Node carries no parent
// pointer, this is computed by a single downward traversal that tracks
// "currently inside an aggregate" as it descends, rather than climbing
// upward from col.
func IsBareColumnOutsideAggregate(root Expression, col *Column) bool {
	found := false
	var visit func(n Node, insideAgg bool)
	visit = func(n Node, insideAgg bool) {
		if n == nil || found {
			return
		}
		if n == Node(col) {
			if !insideAgg {
				found = true
			}
			return
		}
		nextInsideAgg := insideAgg
		if fc, ok := n.(*FuncCall); ok && fc.IsAggregate() {
			nextInsideAgg = true
		}
		for _, c := range n.Children() {
			visit(c, nextInsideAgg)
		}
	}
	visit(root, false)
	return found
}

// FuncNameUpper returns name upper-cased, the normalized form used to
// test membership in AggregateFunctionNames / CountLikeFunctionNames.
func FuncNameUpper(name string) string { return strings.ToUpper(name) }
