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

package rewrite

import (
	"github.com/reallocf/dfc-sql-rewriter/sql/ast"
)

// PropagateColumns is the column propagator: for every CTE or
// FROM-clause subquery that directly references one of neededBySource's
// source tables, it ensures the needed columns of that source are
// projected through it, and returns a rewrite map from source table name
// to the alias the outer query must use to reach those columns. Sources already present directly in the outer FROM are left
// alone and are not added to the rewrite map.
func PropagateColumns(stmt *ast.SelectStatement, neededBySource map[string][]string) (*ast.SelectStatement, map[string]string) {
	if len(neededBySource) == 0 {
		return stmt, nil
	}

	out := stmt.Clone()
	rewriteMap := map[string]string{}

	outerTables := map[string]bool{}
	if out.From != nil {
		for _, ref := range collectTableRefs(out.From.Source) {
			outerTables[ref.Name.Lower()] = true
		}
	}

	if out.With != nil {
		newCTEs := make([]*ast.CTE, len(out.With.CTEs))
		changed := false
		for i, cte := range out.With.CTEs {
			newQuery, touched := propagateOne(cte.Query, neededBySource, outerTables, rewriteMap, cte.Name.Lower())
			if touched {
				changed = true
				cteCopy := *cte
				cteCopy.Query = newQuery
				newCTEs[i] = &cteCopy
			} else {
				newCTEs[i] = cte
			}
		}
		if changed {
			withCopy := *out.With
			withCopy.CTEs = newCTEs
			out.With = &withCopy
		}
	}

	if out.From != nil {
		newSource, changed := propagateIntoTableExpr(out.From.Source, neededBySource, outerTables, rewriteMap)
		if changed {
			out.From = &ast.FromClause{Source: newSource}
		}
	}

	return out, rewriteMap
}

// propagateIntoTableExpr descends into subqueries reachable from te
// (through joins), calling propagateOne on each SubqueryRef found.
func propagateIntoTableExpr(te ast.TableExpr, neededBySource map[string][]string, outerTables map[string]bool, rewriteMap map[string]string) (ast.TableExpr, bool) {
	switch t := te.(type) {
	case *ast.SubqueryRef:
		newQuery, touched := propagateOne(t.Query, neededBySource, outerTables, rewriteMap, t.Alias.Lower())
		if !touched {
			return te, false
		}
		return &ast.SubqueryRef{Query: newQuery, Alias: t.Alias}, true
	case *ast.JoinExpr:
		left, lc := propagateIntoTableExpr(t.Left, neededBySource, outerTables, rewriteMap)
		right, rc := propagateIntoTableExpr(t.Right, neededBySource, outerTables, rewriteMap)
		if !lc && !rc {
			return te, false
		}
		return &ast.JoinExpr{Kind: t.Kind, Left: left, Right: right, On: t.On}, true
	default:
		return te, false
	}
}

// propagateOne handles a single inner SELECT (a CTE body or a FROM
// subquery), returning the (possibly) modified inner statement and
// whether it was touched at all (including the star-projection case,
// which still needs its alias registered).
func propagateOne(inner *ast.SelectStatement, neededBySource map[string][]string, outerTables map[string]bool, rewriteMap map[string]string, alias string) (*ast.SelectStatement, bool) {
	innerTables := map[string]bool{}
	if inner.From != nil {
		for _, ref := range collectTableRefs(inner.From.Source) {
			innerTables[ref.Name.Lower()] = true
		}
	}

	touchedAny := false
	newInner := inner
	for source, cols := range neededBySource {
		if outerTables[source] || !innerTables[source] {
			continue
		}
		// This source is reachable only through this inner query; the
		// outer constraint must address it via this alias.
		rewriteMap[source] = alias
		touchedAny = true

		if projectsStar(newInner) {
			continue
		}
		missing := missingColumns(newInner, source, cols)
		if len(missing) == 0 {
			continue
		}
		clone := newInner.Clone()
		for _, col := range missing {
			clone.Items = append(clone.Items, ast.SelectItem{
				Expr: &ast.Column{Table: ast.NewIdentifier(source), Name: ast.NewIdentifier(col)},
			})
		}
		newInner = clone
	}
	return newInner, touchedAny
}

func projectsStar(stmt *ast.SelectStatement) bool {
	for _, item := range stmt.Items {
		if _, ok := item.Expr.(*ast.Star); ok {
			return true
		}
	}
	return false
}

// missingColumns returns the subset of cols not already projected
// (directly by column reference, or via a matching output alias) by
// stmt's SELECT list.
func missingColumns(stmt *ast.SelectStatement, source string, cols []string) []string {
	have := map[string]bool{}
	for _, item := range stmt.Items {
		if col, ok := item.Expr.(*ast.Column); ok && (col.TableName() == source || col.TableName() == "") {
			have[col.ColumnName()] = true
		}
		if name := item.OutputName(); name != "" {
			have[name] = true
		}
	}
	var missing []string
	for _, c := range cols {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// collectTableRefs returns every bare TableRef leaf reachable through
// joins of te, ignoring any nested subqueries (those are not "direct"
// references for propagation purposes).
func collectTableRefs(te ast.TableExpr) []*ast.TableRef {
	switch t := te.(type) {
	case *ast.TableRef:
		return []*ast.TableRef{t}
	case *ast.JoinExpr:
		return append(collectTableRefs(t.Left), collectTableRefs(t.Right)...)
	default:
		return nil
	}
}

// FindExistsOnlySource reports whether source is referenced only inside
// an EXISTS subquery of stmt's WHERE clause and nowhere in the outer FROM
// — the case .6 calls out as needing an EXISTS-to-JOIN rewrite
// so an outer HAVING can see the source's aggregate.
func FindExistsOnlySource(stmt *ast.SelectStatement, source string) (*ast.ExistsExpr, bool) {
	if stmt.From != nil {
		for _, ref := range collectTableRefs(stmt.From.Source) {
			if ref.Name.Lower() == source {
				return nil, false
			}
		}
	}
	var found *ast.ExistsExpr
	if stmt.Where != nil {
		ast.Walk(stmt.Where, func(n ast.Node) bool {
			if found != nil {
				return false
			}
			ex, ok := n.(*ast.ExistsExpr)
			if !ok {
				return true
			}
			if ex.Query.From == nil {
				return true
			}
			for _, ref := range collectTableRefs(ex.Query.From.Source) {
				if ref.Name.Lower() == source {
					found = ex
					return false
				}
			}
			return true
		})
	}
	return found, found != nil
}
