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
	"strings"

	"github.com/reallocf/dfc-sql-rewriter/sql/ast"
	"github.com/reallocf/dfc-sql-rewriter/sql/transform"
)

// RewriteTableRefs substitutes every Column whose table matches a key of
// rewriteMap (lowercase source table -> subquery/CTE alias) with a column
// qualified by the mapped alias instead, the table-reference half of
// column propagation.
func RewriteTableRefs(expr ast.Expression, rewriteMap map[string]string) (ast.Expression, error) {
	if len(rewriteMap) == 0 {
		return expr, nil
	}
	out, _, err := transform.TransformExpressionsUp(expr, func(e ast.Expression) (ast.Expression, transform.TreeIdentity, error) {
		col, ok := e.(*ast.Column)
		if !ok || !col.Qualified() {
			return e, transform.SameTree, nil
		}
		alias, found := rewriteMap[col.TableName()]
		if !found {
			return e, transform.SameTree, nil
		}
		return &ast.Column{Table: ast.NewIdentifier(alias), Name: col.Name}, transform.NewTree, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(ast.Expression), nil
}

// SubstituteSinkColumns replaces any Column qualified by sinkTable with
// the corresponding SELECT-output expression, keyed by column name, so an
// INSERT-into-new-row constraint becomes evaluable against the row being
// produced rather than an existing sink row. outputs maps
// lowercase output column name to the expression that produces it.
func SubstituteSinkColumns(expr ast.Expression, sinkTable string, outputs map[string]ast.Expression) (ast.Expression, error) {
	sinkTable = strings.ToLower(sinkTable)
	out, _, err := transform.TransformExpressionsUp(expr, func(e ast.Expression) (ast.Expression, transform.TreeIdentity, error) {
		col, ok := e.(*ast.Column)
		if !ok || col.TableName() != sinkTable {
			return e, transform.SameTree, nil
		}
		replacement, found := outputs[col.ColumnName()]
		if !found {
			return e, transform.SameTree, nil
		}
		return replacement, transform.NewTree, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(ast.Expression), nil
}

// BindRemoveOrKill applies the REMOVE/KILL action binding to an
// already-lowered (or HAVING-mode unlowered) clause. REMOVE returns the
// clause itself; KILL wraps it so a violation calls the engine-side
// kill() UDF, which always raises.
func BindRemoveOrKill(clause ast.Expression, isKill bool) ast.Expression {
	if !isKill {
		return clause
	}
	return ast.NewSimpleCaseWhen(clause, ast.NewBool(true), killCall())
}

// BindHumanOrLLM applies the HUMAN/LLM action binding: on violation,
// route the row's needed source columns (in declaration order), the
// policy's description, and the stream file path into the engine-side
// address_violating_rows UDF instead of failing the query outright.
func BindHumanOrLLM(clause ast.Expression, columns []*ast.Column, description, streamPath string) ast.Expression {
	return ast.NewSimpleCaseWhen(clause, ast.NewBool(true), addressViolatingRowsCall(columns, description, streamPath))
}

func killCall() *ast.FuncCall {
	return &ast.FuncCall{Name: "kill"}
}

// addressViolatingRowsCall builds the UDF call a violating row is routed
// through. Its trailing three arguments are fixed at rewrite time rather
// than read from the row: a comma-joined list of the leading arguments'
// column names (so the engine-side resolver knows what it's looking at
// without a catalog lookup of its own), the policy's description, and
// the stream file path.
func addressViolatingRowsCall(columns []*ast.Column, description, streamPath string) *ast.FuncCall {
	names := make([]string, len(columns))
	args := make([]ast.Expression, 0, len(columns)+3)
	for i, c := range columns {
		names[i] = c.ColumnName()
		args = append(args, c)
	}
	args = append(args, ast.NewString(strings.Join(names, ",")), ast.NewString(description), ast.NewString(streamPath))
	return &ast.FuncCall{Name: "address_violating_rows", Args: args}
}

// AndAll composes clauses with AND, each parenthesized implicitly by
// ast.BinaryExpr's own rendering, preserving operator precedence across
// multiple policies' clauses.
func AndAll(clauses []ast.Expression) ast.Expression {
	var combined ast.Expression
	for _, c := range clauses {
		combined = ast.And(combined, c)
	}
	return combined
}
