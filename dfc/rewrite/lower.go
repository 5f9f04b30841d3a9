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

// Package rewrite is the constraint transformer, column propagator
//, matcher, and two-phase plan builder: everything that
// turns a matched policy's constraint into the WHERE/HAVING/SELECT
// fragments of a rewritten query.
package rewrite

import (
	"github.com/reallocf/dfc-sql-rewriter/sql/ast"
	"github.com/reallocf/dfc-sql-rewriter/sql/transform"
)

// LowerAggregates rewrites every aggregate function reachable from expr
// into its scan-context scalar equivalent:
//
//   - COUNT(*), COUNT(x), COUNT(DISTINCT x), APPROX_COUNT_DISTINCT(x),
//     REGR_COUNT(x) -> literal 1
//   - COUNT_IF(p), COUNTIF(p)                  -> CASE WHEN p THEN 1 ELSE 0 END
//   - ARRAY_AGG(x), ARRAYAGG(x)                 -> [x]
//   - everything else (MAX/MIN/SUM/AVG/...)     -> its first argument, unchanged
//
// A FILTER (WHERE p) clause on the aggregate is folded in by wrapping the
// lowered value so it only contributes on rows where p holds; this keeps
// FILTER's semantics the same shape whether or not the aggregate kind
// already produces a CASE.
func LowerAggregates(expr ast.Expression) (ast.Expression, error) {
	out, _, err := transform.TransformExpressionsUp(expr, func(e ast.Expression) (ast.Expression, transform.TreeIdentity, error) {
		fc, ok := e.(*ast.FuncCall)
		if !ok || !fc.IsAggregate() {
			return e, transform.SameTree, nil
		}
		return lowerOne(fc), transform.NewTree, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(ast.Expression), nil
}

func lowerOne(fc *ast.FuncCall) ast.Expression {
	name := ast.FuncNameUpper(fc.Name)

	var lowered ast.Expression
	switch {
	case ast.CountLikeFunctionNames[name]:
		lowered = ast.NewNumber("1")
	case name == "COUNT_IF" || name == "COUNTIF":
		var cond ast.Expression = ast.NewBool(false)
		if len(fc.Args) > 0 {
			cond = fc.Args[0]
		}
		lowered = ast.NewSimpleCaseWhen(cond, ast.NewNumber("1"), ast.NewNumber("0"))
	case name == "ARRAY_AGG" || name == "ARRAYAGG":
		var elem ast.Expression = ast.NewNull()
		if len(fc.Args) > 0 {
			elem = fc.Args[0]
		}
		lowered = &ast.ArrayExpr{Elements: []ast.Expression{elem}}
	default:
		if len(fc.Args) > 0 {
			lowered = fc.Args[0]
		} else {
			lowered = ast.NewNull()
		}
	}

	if fc.Filter != nil {
		return ast.NewSimpleCaseWhen(fc.Filter, lowered, ast.NewNull())
	}
	return lowered
}
