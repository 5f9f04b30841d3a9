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
	"fmt"
	"strings"

	"github.com/reallocf/dfc-sql-rewriter/dfc/policy"
	"github.com/reallocf/dfc-sql-rewriter/sql/ast"
	"github.com/reallocf/dfc-sql-rewriter/sql/transform"
)

// TempColumn is one per-row quantity an AGGREGATE policy's constraint
// closes over, preserved on the sink row at INSERT time so a later
// FinalizeAggregatePolicies pass can re-aggregate it across every row
// the sink has accumulated, not just the rows of one statement.
type TempColumn struct {
	Name string
	Expr ast.Expression
}

// TempColumnName builds the `_<policy_id>_tmpN` name the two-phase plan
// builder uses for a stashed per-row aggregate quantity.
func TempColumnName(policyID string, n int) string {
	return fmt.Sprintf("_%s_tmp%d", policyID, n)
}

// StashColumns returns, in declaration order, the per-row expression each
// aggregate function in p's constraint closes over — the same inner
// expression LowerAggregates would collapse to a scan-context scalar,
// but kept here as a named SELECT output so it can be persisted on the
// sink row and re-aggregated across the whole table later.
func StashColumns(p *policy.Policy) []TempColumn {
	aggs := ast.FindAggregatesIn(p.Constraint())
	cols := make([]TempColumn, len(aggs))
	for i, agg := range aggs {
		cols[i] = TempColumn{Name: TempColumnName(p.ID().String(), i), Expr: lowerOne(agg)}
	}
	return cols
}

// FinalizeConstraint substitutes each aggregate call in p's constraint,
// left to right, with an outer aggregate over the corresponding stashed
// temp column (by position), producing the scalar boolean expression
// FinalizeAggregatePolicies evaluates against the accumulated sink
// table. len(cols) must equal the number of aggregate calls StashColumns
// found for p.
func FinalizeConstraint(p *policy.Policy, cols []TempColumn) (ast.Expression, error) {
	i := 0
	out, _, err := transform.TransformExpressionsUp(p.Constraint(), func(e ast.Expression) (ast.Expression, transform.TreeIdentity, error) {
		agg, ok := e.(*ast.FuncCall)
		if !ok || !agg.IsAggregate() {
			return e, transform.SameTree, nil
		}
		if i >= len(cols) {
			return e, transform.SameTree, nil
		}
		col := cols[i]
		i++
		return outerAggregate(agg.Name, col.Name), transform.NewTree, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(ast.Expression), nil
}

// outerAggregate builds the second-stage aggregate to re-apply over a
// stashed temp column, given the original aggregate function name it
// replaces. COUNT-family aggregates were lowered to a per-row 1 (or 0/1
// for COUNT_IF), so recombining them across the accumulated table is a
// SUM, not a second COUNT. ARRAY_AGG was lowered to a single-element
// array per row, so recombining needs to flatten the array-of-arrays a
// naive ARRAY_AGG(ARRAY_AGG(...)) would otherwise produce. Everything
// else reapplies the same aggregate over the raw stashed value.
func outerAggregate(original string, tempColumn string) ast.Expression {
	col := &ast.Column{Name: ast.NewIdentifier(tempColumn)}
	name := ast.FuncNameUpper(original)
	switch {
	case ast.CountLikeFunctionNames[name] || name == "COUNT_IF" || name == "COUNTIF":
		return &ast.FuncCall{Name: "sum", Args: []ast.Expression{col}}
	case name == "ARRAY_AGG" || name == "ARRAYAGG":
		inner := &ast.FuncCall{Name: "array_agg", Args: []ast.Expression{col}}
		return &ast.FuncCall{Name: "flatten", Args: []ast.Expression{inner}}
	default:
		return &ast.FuncCall{Name: strings.ToLower(original), Args: []ast.Expression{col}}
	}
}

// BuildFinalizeQuery renders the second-stage SELECT that
// FinalizeAggregatePolicies submits to the engine: one scalar boolean
// column per policy, evaluating its re-aggregated constraint
// across the full sink table. The returned policy slice is aligned
// positionally with the statement's SELECT items (a policy whose
// constraint has no aggregate call at all — possible but pointless for
// an AGGREGATE policy — contributes no column and is omitted from both).
func BuildFinalizeQuery(sinkTable string, policies []*policy.Policy) (*ast.SelectStatement, []*policy.Policy, error) {
	stmt := &ast.SelectStatement{
		From: &ast.FromClause{Source: &ast.TableRef{Name: ast.NewIdentifier(sinkTable)}},
	}
	var included []*policy.Policy
	for _, p := range policies {
		cols := StashColumns(p)
		if len(cols) == 0 {
			continue
		}
		verdict, err := FinalizeConstraint(p, cols)
		if err != nil {
			return nil, nil, err
		}
		output := "verdict_" + p.ID().String()
		stmt.Items = append(stmt.Items, ast.SelectItem{Expr: verdict, Alias: ast.NewIdentifier(output)})
		included = append(included, p)
	}
	return stmt, included, nil
}
