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

	"github.com/sirupsen/logrus"

	"github.com/reallocf/dfc-sql-rewriter/dfc/policy"
	"github.com/reallocf/dfc-sql-rewriter/sql/ast"
)

const (
	rowIDColumn    = "__dfc_rowid"
	twoPhaseKey    = "__dfc_two_phase_key"
	baseQueryName  = "base_query"
	policyEvalName = "policy_eval"
)

// invalidClause is one INVALIDATE/INVALIDATE_MESSAGE policy's bound
// constraint, carrying the policy description along so a companion
// message column can be built for INVALIDATE_MESSAGE.
type invalidClause struct {
	expr        ast.Expression
	message     string
	withMessage bool
}

// boundClauses is the set of per-policy clauses, already table-rewritten
// and (for scan mode) aggregation-lowered, grouped by how they bind into
// the final query.
type boundClauses struct {
	gating  []ast.Expression // REMOVE/KILL/HUMAN/LLM-bound — AND together into WHERE/HAVING
	invalid []invalidClause  // INVALIDATE/INVALIDATE_MESSAGE — AND together into a `valid` output column
}

// BuildPlan runs the constraint transformer and two-phase plan builder
// over a matched SELECT statement and returns the rewritten statement
// implementing the two-phase plan. rewriteMap comes from the column
// propagator and is applied before clauses are bound.
func BuildPlan(stmt *ast.SelectStatement, matches []*policy.Policy, rewriteMap map[string]string, streamPath string, log *logrus.Entry) (*ast.SelectStatement, error) {
	if len(matches) == 0 {
		return stmt, nil
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	shape := Classify(stmt)
	switch shape {
	case ShapeAggregation:
		return buildAggregationPlan(stmt, matches, rewriteMap, streamPath)
	case ShapeScan:
		return buildScanPlan(stmt, matches, rewriteMap, streamPath, log)
	default:
		return stmt, nil
	}
}

// BuildInsertPlan applies the constraint transformer's in-place rewrite
// to an INSERT INTO sink SELECT …: no two-phase shell, WHERE/HAVING is
// added directly to the embedded SELECT, and INVALIDATE* policies extend
// the INSERT column list. matches must already be filtered to policies whose sink
// is ins.Table and whose sources are satisfied by the embedded SELECT's
// FROM. An INSERT…VALUES statement (ins.Select == nil) carries no
// per-row predicate to attach to, so it is returned unchanged.
func BuildInsertPlan(ins *ast.InsertStatement, matches []*policy.Policy, rewriteMap map[string]string, streamPath string) (*ast.InsertStatement, error) {
	if len(matches) == 0 || ins.Select == nil {
		return ins, nil
	}

	inner := ins.Select.Clone()
	shape := Classify(inner)

	// AGGREGATE policies don't gate the row being inserted at all: their
	// constraint is only meaningful once evaluated across every row the
	// sink has accumulated, which is what FinalizeAggregatePolicies does
	// in a later pass. Here they only stash the per-row quantity their
	// aggregate needs so that later pass has something to re-aggregate.
	var rowMatches, aggMatches []*policy.Policy
	for _, p := range matches {
		if p.Aggregate() {
			aggMatches = append(aggMatches, p)
		} else {
			rowMatches = append(rowMatches, p)
		}
	}
	newColumns := append([]ast.Identifier(nil), ins.Columns...)
	for _, p := range aggMatches {
		for _, tc := range StashColumns(p) {
			inner.Items = append(inner.Items, ast.SelectItem{Expr: tc.Expr, Alias: ast.NewIdentifier(tc.Name)})
			if len(newColumns) > 0 {
				newColumns = append(newColumns, ast.NewIdentifier(tc.Name))
			}
		}
	}
	matches = rowMatches
	if len(matches) == 0 {
		return &ast.InsertStatement{Table: ins.Table, Columns: newColumns, Select: inner}, nil
	}

	bound, err := bindClauses(matches, rewriteMap, streamPath, shape == ShapeScan)
	if err != nil {
		return nil, err
	}

	outputs := sinkColumnOutputs(ins, inner)
	sinkTable := ins.Table.Lower()
	if err := substituteSinkColumnsIn(bound, sinkTable, outputs); err != nil {
		return nil, err
	}

	gate := AndAll(bound.gating)
	if shape == ShapeAggregation {
		inner.Having = ast.And(inner.Having, gate)
	} else {
		inner.Where = ast.And(inner.Where, gate)
	}

	validExpr, messageExpr := invalidColumns(bound.invalid)
	if validExpr != nil {
		inner.Items = append(inner.Items, ast.SelectItem{Expr: validExpr, Alias: ast.NewIdentifier("valid")})
		if len(newColumns) > 0 {
			newColumns = append(newColumns, ast.NewIdentifier("valid"))
		}
	}
	if messageExpr != nil {
		inner.Items = append(inner.Items, ast.SelectItem{Expr: messageExpr, Alias: ast.NewIdentifier("valid_message")})
		if len(newColumns) > 0 {
			newColumns = append(newColumns, ast.NewIdentifier("valid_message"))
		}
	}

	return &ast.InsertStatement{Table: ins.Table, Columns: newColumns, Select: inner}, nil
}

// sinkColumnOutputs maps a sink column name to the SELECT-output
// expression that will produce it, so a policy constraint written against
// sink.col (an INSERT-into-new-row context, where no such row exists yet)
// can be evaluated per-row. When the INSERT names an
// explicit column list, outputs are matched positionally; otherwise by
// the SELECT item's own output name.
func sinkColumnOutputs(ins *ast.InsertStatement, inner *ast.SelectStatement) map[string]ast.Expression {
	outputs := map[string]ast.Expression{}
	if len(ins.Columns) > 0 {
		for i, col := range ins.Columns {
			if i < len(inner.Items) {
				outputs[col.Lower()] = inner.Items[i].Expr
			}
		}
		return outputs
	}
	for _, item := range inner.Items {
		if name := item.OutputName(); name != "" {
			outputs[name] = item.Expr
		}
	}
	return outputs
}

func substituteSinkColumnsIn(bound *boundClauses, sinkTable string, outputs map[string]ast.Expression) error {
	for i, clause := range bound.gating {
		substituted, err := SubstituteSinkColumns(clause, sinkTable, outputs)
		if err != nil {
			return err
		}
		bound.gating[i] = substituted
	}
	for i, inv := range bound.invalid {
		substituted, err := SubstituteSinkColumns(inv.expr, sinkTable, outputs)
		if err != nil {
			return err
		}
		bound.invalid[i].expr = substituted
	}
	return nil
}

func bindClauses(matches []*policy.Policy, rewriteMap map[string]string, streamPath string, lower bool) (*boundClauses, error) {
	out := &boundClauses{}
	for _, p := range matches {
		clause := p.Constraint()
		if lower {
			lowered, err := LowerAggregates(clause)
			if err != nil {
				return nil, err
			}
			clause = lowered
		}
		rewritten, err := RewriteTableRefs(clause, rewriteMap)
		if err != nil {
			return nil, err
		}
		clause = rewritten

		switch p.Action() {
		case policy.ActionRemove:
			out.gating = append(out.gating, clause)
		case policy.ActionKill:
			out.gating = append(out.gating, BindRemoveOrKill(clause, true))
		case policy.ActionInvalidate, policy.ActionInvalidateMessage:
			out.invalid = append(out.invalid, invalidClause{
				expr:        clause,
				message:     violationMessage(p),
				withMessage: p.Action() == policy.ActionInvalidateMessage,
			})
		case policy.ActionHuman, policy.ActionLLM:
			cols := sourceColumnRefs(p)
			out.gating = append(out.gating, BindHumanOrLLM(clause, cols, violationMessage(p), streamPath))
		}
	}
	return out, nil
}

// violationMessage builds the diagnostic text an INVALIDATE_MESSAGE
// column reports for a failing policy, falling back to a generic message
// when the policy carries no description.
func violationMessage(p *policy.Policy) string {
	if p.Description() != "" {
		return p.Description()
	}
	return "dfc policy violation (" + p.Identifier() + "): " + p.ConstraintSQL()
}

// invalidColumns builds the `valid` and, if any policy asked for one, the
// `valid_message` output column from a set of bound INVALIDATE clauses.
// `valid` is true only when every clause held; `valid_message` reports the
// first failing INVALIDATE_MESSAGE policy's description, NULL otherwise.
func invalidColumns(clauses []invalidClause) (validExpr ast.Expression, messageExpr ast.Expression) {
	var exprs []ast.Expression
	var messageCase ast.Expression
	for _, c := range clauses {
		exprs = append(exprs, c.expr)
		if !c.withMessage {
			continue
		}
		failed := ast.NewSimpleCaseWhen(c.expr, ast.NewNull(), ast.NewString(c.message))
		if messageCase == nil {
			messageCase = failed
		} else {
			messageCase = &ast.FuncCall{Name: "coalesce", Args: []ast.Expression{messageCase, failed}}
		}
	}
	return AndAll(exprs), messageCase
}

func sourceColumnRefs(p *policy.Policy) []*ast.Column {
	var cols []*ast.Column
	for _, source := range p.Sources() {
		for _, name := range p.SourceColumnsNeeded(source) {
			cols = append(cols, &ast.Column{Table: ast.NewIdentifier(source), Name: ast.NewIdentifier(name)})
		}
	}
	return cols
}

func buildAggregationPlan(stmt *ast.SelectStatement, matches []*policy.Policy, rewriteMap map[string]string, streamPath string) (*ast.SelectStatement, error) {
	bound, err := bindClauses(matches, rewriteMap, streamPath, false)
	if err != nil {
		return nil, err
	}

	base := stmt.Clone()

	policyEval := &ast.SelectStatement{
		From:  stmt.From,
		Where: stmt.Where,
	}

	var joinOn ast.Expression
	var joinKind ast.JoinKind
	if len(stmt.GroupBy) > 0 {
		policyEval.GroupBy = append([]ast.Expression(nil), stmt.GroupBy...)
		keyNames, err := groupKeyNames(stmt.GroupBy)
		if err != nil {
			return nil, err
		}
		for i, key := range stmt.GroupBy {
			policyEval.Items = append(policyEval.Items, ast.SelectItem{Expr: key, Alias: ast.NewIdentifier(keyNames[i])})
		}
		for _, name := range keyNames {
			eq := &ast.BinaryExpr{
				Op:   "=",
				Left: &ast.Column{Table: ast.NewIdentifier(baseQueryName), Name: ast.NewIdentifier(name)},
				Right: &ast.Column{Table: ast.NewIdentifier(policyEvalName), Name: ast.NewIdentifier(name)},
			}
			joinOn = ast.And(joinOn, eq)
		}
		joinKind = ast.JoinInner
	} else {
		policyEval.Items = append(policyEval.Items, ast.SelectItem{Expr: ast.NewNumber("1"), Alias: ast.NewIdentifier(twoPhaseKey)})
		joinKind = ast.JoinCross
	}

	policyEval.Having = AndAll(bound.gating)
	validExpr, messageExpr := invalidColumns(bound.invalid)
	if validExpr != nil {
		policyEval.Items = append(policyEval.Items, ast.SelectItem{Expr: validExpr, Alias: ast.NewIdentifier("valid")})
	}
	if messageExpr != nil {
		policyEval.Items = append(policyEval.Items, ast.SelectItem{Expr: messageExpr, Alias: ast.NewIdentifier("valid_message")})
	}

	with := &ast.WithClause{CTEs: []*ast.CTE{
		{Name: ast.NewIdentifier(baseQueryName), Query: base},
		{Name: ast.NewIdentifier(policyEvalName), Query: policyEval},
	}}

	join := &ast.JoinExpr{
		Kind:  joinKind,
		Left:  &ast.TableRef{Name: ast.NewIdentifier(baseQueryName)},
		Right: &ast.TableRef{Name: ast.NewIdentifier(policyEvalName)},
		On:    joinOn,
	}

	items := []ast.SelectItem{{Expr: &ast.Star{Table: ast.NewIdentifier(baseQueryName)}}}
	items = append(items, outputColumns(validExpr, messageExpr)...)

	return &ast.SelectStatement{
		With:  with,
		Items: items,
		From:  &ast.FromClause{Source: join},
	}, nil
}

// outputColumns projects policy_eval's `valid`/`valid_message` columns
// into the outer query's SELECT list, when present.
func outputColumns(validExpr, messageExpr ast.Expression) []ast.SelectItem {
	var items []ast.SelectItem
	if validExpr != nil {
		items = append(items, ast.SelectItem{
			Expr:  &ast.Column{Table: ast.NewIdentifier(policyEvalName), Name: ast.NewIdentifier("valid")},
			Alias: ast.NewIdentifier("valid"),
		})
	}
	if messageExpr != nil {
		items = append(items, ast.SelectItem{
			Expr:  &ast.Column{Table: ast.NewIdentifier(policyEvalName), Name: ast.NewIdentifier("valid_message")},
			Alias: ast.NewIdentifier("valid_message"),
		})
	}
	return items
}

func groupKeyNames(groupBy []ast.Expression) ([]string, error) {
	names := make([]string, len(groupBy))
	for i, g := range groupBy {
		col, ok := g.(*ast.Column)
		if !ok {
			return nil, fmt.Errorf("two-phase plan builder requires GROUP BY expressions to be bare columns, got %s", g.String())
		}
		names[i] = col.ColumnName()
	}
	return names, nil
}

func buildScanPlan(stmt *ast.SelectStatement, matches []*policy.Policy, rewriteMap map[string]string, streamPath string, log *logrus.Entry) (*ast.SelectStatement, error) {
	bound, err := bindClauses(matches, rewriteMap, streamPath, true)
	if err != nil {
		return nil, err
	}

	if stmt.Distinct {
		log.Warn("dfc: SELECT DISTINCT two-phase join key falls back to __dfc_rowid; exact dedup semantics under policy filtering are not separately verified")
	}

	base := stmt.Clone()
	base.Items = append(append([]ast.SelectItem(nil), base.Items...), ast.SelectItem{
		Expr:  &ast.FuncCall{Name: "rowid"},
		Alias: ast.NewIdentifier(rowIDColumn),
	})
	// base_query keeps stmt's own ORDER BY/LIMIT/OFFSET and runs them over
	// the unfiltered row set, exactly as stmt itself would without any
	// policy in play. The policy join below then filters whichever rows
	// base_query selected, so a LIMIT n query can legitimately come back
	// with fewer than n rows once violators are removed. Limit-then-filter,
	// not filter-then-limit.

	policyEval := &ast.SelectStatement{
		From: stmt.From,
		Items: []ast.SelectItem{
			{Expr: &ast.FuncCall{Name: "rowid"}, Alias: ast.NewIdentifier(rowIDColumn)},
		},
		Where: AndAll(bound.gating),
	}
	validExpr, messageExpr := invalidColumns(bound.invalid)
	if validExpr != nil {
		policyEval.Items = append(policyEval.Items, ast.SelectItem{Expr: validExpr, Alias: ast.NewIdentifier("valid")})
	}
	if messageExpr != nil {
		policyEval.Items = append(policyEval.Items, ast.SelectItem{Expr: messageExpr, Alias: ast.NewIdentifier("valid_message")})
	}

	with := &ast.WithClause{CTEs: []*ast.CTE{
		{Name: ast.NewIdentifier(baseQueryName), Query: base},
		{Name: ast.NewIdentifier(policyEvalName), Query: policyEval},
	}}

	join := &ast.JoinExpr{
		Kind:  ast.JoinInner,
		Left:  &ast.TableRef{Name: ast.NewIdentifier(baseQueryName)},
		Right: &ast.TableRef{Name: ast.NewIdentifier(policyEvalName)},
		On: &ast.BinaryExpr{
			Op:   "=",
			Left: &ast.Column{Table: ast.NewIdentifier(baseQueryName), Name: ast.NewIdentifier(rowIDColumn)},
			Right: &ast.Column{Table: ast.NewIdentifier(policyEvalName), Name: ast.NewIdentifier(rowIDColumn)},
		},
	}

	items := []ast.SelectItem{{Expr: &ast.Star{
		Table:   ast.NewIdentifier(baseQueryName),
		Exclude: []ast.Identifier{ast.NewIdentifier(rowIDColumn)},
	}}}
	items = append(items, outputColumns(validExpr, messageExpr)...)

	return &ast.SelectStatement{
		With:  with,
		Items: items,
		From:  &ast.FromClause{Source: join},
	}, nil
}
