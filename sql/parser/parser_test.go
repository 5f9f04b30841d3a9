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

package parser

import (
	"testing"

	"github.com/reallocf/dfc-sql-rewriter/sql/ast"
	"github.com/stretchr/testify/require"
)

func TestParseStatement_SimpleSelect(t *testing.T) {
	stmt, err := ParseStatement("SELECT id, name AS full_name FROM users WHERE id > 1")
	require.NoError(t, err)
	sel, ok := stmt.(*ast.SelectStatement)
	require.True(t, ok)
	require.Len(t, sel.Items, 2)
	require.Equal(t, "full_name", sel.Items[1].Alias.Lower())
	require.NotNil(t, sel.Where)
	require.NotNil(t, sel.From)
}

func TestParseStatement_JoinAndAlias(t *testing.T) {
	stmt, err := ParseStatement(`SELECT o.id, c.name FROM orders o JOIN customers AS c ON o.customer_id = c.id`)
	require.NoError(t, err)
	sel := stmt.(*ast.SelectStatement)
	join, ok := sel.From.Source.(*ast.JoinExpr)
	require.True(t, ok)
	require.Equal(t, ast.JoinInner, join.Kind)
	require.NotNil(t, join.On)
}

func TestParseStatement_Aggregation(t *testing.T) {
	stmt, err := ParseStatement(`
		SELECT customer_id, COUNT(*) AS cnt, SUM(amount)
		FROM orders
		GROUP BY customer_id
		HAVING COUNT(*) > 1
	`)
	require.NoError(t, err)
	sel := stmt.(*ast.SelectStatement)
	require.True(t, sel.HasAggregates())
	require.Len(t, sel.GroupBy, 1)
	require.NotNil(t, sel.Having)
}

func TestParseStatement_CTE(t *testing.T) {
	stmt, err := ParseStatement(`
		WITH recent AS (SELECT id FROM orders WHERE created_at > '2026-01-01')
		SELECT * FROM recent
	`)
	require.NoError(t, err)
	sel := stmt.(*ast.SelectStatement)
	require.NotNil(t, sel.With)
	require.Len(t, sel.With.CTEs, 1)
	require.Equal(t, "recent", sel.With.CTEs[0].Name.Lower())
}

func TestParseStatement_Subquery(t *testing.T) {
	stmt, err := ParseStatement(`SELECT * FROM (SELECT id FROM orders) AS sub WHERE sub.id > 1`)
	require.NoError(t, err)
	sel := stmt.(*ast.SelectStatement)
	_, ok := sel.From.Source.(*ast.SubqueryRef)
	require.True(t, ok)
}

func TestParseStatement_InsertSelect(t *testing.T) {
	stmt, err := ParseStatement(`INSERT INTO audit_log (id, msg) SELECT id, 'x' FROM orders WHERE id > 1`)
	require.NoError(t, err)
	ins, ok := stmt.(*ast.InsertStatement)
	require.True(t, ok)
	require.Equal(t, "audit_log", ins.Table.Lower())
	require.NotNil(t, ins.Select)
}

func TestParseStatement_InsertValues(t *testing.T) {
	stmt, err := ParseStatement(`INSERT INTO audit_log (id, msg) VALUES (1, 'hello'), (2, 'world')`)
	require.NoError(t, err)
	ins := stmt.(*ast.InsertStatement)
	require.Len(t, ins.Values, 2)
}

func TestParseStatement_UnionPassthrough(t *testing.T) {
	q := `SELECT id FROM a UNION SELECT id FROM b`
	stmt, err := ParseStatement(q)
	require.NoError(t, err)
	opq, ok := stmt.(*ast.OpaqueStatement)
	require.True(t, ok)
	require.Equal(t, q, opq.Text)
}

func TestParseStatement_UpdatePassthrough(t *testing.T) {
	q := `UPDATE orders SET status = 'shipped' WHERE id = 1`
	stmt, err := ParseStatement(q)
	require.NoError(t, err)
	_, ok := stmt.(*ast.OpaqueStatement)
	require.True(t, ok)
}

func TestParseExpression_PolicyConstraints(t *testing.T) {
	cases := []string{
		`max(foo.id) > 1`,
		`COUNT_IF(foo.id > 2) > 0`,
		`array_agg(foo.id) = ARRAY[2]`,
		`reports.status = 'approved'`,
		`foo.amount >= 100 AND foo.region = 'us'`,
		`NOT EXISTS (SELECT 1 FROM blocklist b WHERE b.id = foo.id)`,
	}
	for _, c := range cases {
		expr, err := ParseExpression(c)
		require.NoErrorf(t, err, "expr: %s", c)
		require.NotNil(t, expr)
	}
}

func TestParseExpression_CaseExpression(t *testing.T) {
	expr, err := ParseExpression(`CASE WHEN foo.amount > 100 THEN 1 ELSE 0 END`)
	require.NoError(t, err)
	c, ok := expr.(*ast.Case)
	require.True(t, ok)
	require.Len(t, c.Whens, 1)
	require.NotNil(t, c.Else)
}

func TestParseExpression_FuncFilter(t *testing.T) {
	expr, err := ParseExpression(`COUNT(*) FILTER (WHERE foo.active = true)`)
	require.NoError(t, err)
	fc, ok := expr.(*ast.FuncCall)
	require.True(t, ok)
	require.True(t, fc.Star)
	require.NotNil(t, fc.Filter)
}

func TestParseStatement_RoundTripRendersStable(t *testing.T) {
	stmt, err := ParseStatement(`SELECT id FROM orders WHERE amount > 10 ORDER BY id DESC LIMIT 5`)
	require.NoError(t, err)
	require.Contains(t, stmt.String(), "ORDER BY id DESC")
	require.Contains(t, stmt.String(), "LIMIT 5")
}
