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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reallocf/dfc-sql-rewriter/sql/ast"
	"github.com/reallocf/dfc-sql-rewriter/sql/parser"
)

func mustParseExpr(t *testing.T, sql string) ast.Expression {
	t.Helper()
	expr, err := parser.ParseExpression(sql)
	require.NoError(t, err)
	return expr
}

func TestRewriteTableRefs_SubstitutesMappedTable(t *testing.T) {
	expr := mustParseExpr(t, "foo.id > 1")
	out, err := RewriteTableRefs(expr, map[string]string{"foo": "inner_foo"})
	require.NoError(t, err)
	require.Equal(t, "(inner_foo.id > 1)", out.String())
}

func TestRewriteTableRefs_PartialMapOnlyAffectsMappedTable(t *testing.T) {
	expr := mustParseExpr(t, "foo.id > baz.x")
	out, err := RewriteTableRefs(expr, map[string]string{"baz": "inner_baz"})
	require.NoError(t, err)
	require.Equal(t, "(foo.id > inner_baz.x)", out.String())
}

func TestRewriteTableRefs_EmptyMapIsNoop(t *testing.T) {
	expr := mustParseExpr(t, "foo.id > 1")
	out, err := RewriteTableRefs(expr, nil)
	require.NoError(t, err)
	require.Same(t, expr, out)
}

func TestSubstituteSinkColumns_ReplacesQualifiedReference(t *testing.T) {
	expr := mustParseExpr(t, "reports.amount > 0")
	outputs := map[string]ast.Expression{
		"amount": &ast.Column{Table: ast.NewIdentifier("foo"), Name: ast.NewIdentifier("amount")},
	}
	out, err := SubstituteSinkColumns(expr, "reports", outputs)
	require.NoError(t, err)
	require.Equal(t, "(foo.amount > 0)", out.String())
}

func TestSubstituteSinkColumns_LeavesUnknownColumnAlone(t *testing.T) {
	expr := mustParseExpr(t, "reports.other > 0")
	out, err := SubstituteSinkColumns(expr, "reports", map[string]ast.Expression{})
	require.NoError(t, err)
	require.Equal(t, "(reports.other > 0)", out.String())
}

func TestBindRemoveOrKill_RemovePassesClauseThrough(t *testing.T) {
	clause := mustParseExpr(t, "foo.id > 1")
	got := BindRemoveOrKill(clause, false)
	require.Same(t, clause, got)
}

func TestBindRemoveOrKill_KillWrapsInKillCall(t *testing.T) {
	clause := mustParseExpr(t, "foo.id > 1")
	got := BindRemoveOrKill(clause, true)
	require.Equal(t, "CASE WHEN (foo.id > 1) THEN true ELSE kill() END", got.String())
}

func TestBindHumanOrLLM_WrapsAddressViolatingRows(t *testing.T) {
	clause := mustParseExpr(t, "foo.id > 1")
	cols := []*ast.Column{{Table: ast.NewIdentifier("foo"), Name: ast.NewIdentifier("id")}}
	got := BindHumanOrLLM(clause, cols, "id must be positive", "/tmp/dfc-stream.tsv")
	require.Equal(t,
		"CASE WHEN (foo.id > 1) THEN true ELSE address_violating_rows(foo.id, 'id', 'id must be positive', '/tmp/dfc-stream.tsv') END",
		got.String())
}

func TestBindHumanOrLLM_MultipleColumnsJoinedByComma(t *testing.T) {
	clause := mustParseExpr(t, "foo.id > 1")
	cols := []*ast.Column{
		{Table: ast.NewIdentifier("foo"), Name: ast.NewIdentifier("id")},
		{Table: ast.NewIdentifier("foo"), Name: ast.NewIdentifier("amount")},
	}
	got := BindHumanOrLLM(clause, cols, "", "/tmp/dfc-stream.tsv")
	require.Equal(t,
		"CASE WHEN (foo.id > 1) THEN true ELSE address_violating_rows(foo.id, foo.amount, 'id,amount', '', '/tmp/dfc-stream.tsv') END",
		got.String())
}

func TestAndAll_Empty(t *testing.T) {
	require.Nil(t, AndAll(nil))
}

func TestAndAll_Single(t *testing.T) {
	clause := mustParseExpr(t, "foo.id > 1")
	got := AndAll([]ast.Expression{clause})
	require.Same(t, clause, got)
}

func TestAndAll_MultipleComposeWithAnd(t *testing.T) {
	a := mustParseExpr(t, "foo.id > 1")
	b := mustParseExpr(t, "foo.id < 10")
	got := AndAll([]ast.Expression{a, b})
	require.Equal(t, "((foo.id > 1) AND (foo.id < 10))", got.String())
}
