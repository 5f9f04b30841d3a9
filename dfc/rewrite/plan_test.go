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

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/reallocf/dfc-sql-rewriter/dfc/policy"
	"github.com/reallocf/dfc-sql-rewriter/sql/ast"
	"github.com/reallocf/dfc-sql-rewriter/sql/parser"
)

func mustParseSelect(t *testing.T, sql string) *ast.SelectStatement {
	t.Helper()
	stmt, err := parser.ParseStatement(sql)
	require.NoError(t, err)
	sel, ok := stmt.(*ast.SelectStatement)
	require.Truef(t, ok, "expected *ast.SelectStatement, got %T", stmt)
	return sel
}

func removePolicy(t *testing.T, source, constraint string) *policy.Policy {
	t.Helper()
	p, err := policy.New([]string{source}, "", constraint, policy.ActionRemove, "", false)
	require.NoError(t, err)
	return p
}

func TestBuildScanPlan_NoLimitJoinsPolicyEvalWithoutOuterLimit(t *testing.T) {
	stmt := mustParseSelect(t, "SELECT foo.id, foo.v FROM foo")
	p := removePolicy(t, "foo", "max(foo.v) > 10")
	log := logrus.NewEntry(logrus.New())

	out, err := buildScanPlan(stmt, []*policy.Policy{p}, nil, "/tmp/dfc-stream.tsv", log)
	require.NoError(t, err)

	require.Nil(t, out.Limit)
	require.Nil(t, out.Offset)
	require.Empty(t, out.OrderBy)
	require.Equal(t,
		"WITH base_query AS (SELECT foo.id, foo.v, rowid() AS __dfc_rowid FROM foo), "+
			"policy_eval AS (SELECT rowid() AS __dfc_rowid FROM foo WHERE (foo.v > 10)) "+
			"SELECT base_query.* EXCLUDE (__dfc_rowid) "+
			"FROM base_query JOIN policy_eval ON (base_query.__dfc_rowid = policy_eval.__dfc_rowid)",
		out.String())
}

// TestBuildScanPlan_KeepsLimitOffsetOrderByInsideBaseQuery guards the
// limit-then-filter semantics a LIMIT query must have under a REMOVE
// policy: the original unfiltered row set is ordered and capped inside
// base_query, and the policy join then filters whichever rows base_query
// already picked, so the final result can come back with fewer rows than
// the LIMIT named.
func TestBuildScanPlan_KeepsLimitOffsetOrderByInsideBaseQuery(t *testing.T) {
	stmt := mustParseSelect(t, "SELECT foo.id, foo.v FROM foo ORDER BY foo.v DESC LIMIT 3 OFFSET 1")
	p := removePolicy(t, "foo", "max(foo.v) > 10")
	log := logrus.NewEntry(logrus.New())

	out, err := buildScanPlan(stmt, []*policy.Policy{p}, nil, "/tmp/dfc-stream.tsv", log)
	require.NoError(t, err)

	// LIMIT/OFFSET/ORDER BY must not appear on the outer, post-join query.
	require.Nil(t, out.Limit)
	require.Nil(t, out.Offset)
	require.Empty(t, out.OrderBy)

	require.NotNil(t, out.With)
	require.Len(t, out.With.CTEs, 2)
	base := out.With.CTEs[0]
	require.Equal(t, baseQueryName, base.Name.Lower())
	require.Equal(t, "foo.v DESC", base.Query.OrderBy[0].String())
	require.Equal(t, "3", base.Query.Limit.String())
	require.Equal(t, "1", base.Query.Offset.String())

	require.Equal(t,
		"WITH base_query AS (SELECT foo.id, foo.v, rowid() AS __dfc_rowid FROM foo ORDER BY foo.v DESC LIMIT 3 OFFSET 1), "+
			"policy_eval AS (SELECT rowid() AS __dfc_rowid FROM foo WHERE (foo.v > 10)) "+
			"SELECT base_query.* EXCLUDE (__dfc_rowid) "+
			"FROM base_query JOIN policy_eval ON (base_query.__dfc_rowid = policy_eval.__dfc_rowid)",
		out.String())
}

func TestBuildScanPlan_LimitOnlyNoOrderBy(t *testing.T) {
	stmt := mustParseSelect(t, "SELECT foo.id FROM foo LIMIT 5")
	p := removePolicy(t, "foo", "max(foo.id) > 0")
	log := logrus.NewEntry(logrus.New())

	out, err := buildScanPlan(stmt, []*policy.Policy{p}, nil, "/tmp/dfc-stream.tsv", log)
	require.NoError(t, err)

	base := out.With.CTEs[0]
	require.Equal(t, "5", base.Query.Limit.String())
	require.Nil(t, base.Query.Offset)
	require.Empty(t, base.Query.OrderBy)
}

func TestBuildScanPlan_DistinctLogsFallbackWarning(t *testing.T) {
	stmt := mustParseSelect(t, "SELECT DISTINCT foo.id FROM foo")
	p := removePolicy(t, "foo", "max(foo.id) > 0")
	logger, hook := test.NewNullLogger()
	log := logrus.NewEntry(logger)

	_, err := buildScanPlan(stmt, []*policy.Policy{p}, nil, "/tmp/dfc-stream.tsv", log)
	require.NoError(t, err)

	require.Len(t, hook.Entries, 1)
	require.Equal(t, logrus.WarnLevel, hook.Entries[0].Level)
	require.Contains(t, hook.Entries[0].Message, "__dfc_rowid")
}

func TestBuildScanPlan_InvalidatePolicyAddsValidColumnNotFilter(t *testing.T) {
	stmt := mustParseSelect(t, "SELECT foo.id FROM foo")
	p, err := policy.New([]string{"foo"}, "", "max(foo.id) > 0", policy.ActionInvalidate, "", false)
	require.NoError(t, err)
	log := logrus.NewEntry(logrus.New())

	out, err := buildScanPlan(stmt, []*policy.Policy{p}, nil, "/tmp/dfc-stream.tsv", log)
	require.NoError(t, err)

	policyEval := out.With.CTEs[1]
	require.Nil(t, policyEval.Query.Where, "INVALIDATE must not filter policy_eval, only annotate it")
	require.Contains(t, policyEval.Query.String(), "AS valid")
	require.Contains(t, out.String(), "policy_eval.valid AS valid")
}

func TestBuildAggregationPlan_GroupByUsesInnerJoinOnGroupKeys(t *testing.T) {
	stmt := mustParseSelect(t, "SELECT foo.region, sum(foo.v) FROM foo GROUP BY foo.region")
	p, err := policy.New([]string{"foo"}, "", "sum(foo.v) < 1000", policy.ActionRemove, "", true)
	require.NoError(t, err)

	out, err := buildAggregationPlan(stmt, []*policy.Policy{p}, nil, "/tmp/dfc-stream.tsv")
	require.NoError(t, err)

	join, ok := out.From.Source.(*ast.JoinExpr)
	require.True(t, ok)
	require.Equal(t, ast.JoinInner, join.Kind)
	require.Equal(t, "(base_query.region = policy_eval.region)", join.On.String())

	policyEval := out.With.CTEs[1].Query
	require.Equal(t, "(SUM(foo.v) < 1000)", policyEval.Having.String())
}

func TestBuildAggregationPlan_NoGroupByUsesCrossJoinOnSyntheticKey(t *testing.T) {
	stmt := mustParseSelect(t, "SELECT sum(foo.v) FROM foo")
	p, err := policy.New([]string{"foo"}, "", "sum(foo.v) < 1000", policy.ActionRemove, "", true)
	require.NoError(t, err)

	out, err := buildAggregationPlan(stmt, []*policy.Policy{p}, nil, "/tmp/dfc-stream.tsv")
	require.NoError(t, err)

	join, ok := out.From.Source.(*ast.JoinExpr)
	require.True(t, ok)
	require.Equal(t, ast.JoinCross, join.Kind)
	require.Nil(t, join.On)

	policyEval := out.With.CTEs[1].Query
	require.Equal(t, "1 AS "+twoPhaseKey, policyEval.Items[0].String())
}

func TestBuildPlan_DispatchesScanAndAggregationByShape(t *testing.T) {
	log := logrus.NewEntry(logrus.New())

	scanStmt := mustParseSelect(t, "SELECT foo.id FROM foo")
	scanPolicy := removePolicy(t, "foo", "max(foo.id) > 0")
	scanOut, err := BuildPlan(scanStmt, []*policy.Policy{scanPolicy}, nil, "/tmp/dfc-stream.tsv", log)
	require.NoError(t, err)
	require.NotNil(t, scanOut.With)
	_, isJoin := scanOut.From.Source.(*ast.JoinExpr)
	require.True(t, isJoin)

	aggStmt := mustParseSelect(t, "SELECT sum(foo.v) FROM foo")
	aggPolicy, err := policy.New([]string{"foo"}, "", "sum(foo.v) < 1000", policy.ActionRemove, "", true)
	require.NoError(t, err)
	aggOut, err := BuildPlan(aggStmt, []*policy.Policy{aggPolicy}, nil, "/tmp/dfc-stream.tsv", log)
	require.NoError(t, err)
	join, isJoin := aggOut.From.Source.(*ast.JoinExpr)
	require.True(t, isJoin)
	require.Equal(t, ast.JoinCross, join.Kind)
}

func TestBuildPlan_NoMatchesReturnsStatementUnchanged(t *testing.T) {
	stmt := mustParseSelect(t, "SELECT foo.id FROM foo")
	log := logrus.NewEntry(logrus.New())
	out, err := BuildPlan(stmt, nil, nil, "/tmp/dfc-stream.tsv", log)
	require.NoError(t, err)
	require.Same(t, stmt, out)
}
