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

	"github.com/reallocf/dfc-sql-rewriter/sql/parser"
)

func lowerSQL(t *testing.T, sql string) string {
	t.Helper()
	expr, err := parser.ParseExpression(sql)
	require.NoError(t, err)
	lowered, err := LowerAggregates(expr)
	require.NoError(t, err)
	return lowered.String()
}

func TestLowerAggregates_Count(t *testing.T) {
	require.Equal(t, "(1 > 1)", lowerSQL(t, "count(foo.id) > 1"))
}

func TestLowerAggregates_CountStar(t *testing.T) {
	require.Equal(t, "(1 > 1)", lowerSQL(t, "count(*) > 1"))
}

func TestLowerAggregates_CountDistinct(t *testing.T) {
	require.Equal(t, "(1 > 1)", lowerSQL(t, "count(distinct foo.id) > 1"))
}

func TestLowerAggregates_ApproxCountDistinct(t *testing.T) {
	require.Equal(t, "(1 > 1)", lowerSQL(t, "approx_count_distinct(foo.id) > 1"))
}

func TestLowerAggregates_CountIf(t *testing.T) {
	got := lowerSQL(t, "count_if(foo.id > 2) > 0")
	require.Equal(t, "(CASE WHEN (foo.id > 2) THEN 1 ELSE 0 END > 0)", got)
}

func TestLowerAggregates_ArrayAgg(t *testing.T) {
	require.Equal(t, "([foo.id] = [2])", lowerSQL(t, "array_agg(foo.id) = ARRAY[2]"))
}

func TestLowerAggregates_DefaultUsesFirstArg(t *testing.T) {
	require.Equal(t, "(foo.id > 1)", lowerSQL(t, "max(foo.id) > 1"))
	require.Equal(t, "(foo.id > 1)", lowerSQL(t, "sum(foo.id) > 1"))
}

func TestLowerAggregates_FilterWrapsLoweredValue(t *testing.T) {
	got := lowerSQL(t, "max(foo.id) FILTER (WHERE foo.id > 0) > 1")
	require.Equal(t, "(CASE WHEN (foo.id > 0) THEN foo.id ELSE NULL END > 1)", got)
}

func TestLowerAggregates_NonAggregateUnchanged(t *testing.T) {
	require.Equal(t, "(foo.id > 1)", lowerSQL(t, "foo.id > 1"))
}

func TestLowerAggregates_NestedInsideComparison(t *testing.T) {
	got := lowerSQL(t, "max(foo.id) > min(foo.id)")
	require.Equal(t, "(foo.id > foo.id)", got)
}
