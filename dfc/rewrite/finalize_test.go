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

	"github.com/reallocf/dfc-sql-rewriter/dfc/policy"
)

func TestStashColumnsNamesOneTempColumnPerAggregate(t *testing.T) {
	p, err := policy.New([]string{"foo"}, "", "max(foo.id) > 1", policy.ActionInvalidate, "", true)
	require.NoError(t, err)

	cols := StashColumns(p)
	require.Len(t, cols, 1)
	require.Equal(t, TempColumnName(p.ID().String(), 0), cols[0].Name)
	require.Equal(t, "foo.id", cols[0].Expr.String())
}

func TestFinalizeConstraintReaggregatesCountAsSum(t *testing.T) {
	p, err := policy.New([]string{"foo"}, "", "count(foo.id) > 1", policy.ActionInvalidate, "", true)
	require.NoError(t, err)

	cols := StashColumns(p)
	out, err := FinalizeConstraint(p, cols)
	require.NoError(t, err)
	require.Contains(t, out.String(), "sum("+cols[0].Name+")")
}

func TestBuildFinalizeQueryProjectsOneColumnPerPolicy(t *testing.T) {
	p1, err := policy.New([]string{"foo"}, "", "max(foo.id) > 1", policy.ActionInvalidate, "", true)
	require.NoError(t, err)
	p2, err := policy.New([]string{"foo"}, "", "count(foo.id) > 5", policy.ActionKill, "", true)
	require.NoError(t, err)

	stmt, included, err := BuildFinalizeQuery("reports", []*policy.Policy{p1, p2})
	require.NoError(t, err)
	require.Len(t, stmt.Items, 2)
	require.Equal(t, []*policy.Policy{p1, p2}, included)
	require.Contains(t, stmt.String(), "FROM reports")
}
