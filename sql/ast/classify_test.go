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

package ast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func col(table, name string) *Column {
	c := &Column{Name: NewIdentifier(name)}
	if table != "" {
		c.Table = NewIdentifier(table)
	}
	return c
}

func TestFindAggregates(t *testing.T) {
	agg := &FuncCall{Name: "COUNT", Star: true}
	plain := col("foo", "id")
	roots := []Expression{&BinaryExpr{Op: "+", Left: agg, Right: plain}}

	found := FindAggregates(roots)
	require.Len(t, found, 1)
	require.Equal(t, "COUNT", found[0].Name)
}

func TestFindAggregates_StopsAtSubquery(t *testing.T) {
	inner := &FuncCall{Name: "SUM", Args: []Expression{col("bar", "x")}}
	sub := &ScalarSubquery{Query: &SelectStatement{Items: []SelectItem{{Expr: inner}}}}
	roots := []Expression{sub}

	require.Empty(t, FindAggregates(roots))
}

func TestIsBareColumnOutsideAggregate(t *testing.T) {
	target := col("foo", "amount")
	aggregated := &FuncCall{Name: "SUM", Args: []Expression{target}}
	require.False(t, IsBareColumnOutsideAggregate(aggregated, target))

	bare := col("foo", "amount")
	require.True(t, IsBareColumnOutsideAggregate(bare, bare))
}

func TestIsBareColumnOutsideAggregate_MixedExpression(t *testing.T) {
	bareCol := col("foo", "region")
	aggCol := col("foo", "amount")
	expr := &BinaryExpr{
		Op:   "=",
		Left: bareCol,
		Right: &FuncCall{Name: "MAX", Args: []Expression{aggCol}},
	}
	require.True(t, IsBareColumnOutsideAggregate(expr, bareCol))
	require.False(t, IsBareColumnOutsideAggregate(expr, aggCol))
}

func TestCountLikeFunctionNames(t *testing.T) {
	require.True(t, CountLikeFunctionNames["COUNT"])
	require.True(t, CountLikeFunctionNames["APPROX_COUNT_DISTINCT"])
	require.False(t, CountLikeFunctionNames["SUM"])
	require.False(t, CountLikeFunctionNames["ARRAY_AGG"])
}

func TestFindColumns(t *testing.T) {
	expr := &BinaryExpr{Op: "AND", Left: col("a", "x"), Right: col("b", "y")}
	cols := FindColumns(expr)
	require.Len(t, cols, 2)
}
