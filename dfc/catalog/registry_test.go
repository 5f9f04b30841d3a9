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

package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reallocf/dfc-sql-rewriter/dfc/policy"
)

// fakeLookup is a hand-rolled stand-in for *Catalog, since no database/sql
// mocking library is available in the retrieved example pack (see
// DESIGN.md); it implements the same narrow lookup interface Registry
// depends on.
type fakeLookup struct {
	tables map[string]map[string]string // table -> column -> data type
}

func (f *fakeLookup) HasTable(_ context.Context, table string) (bool, error) {
	_, ok := f.tables[strings.ToLower(table)]
	return ok, nil
}

func (f *fakeLookup) ColumnType(_ context.Context, table, column string) (string, bool, error) {
	cols, ok := f.tables[strings.ToLower(table)]
	if !ok {
		return "", false, nil
	}
	dt, ok := cols[strings.ToLower(column)]
	return dt, ok, nil
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		tables: map[string]map[string]string{
			"foo": {"id": "integer", "name": "varchar"},
			"reports": {
				"id":      "integer",
				"status":  "varchar",
				"valid":   "boolean",
				"message": "varchar",
			},
			"noflagsink": {"id": "integer"},
		},
	}
}

func TestRegister_UnknownSourceTable(t *testing.T) {
	r := NewRegistry(newFakeLookup(), nil)
	p, err := policy.New([]string{"missing"}, "", "max(missing.id) > 1", policy.ActionRemove, "", false)
	require.NoError(t, err)
	err = r.Register(context.Background(), p)
	require.Error(t, err)
}

func TestRegister_UnknownColumn(t *testing.T) {
	r := NewRegistry(newFakeLookup(), nil)
	p, err := policy.New([]string{"foo"}, "", "max(foo.nonexistent) > 1", policy.ActionRemove, "", false)
	require.NoError(t, err)
	err = r.Register(context.Background(), p)
	require.Error(t, err)
}

func TestRegister_SuccessAppendsPolicy(t *testing.T) {
	r := NewRegistry(newFakeLookup(), nil)
	p, err := policy.New([]string{"foo"}, "", "max(foo.id) > 1", policy.ActionRemove, "", false)
	require.NoError(t, err)
	require.NoError(t, r.Register(context.Background(), p))
	require.Len(t, r.Get(), 1)
}

func TestRegister_InvalidateRequiresValidColumn(t *testing.T) {
	r := NewRegistry(newFakeLookup(), nil)
	p, err := policy.New(nil, "noflagsink", "noflagsink.id > 0", policy.ActionInvalidate, "", false)
	require.NoError(t, err)
	err = r.Register(context.Background(), p)
	require.Error(t, err)
}

func TestRegister_InvalidateSucceedsWithValidColumn(t *testing.T) {
	r := NewRegistry(newFakeLookup(), nil)
	p, err := policy.New(nil, "reports", "reports.status = 'approved'", policy.ActionInvalidate, "", false)
	require.NoError(t, err)
	require.NoError(t, r.Register(context.Background(), p))
}

func TestDelete_MatchesBySourceOnly(t *testing.T) {
	r := NewRegistry(newFakeLookup(), nil)
	p, err := policy.New([]string{"foo"}, "", "max(foo.id) > 1", policy.ActionRemove, "", false)
	require.NoError(t, err)
	require.NoError(t, r.Register(context.Background(), p))

	require.True(t, r.Delete("foo", "", "", ""))
	require.Empty(t, r.Get())
}

func TestDelete_RequiresAtLeastOneSelector(t *testing.T) {
	r := NewRegistry(newFakeLookup(), nil)
	require.False(t, r.Delete("", "", "", ""))
}

func TestMatchingSelect_AllSourcesMustBePresent(t *testing.T) {
	r := NewRegistry(newFakeLookup(), nil)
	p, err := policy.New([]string{"foo"}, "", "max(foo.id) > 1", policy.ActionRemove, "", false)
	require.NoError(t, err)
	require.NoError(t, r.Register(context.Background(), p))

	matches := r.MatchingSelect(map[string]bool{"foo": true})
	require.Len(t, matches, 1)

	require.Empty(t, r.MatchingSelect(map[string]bool{"bar": true}))
}

func TestMatchingInsert_SinkOnlyPolicyMatchesRegardlessOfSources(t *testing.T) {
	r := NewRegistry(newFakeLookup(), nil)
	p, err := policy.New(nil, "reports", "reports.status = 'approved'", policy.ActionKill, "", false)
	require.NoError(t, err)
	require.NoError(t, r.Register(context.Background(), p))

	matches := r.MatchingInsert("reports", map[string]bool{})
	require.Len(t, matches, 1)
}
