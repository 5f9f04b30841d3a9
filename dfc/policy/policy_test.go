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

package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_RequiresSourceOrSink(t *testing.T) {
	_, err := New(nil, "", "foo.id > 1", ActionRemove, "", false)
	require.Error(t, err)
}

func TestNew_RejectsUnqualifiedColumn(t *testing.T) {
	_, err := New([]string{"foo"}, "", "id > 1", ActionRemove, "", false)
	require.Error(t, err)
}

func TestNew_RejectsBareSourceColumnOutsideAggregate(t *testing.T) {
	_, err := New([]string{"foo"}, "", "foo.id > 1", ActionRemove, "", false)
	require.Error(t, err)
}

func TestNew_RejectsAggregateOverForeignTable(t *testing.T) {
	_, err := New([]string{"foo"}, "", "max(bar.id) > 1", ActionRemove, "", false)
	require.Error(t, err)
}

func TestNew_AcceptsAggregateOverSource(t *testing.T) {
	p, err := New([]string{"foo"}, "", "max(foo.id) > 1", ActionRemove, "", false)
	require.NoError(t, err)
	require.Equal(t, []string{"foo"}, p.Sources())
	require.Equal(t, []string{"id"}, p.SourceColumnsNeeded("foo"))
}

func TestNew_AcceptsSinkOnlyUnaggregated(t *testing.T) {
	p, err := New(nil, "reports", "reports.status = 'approved'", ActionKill, "", false)
	require.NoError(t, err)
	require.Equal(t, "reports", p.Sink())
}

func TestNew_AcceptsCountIf(t *testing.T) {
	p, err := New([]string{"foo"}, "", "COUNT_IF(foo.id > 2) > 0", ActionRemove, "", false)
	require.NoError(t, err)
	require.NotNil(t, p.Constraint())
}

func TestNew_AcceptsArrayAgg(t *testing.T) {
	_, err := New([]string{"foo"}, "", "array_agg(foo.id) = ARRAY[2]", ActionRemove, "", false)
	require.NoError(t, err)
}

func TestFromText_ParsesDSLForm(t *testing.T) {
	p, err := FromText(`SOURCE foo CONSTRAINT max(foo.id) > 1 ON FAIL REMOVE`)
	require.NoError(t, err)
	require.Equal(t, []string{"foo"}, p.Sources())
	require.Equal(t, ActionRemove, p.Action())
}

func TestFromText_PropagatesDSLError(t *testing.T) {
	_, err := FromText(`CONSTRAINT foo.id > 1`)
	require.Error(t, err)
}

func TestEqual_IgnoresDerivedFields(t *testing.T) {
	a, err := New([]string{"foo"}, "", "max(foo.id) > 1", ActionRemove, "", false)
	require.NoError(t, err)
	b, err := New([]string{"foo"}, "", "max(foo.id) > 1", ActionRemove, "", false)
	require.NoError(t, err)
	require.NotEqual(t, a.ID(), b.ID())
	require.True(t, a.Equal(b))
}

func TestEqual_DifferentConstraintNotEqual(t *testing.T) {
	a, err := New([]string{"foo"}, "", "max(foo.id) > 1", ActionRemove, "", false)
	require.NoError(t, err)
	b, err := New([]string{"foo"}, "", "max(foo.id) > 2", ActionRemove, "", false)
	require.NoError(t, err)
	require.False(t, a.Equal(b))
}

func TestNew_MultipleSourcesDerivesColumnsPerTable(t *testing.T) {
	p, err := New([]string{"foo", "bar"}, "", "max(foo.id) > min(bar.id)", ActionRemove, "", true)
	require.NoError(t, err)
	require.Equal(t, []string{"id"}, p.SourceColumnsNeeded("foo"))
	require.Equal(t, []string{"id"}, p.SourceColumnsNeeded("bar"))
	require.True(t, p.Aggregate())
}
