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

package dsl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_SourceAndSink(t *testing.T) {
	p, err := Parse(`SOURCE foo SINK reports CONSTRAINT foo.amount > 100 ON FAIL REMOVE DESCRIPTION large orders only`)
	require.NoError(t, err)
	require.Equal(t, []string{"foo"}, p.Sources)
	require.Equal(t, "reports", p.Sink)
	require.Equal(t, "foo.amount > 100", p.Constraint)
	require.Equal(t, ActionRemove, p.OnFail)
	require.Equal(t, "large orders only", p.Description)
	require.False(t, p.Aggregate)
}

func TestParse_MultipleSources(t *testing.T) {
	p, err := Parse(`AGGREGATE SOURCE foo SOURCE bar SINK reports CONSTRAINT max(foo.id) > 1 ON FAIL KILL`)
	require.NoError(t, err)
	require.True(t, p.Aggregate)
	require.Equal(t, []string{"foo", "bar"}, p.Sources)
}

func TestParse_FieldsAnyOrder(t *testing.T) {
	p, err := Parse(`CONSTRAINT reports.status = 'approved' ON FAIL INVALIDATE SINK reports`)
	require.NoError(t, err)
	require.Equal(t, "reports", p.Sink)
	require.Empty(t, p.Sources)
	require.Equal(t, ActionInvalidate, p.OnFail)
}

func TestParse_NoneIsAbsent(t *testing.T) {
	p, err := Parse(`SOURCE none SINK reports CONSTRAINT reports.x > 0 ON FAIL KILL`)
	require.NoError(t, err)
	require.Empty(t, p.Sources)
}

func TestParse_WhitespaceVariants(t *testing.T) {
	p, err := Parse("SOURCE  foo\n\tSINK\treports  CONSTRAINT foo.id > 0   ON   FAIL   LLM")
	require.NoError(t, err)
	require.Equal(t, ActionLLM, p.OnFail)
}

func TestParse_MissingConstraint(t *testing.T) {
	_, err := Parse(`SOURCE foo ON FAIL KILL`)
	require.Error(t, err)
}

func TestParse_MissingOnFail(t *testing.T) {
	_, err := Parse(`SOURCE foo CONSTRAINT foo.id > 0`)
	require.Error(t, err)
}

func TestParse_MissingSourceAndSink(t *testing.T) {
	_, err := Parse(`CONSTRAINT 1 = 1 ON FAIL KILL`)
	require.Error(t, err)
}

func TestParse_InvalidAction(t *testing.T) {
	_, err := Parse(`SOURCE foo CONSTRAINT foo.id > 0 ON FAIL DELETE_EVERYTHING`)
	require.Error(t, err)
}

func TestParse_EmptyText(t *testing.T) {
	_, err := Parse("   ")
	require.Error(t, err)
}

func TestParse_NewActionKinds(t *testing.T) {
	for _, action := range []Action{ActionInvalidateMessage, ActionHuman} {
		p, err := Parse(`SINK reports CONSTRAINT reports.x > 0 ON FAIL ` + string(action))
		require.NoError(t, err)
		require.Equal(t, action, p.OnFail)
	}
}
