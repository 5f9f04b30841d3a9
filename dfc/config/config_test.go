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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reallocf/dfc-sql-rewriter/dfc/policy"
)

const sampleYAML = `
policies:
  - policy: "SOURCE foo CONSTRAINT max(foo.id) > 1 ON FAIL REMOVE"
  - source: bar
    constraint: max(bar.x) > 0
    on_fail: kill
    description: guard bar
  - source: [foo, bar]
    sink: reports
    constraint: max(foo.id) > 1
    on_fail: invalidate
    aggregate: true
`

func TestLoadAndBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	set, err := Load(path)
	require.NoError(t, err)
	require.Len(t, set.Policies, 3)

	policies, err := set.Build()
	require.NoError(t, err)
	require.Len(t, policies, 3)

	require.Equal(t, policy.ActionRemove, policies[0].Action())
	require.Equal(t, policy.ActionKill, policies[1].Action())
	require.Equal(t, []string{"bar"}, policies[1].Sources())
	require.Equal(t, "guard bar", policies[1].Description())
	require.True(t, policies[2].Aggregate())
	require.Equal(t, "reports", policies[2].Sink())
}

func TestBuildRejectsInvalidEntry(t *testing.T) {
	set := &PolicySet{Policies: []Entry{{Constraint: "1=1", OnFail: "REMOVE"}}}
	_, err := set.Build()
	require.Error(t, err)
}
