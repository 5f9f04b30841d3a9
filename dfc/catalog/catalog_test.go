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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsBooleanType(t *testing.T) {
	require.True(t, IsBooleanType("BOOLEAN"))
	require.True(t, IsBooleanType("bool"))
	require.False(t, IsBooleanType("integer"))
	require.False(t, IsBooleanType("varchar"))
}

func TestInvalidate_ClearsCache(t *testing.T) {
	c := New(nil, nil)
	c.tables["foo"] = map[string]string{"id": "integer"}
	c.Invalidate()
	require.Empty(t, c.tables)
}
