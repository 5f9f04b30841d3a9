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

package resolver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamWriterAppendsTabSeparatedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.tsv")
	w := NewStreamWriter(path)

	require.NoError(t, w.WriteRow("policy-1", []string{"id", "name"}, []interface{}{1, "Alice"}))
	require.NoError(t, w.WriteRow("policy-1", []string{"id", "name"}, []interface{}{2, nil}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "policy-1\t1\tAlice", lines[0])
	require.Equal(t, "policy-1\t2\t", lines[1])
}

func TestStreamWriterLowercasesBooleans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.tsv")
	w := NewStreamWriter(path)

	require.NoError(t, w.WriteRow("policy-2", []string{"valid"}, []interface{}{true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "policy-2\ttrue\n", string(data))
}

func TestNoopResolverDeclines(t *testing.T) {
	r := NoopResolver{}
	repaired, ok, err := r.Resolve(nil, []string{"a"}, []interface{}{1}, "desc")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, repaired)
}
