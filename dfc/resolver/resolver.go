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

// Package resolver is the external repair capability for HUMAN/LLM
// policies and the stream file side channel they write to. The core rewriter never imports an LLM client directly; a
// caller wires a concrete Resolver (e.g. backed by Bedrock, as the
// original implementation did) into the façade.
package resolver

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ViolationResolver resolves a single row that failed a HUMAN or LLM
// policy's constraint. columns/values are the source columns the policy
// declared a need for (in declaration order); description is the
// policy's description, or a generic fallback. A resolver that cannot
// repair the row returns ok=false, which routes the row to the stream
// file unrepaired for a human to pick up later.
type ViolationResolver interface {
	Resolve(ctx context.Context, columns []string, values []interface{}, description string) (repaired []interface{}, ok bool, err error)
}

// NoopResolver always declines to repair, the default when a façade is
// constructed without one: every violation is routed straight to the
// stream file as-is.
type NoopResolver struct{}

func (NoopResolver) Resolve(context.Context, []string, []interface{}, string) ([]interface{}, bool, error) {
	return nil, false, nil
}

// StreamWriter is the append-only TSV side channel 
// "one row per violation, booleans lowercased; file is appended to and
// flushed+fsynced after each write." One StreamWriter exists per stream
// file; two concurrent executions targeting the same file must be
// externally serialized, which the internal mutex only
// protects within this process.
type StreamWriter struct {
	path string
	mu   sync.Mutex
}

// NewStreamWriter wraps path, creating the file lazily on first write.
func NewStreamWriter(path string) *StreamWriter {
	return &StreamWriter{path: path}
}

// Path returns the underlying file path.
func (w *StreamWriter) Path() string { return w.path }

// WriteRow appends one TSV line: policyID, then each column=value pair's
// value, tab-separated.
func (w *StreamWriter) WriteRow(policyID string, columns []string, values []interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening dfc stream file %q: %w", w.path, err)
	}
	defer f.Close()

	fields := make([]string, 0, len(values)+1)
	fields = append(fields, policyID)
	for _, v := range values {
		fields = append(fields, formatTSVValue(v))
	}
	if _, err := f.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
		return err
	}
	return f.Sync()
}

func formatTSVValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return strings.ReplaceAll(strings.ReplaceAll(t, "\t", " "), "\n", " ")
	default:
		return fmt.Sprintf("%v", t)
	}
}
