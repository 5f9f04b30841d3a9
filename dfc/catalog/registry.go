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
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/reallocf/dfc-sql-rewriter/dfc/dfcerr"
	"github.com/reallocf/dfc-sql-rewriter/dfc/policy"
	"github.com/reallocf/dfc-sql-rewriter/sql/ast"
)

// lookup is the subset of *Catalog the registry needs, narrowed to an
// interface so binding validation can be exercised in tests against a
// fake catalog instead of a live database/sql connection.
type lookup interface {
	HasTable(ctx context.Context, table string) (bool, error)
	ColumnType(ctx context.Context, table, column string) (string, bool, error)
}

// Registry holds the set of registered policies and performs the
// catalog-dependent binding validation on registration. Policies are
// kept in registration order so multiple matching policies compose as a
// stable, registration-ordered AND.
type Registry struct {
	catalog lookup
	log     *logrus.Entry

	mu       sync.RWMutex
	policies []*policy.Policy
}

// NewRegistry builds an empty registry bound to cat for binding
// validation.
func NewRegistry(cat lookup, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{catalog: cat, log: log}
}

// Register runs the binding steps against the catalog and, if they all
// pass, appends p to the registry.
func (r *Registry) Register(ctx context.Context, p *policy.Policy) error {
	for _, table := range p.Sources() {
		if err := r.assertTableExists(ctx, table); err != nil {
			return err
		}
	}
	if p.Sink() != "" {
		if err := r.assertTableExists(ctx, p.Sink()); err != nil {
			return err
		}
	}

	if err := r.assertColumnsResolve(ctx, p); err != nil {
		return err
	}

	if isInvalidateAction(p.Action()) && p.Sink() != "" {
		dataType, ok, err := r.catalog.ColumnType(ctx, p.Sink(), "valid")
		if err != nil {
			return err
		}
		if !ok || !IsBooleanType(dataType) {
			return dfcerr.ErrMissingValidColumn.New(p.Sink())
		}
	}

	r.mu.Lock()
	r.policies = append(r.policies, p)
	r.mu.Unlock()

	r.log.WithFields(p.LogFields()).Info("dfc: policy registered")
	return nil
}

func isInvalidateAction(a policy.Action) bool {
	return a == policy.ActionInvalidate || a == policy.ActionInvalidateMessage
}

func (r *Registry) assertTableExists(ctx context.Context, table string) error {
	ok, err := r.catalog.HasTable(ctx, table)
	if err != nil {
		return err
	}
	if !ok {
		return dfcerr.ErrUnknownTable.New(table)
	}
	return nil
}

// assertColumnsResolve checks every column reference in p's constraint
// resolves to a known source/sink table and exists in it.
func (r *Registry) assertColumnsResolve(ctx context.Context, p *policy.Policy) error {
	known := map[string]bool{}
	for _, s := range p.Sources() {
		known[s] = true
	}
	if p.Sink() != "" {
		known[p.Sink()] = true
	}

	var firstErr error
	ast.Walk(p.Constraint(), func(n ast.Node) bool {
		if firstErr != nil {
			return false
		}
		col, ok := n.(*ast.Column)
		if !ok {
			return true
		}
		table := col.TableName()
		if !known[table] {
			// construction already rejected unqualified/foreign columns
			// for aggregated source references; any remaining mismatch
			// here is a sink-side reference to an unregistered table.
			firstErr = dfcerr.ErrUnknownTable.New(table)
			return false
		}
		_, exists, err := r.catalog.ColumnType(ctx, table, col.ColumnName())
		if err != nil {
			firstErr = err
			return false
		}
		if !exists {
			firstErr = dfcerr.ErrUnknownColumn.New(col.ColumnName(), table)
			return false
		}
		return true
	})
	return firstErr
}

// Delete removes the first policy matching the given (possibly empty)
// selectors. An empty string for source/sink/constraint matches any
// value; action, if non-empty, must match exactly. At least
// one of source, sink, or constraint must be non-empty. Reports
// whether a policy was found and removed.
func (r *Registry) Delete(source, sink, constraint string, action policy.Action) bool {
	if source == "" && sink == "" && constraint == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.policies {
		if source != "" && !p.HasSource(source) {
			continue
		}
		if sink != "" && p.Sink() != strings.ToLower(sink) {
			continue
		}
		if constraint != "" && strings.TrimSpace(p.ConstraintSQL()) != strings.TrimSpace(constraint) {
			continue
		}
		if action != "" && p.Action() != action {
			continue
		}
		r.policies = append(r.policies[:i], r.policies[i+1:]...)
		return true
	}
	return false
}

// Get returns all registered policies, in registration order.
func (r *Registry) Get() []*policy.Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*policy.Policy(nil), r.policies...)
}

// MatchingSelect returns, in registration order, every source-only
// policy whose declared sources are all present in fromTables.
func (r *Registry) MatchingSelect(fromTables map[string]bool) []*policy.Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*policy.Policy
	for _, p := range r.policies {
		if p.Sink() != "" {
			continue
		}
		if allSourcesPresent(p, fromTables) {
			matches = append(matches, p)
		}
	}
	return matches
}

// MatchingInsert returns, in registration order, every policy whose sink
// equals sinkTable and whose declared sources (if any) are all present
// in fromTables. A sink-only policy (no sources) always matches.
func (r *Registry) MatchingInsert(sinkTable string, fromTables map[string]bool) []*policy.Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinkTable = strings.ToLower(sinkTable)
	var matches []*policy.Policy
	for _, p := range r.policies {
		if p.Sink() != sinkTable {
			continue
		}
		if allSourcesPresent(p, fromTables) {
			matches = append(matches, p)
		}
	}
	return matches
}

func allSourcesPresent(p *policy.Policy, fromTables map[string]bool) bool {
	for _, s := range p.Sources() {
		if !fromTables[s] {
			return false
		}
	}
	return true
}
