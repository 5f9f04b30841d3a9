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

// Package policy is the DFC policy model: construction, static
// validation, and the DSL text form. Registration against a live catalog
// lives in package catalog; this package only ever performs syntax
// and shape validation, never I/O.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/reallocf/dfc-sql-rewriter/dfc/dfcerr"
	"github.com/reallocf/dfc-sql-rewriter/internal/dsl"
	"github.com/reallocf/dfc-sql-rewriter/sql/ast"
	"github.com/reallocf/dfc-sql-rewriter/sql/parser"
)

// Action mirrors dsl.Action so callers of this package don't need to
// import internal/dsl directly.
type Action = dsl.Action

const (
	ActionRemove            = dsl.ActionRemove
	ActionKill              = dsl.ActionKill
	ActionInvalidate        = dsl.ActionInvalidate
	ActionInvalidateMessage = dsl.ActionInvalidateMessage
	ActionHuman             = dsl.ActionHuman
	ActionLLM               = dsl.ActionLLM
)

// Policy is an immutable, validated DFC policy: a constraint over
// source(s) and/or a sink, plus the action to take on violation.
type Policy struct {
	id            uuid.UUID
	sources       []string // lowercase table identifiers, declaration order
	sink          string   // lowercase, "" if absent
	constraintSQL string
	constraint    ast.Expression
	action        Action
	description   string
	aggregate     bool

	// sourceColumnsNeeded maps each source table (lowercase) to the
	// lowercase column names the constraint references from it.
	sourceColumnsNeeded map[string][]string
}

func (p *Policy) ID() uuid.UUID                         { return p.id }
func (p *Policy) Sources() []string                     { return append([]string(nil), p.sources...) }
func (p *Policy) Sink() string                          { return p.sink }
func (p *Policy) ConstraintSQL() string                 { return p.constraintSQL }
func (p *Policy) Constraint() ast.Expression             { return p.constraint }
func (p *Policy) Action() Action                        { return p.action }
func (p *Policy) Description() string                   { return p.description }
func (p *Policy) Aggregate() bool                       { return p.aggregate }
func (p *Policy) HasSource(table string) bool {
	for _, s := range p.sources {
		if s == strings.ToLower(table) {
			return true
		}
	}
	return false
}

// SourceColumnsNeeded returns the lowercase column names the constraint
// references from the given source table, or nil if that table is not
// one of this policy's sources.
func (p *Policy) SourceColumnsNeeded(table string) []string {
	cols := p.sourceColumnsNeeded[strings.ToLower(table)]
	return append([]string(nil), cols...)
}

// New validates and builds a Policy from already-parsed components. It
// never touches a catalog — see catalog.Registry.Register for the
// binding step.
func New(sources []string, sink string, constraintSQL string, action Action, description string, aggregate bool) (*Policy, error) {
	if len(sources) == 0 && sink == "" {
		return nil, dfcerr.ErrMissingSourceOrSink.New()
	}

	lowerSources := make([]string, len(sources))
	for i, s := range sources {
		if !isValidIdentifier(s) {
			return nil, dfcerr.ErrInvalidIdentifier.New(s, "source")
		}
		lowerSources[i] = strings.ToLower(s)
	}
	lowerSink := strings.ToLower(sink)
	if sink != "" && !isValidIdentifier(sink) {
		return nil, dfcerr.ErrInvalidIdentifier.New(sink, "sink")
	}

	expr, err := parser.ParseExpression(constraintSQL)
	if err != nil {
		return nil, dfcerr.ErrPolicyParse.New(err.Error())
	}

	sourceSet := make(map[string]bool, len(lowerSources))
	for _, s := range lowerSources {
		sourceSet[s] = true
	}

	if err := validateQualified(expr); err != nil {
		return nil, err
	}
	if err := validateAggregationTargets(expr, sourceSet); err != nil {
		return nil, err
	}
	if err := validateSourceColumnsAggregated(expr, sourceSet); err != nil {
		return nil, err
	}

	needed := sourceColumnsNeeded(expr, sourceSet)

	return &Policy{
		id:                  uuid.New(),
		sources:             lowerSources,
		sink:                lowerSink,
		constraintSQL:       constraintSQL,
		constraint:          expr,
		action:              action,
		description:         description,
		aggregate:           aggregate,
		sourceColumnsNeeded: needed,
	}, nil
}

// FromText parses the DSL form (internal/dsl) and builds a Policy from
// it.
func FromText(text string) (*Policy, error) {
	parsed, err := dsl.Parse(text)
	if err != nil {
		return nil, dfcerr.ErrPolicyParse.New(err.Error())
	}
	return New(parsed.Sources, parsed.Sink, parsed.Constraint, parsed.OnFail, parsed.Description, parsed.Aggregate)
}

// Equal reports structural equality ignoring derived fields (id,
// sourceColumnsNeeded) and the parsed constraint tree, comparing only the
// fields an author actually wrote down.
func (p *Policy) Equal(other *Policy) bool {
	if other == nil {
		return false
	}
	if len(p.sources) != len(other.sources) {
		return false
	}
	for i := range p.sources {
		if p.sources[i] != other.sources[i] {
			return false
		}
	}
	return p.sink == other.sink &&
		strings.TrimSpace(p.constraintSQL) == strings.TrimSpace(other.constraintSQL) &&
		p.action == other.action &&
		p.description == other.description &&
		p.aggregate == other.aggregate
}

func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isLetter {
			return false
		}
		if !isLetter && !isDigit {
			return false
		}
	}
	return true
}

func validateQualified(root ast.Expression) error {
	var firstErr error
	ast.Walk(root, func(n ast.Node) bool {
		if firstErr != nil {
			return false
		}
		if col, ok := n.(*ast.Column); ok && !col.Qualified() {
			firstErr = dfcerr.ErrUnqualifiedColumn.New(col.String())
			return false
		}
		return true
	})
	return firstErr
}

func validateAggregationTargets(root ast.Expression, sources map[string]bool) error {
	for _, agg := range ast.FindAggregatesIn(root) {
		for _, col := range ast.FindColumns(agg) {
			table := col.TableName()
			if !sources[table] {
				return dfcerr.ErrIllegalAggregationTarget.New(agg.Name, col.ColumnName(), table)
			}
		}
	}
	return nil
}

func validateSourceColumnsAggregated(root ast.Expression, sources map[string]bool) error {
	var firstErr error
	ast.Walk(root, func(n ast.Node) bool {
		if firstErr != nil {
			return false
		}
		col, ok := n.(*ast.Column)
		if !ok || !sources[col.TableName()] {
			return true
		}
		if ast.IsBareColumnOutsideAggregate(root, col) {
			firstErr = dfcerr.ErrSourceNotAggregated.New(col.String())
			return false
		}
		return true
	})
	return firstErr
}

func sourceColumnsNeeded(root ast.Expression, sources map[string]bool) map[string][]string {
	out := map[string]map[string]bool{}
	for _, col := range ast.FindColumns(root) {
		table := col.TableName()
		if !sources[table] {
			continue
		}
		if out[table] == nil {
			out[table] = map[string]bool{}
		}
		out[table][col.ColumnName()] = true
	}
	result := map[string][]string{}
	for table, cols := range out {
		names := make([]string, 0, len(cols))
		for c := range cols {
			names = append(names, c)
		}
		sort.Strings(names)
		result[table] = names
	}
	return result
}

// LogFields renders the policy's identity for structured log lines, the
// same field-map-per-entry convention the teacher repo's audit logger
// uses for logrus.
func (p *Policy) LogFields() logrus.Fields {
	return logrus.Fields{
		"policy_id":   p.id.String(),
		"sources":     p.sources,
		"sink":        p.sink,
		"action":      string(p.action),
		"aggregate":   p.aggregate,
		"description": p.description,
	}
}

// Identifier renders a human-readable identity string for log lines and
// violation messages, e.g. "policy[foo->bar]#a1b2c3d4" — the
// supplemental sibling of the original_source's get_identifier, ported
// to a stable short form (uuid's first 8 hex chars) rather than a
// Python object id.
func (p *Policy) Identifier() string {
	id := p.id.String()
	if len(id) > 8 {
		id = id[:8]
	}
	sources := "-"
	if len(p.sources) > 0 {
		sources = strings.Join(p.sources, ",")
	}
	sink := p.sink
	if sink == "" {
		sink = "-"
	}
	return fmt.Sprintf("policy[%s->%s]#%s", sources, sink, id)
}

func (p *Policy) String() string {
	return fmt.Sprintf("Policy{id=%s sources=%v sink=%q action=%s constraint=%q}",
		p.id, p.sources, p.sink, p.action, p.constraintSQL)
}
