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

// Package dsl parses the policy DSL text form:
//
//	[AGGREGATE] (SOURCE <ident>)* (SINK <ident>)? CONSTRAINT <expr_sql> ON FAIL <action> [DESCRIPTION <text>]
//
// Fields may occur in any order; CONSTRAINT and ON FAIL are mandatory, and
// at least one SOURCE or a SINK is mandatory. This is a keyword-position
// scan rather than a left-to-right token grammar: every occurrence of a
// keyword is located first, the text is then sliced into the spans
// between consecutive keywords, and each span becomes that keyword's
// value. This mirrors how the original Python implementation's
// from_policy_str parsed the same grammar, which is why a constraint or
// description value is allowed to contain arbitrary whitespace and
// punctuation without needing to be quoted.
package dsl

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Action is the resolution DFC applies when a policy's constraint fails
// for a row.
type Action string

const (
	ActionRemove            Action = "REMOVE"
	ActionKill              Action = "KILL"
	ActionInvalidate        Action = "INVALIDATE"
	ActionInvalidateMessage Action = "INVALIDATE_MESSAGE"
	ActionHuman             Action = "HUMAN"
	ActionLLM               Action = "LLM"
)

var validActions = map[Action]bool{
	ActionRemove:            true,
	ActionKill:              true,
	ActionInvalidate:        true,
	ActionInvalidateMessage: true,
	ActionHuman:             true,
	ActionLLM:               true,
}

// ParseError reports a malformed policy DSL string, distinct from a SQL
// parse error on the constraint expression itself.
type ParseError struct {
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("policy DSL parse error: %s", e.Msg)
}

// ParsedPolicy is the raw, un-validated result of parsing policy DSL
// text: field values as strings, before the constraint SQL is parsed or
// bound against a catalog.
type ParsedPolicy struct {
	Aggregate   bool
	Sources     []string // in DSL order; nil/empty if none given
	Sink        string   // "" if absent
	Constraint  string
	OnFail      Action
	Description string // "" if absent
}

var singleWordKeyword = regexp.MustCompile(`(?i)\b(SOURCE|SINK|CONSTRAINT|DESCRIPTION|AGGREGATE)\b`)
var onFailKeyword = regexp.MustCompile(`(?i)\bON\s+FAIL\b`)

type keywordSpan struct {
	pos  int
	end  int // position right after the keyword text itself
	name string
}

// Parse parses a single policy DSL string into its raw field values.
func Parse(text string) (*ParsedPolicy, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Text: text, Msg: "policy text is empty"}
	}
	normalized := strings.Join(strings.Fields(text), " ")

	var spans []keywordSpan
	for _, m := range singleWordKeyword.FindAllStringSubmatchIndex(normalized, -1) {
		name := strings.ToUpper(normalized[m[2]:m[3]])
		spans = append(spans, keywordSpan{pos: m[0], end: m[1], name: name})
	}
	for _, m := range onFailKeyword.FindAllStringIndex(normalized, -1) {
		spans = append(spans, keywordSpan{pos: m[0], end: m[1], name: "ON FAIL"})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].pos < spans[j].pos })

	out := &ParsedPolicy{}
	var constraintSet, onFailSet bool

	for i, span := range spans {
		valueStart := span.end
		for valueStart < len(normalized) && normalized[valueStart] == ' ' {
			valueStart++
		}
		valueEnd := len(normalized)
		if i+1 < len(spans) {
			valueEnd = spans[i+1].pos
			for valueEnd > valueStart && normalized[valueEnd-1] == ' ' {
				valueEnd--
			}
		}
		value := strings.TrimSpace(normalized[valueStart:valueEnd])

		switch span.name {
		case "AGGREGATE":
			out.Aggregate = true
		case "SOURCE":
			if value != "" && !strings.EqualFold(value, "NONE") {
				out.Sources = append(out.Sources, value)
			}
		case "SINK":
			if value != "" && !strings.EqualFold(value, "NONE") {
				out.Sink = value
			}
		case "CONSTRAINT":
			out.Constraint = value
			constraintSet = true
		case "ON FAIL":
			action := Action(strings.ToUpper(value))
			if !validActions[action] {
				return nil, &ParseError{Text: text, Msg: fmt.Sprintf(
					"invalid ON FAIL value %q: must be one of REMOVE, KILL, INVALIDATE, INVALIDATE_MESSAGE, HUMAN, LLM", value)}
			}
			out.OnFail = action
			onFailSet = true
		case "DESCRIPTION":
			out.Description = value
		}
	}

	if !constraintSet || out.Constraint == "" {
		return nil, &ParseError{Text: text, Msg: "CONSTRAINT is required but was not found"}
	}
	if !onFailSet {
		return nil, &ParseError{Text: text, Msg: "ON FAIL is required but was not found"}
	}
	if len(out.Sources) == 0 && out.Sink == "" {
		return nil, &ParseError{Text: text, Msg: "at least one SOURCE or a SINK must be provided"}
	}
	return out, nil
}
