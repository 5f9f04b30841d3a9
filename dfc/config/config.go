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

// Package config loads a policy-set file for cmd/dfc: a YAML document
// listing policies either as DSL text or as structured fields. Loading
// is a pure format concern — it never consults a catalog and never
// decides whether a policy is valid; that's dfc/policy.New and
// catalog.Registry.Register's job, so a config file can be loaded and
// inspected even before a catalog connection exists.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"

	"github.com/reallocf/dfc-sql-rewriter/dfc/policy"
)

// Entry is one policy-set entry. Either Policy (the DSL text form) or
// the structured fields (Source/Sink/Constraint/OnFail) must be given.
// Source, OnFail, and Aggregate are declared as interface{} because YAML
// happily decodes an unquoted scalar as a bool, int, or string depending
// on its spelling (`on_fail: kill` vs `on_fail: "KILL"` vs a stray
// `aggregate: yes`); cast.To* below normalizes whatever came out of the
// YAML decoder the same defensive way the teacher's own config-adjacent
// code coerces scalars.
type Entry struct {
	Policy      string      `yaml:"policy,omitempty"`
	Source      interface{} `yaml:"source,omitempty"`
	Sink        string      `yaml:"sink,omitempty"`
	Constraint  string      `yaml:"constraint,omitempty"`
	OnFail      interface{} `yaml:"on_fail,omitempty"`
	Description string      `yaml:"description,omitempty"`
	Aggregate   interface{} `yaml:"aggregate,omitempty"`
}

// PolicySet is the top-level shape of a policy-set YAML document.
type PolicySet struct {
	Policies []Entry `yaml:"policies"`
}

// Load reads and parses a policy-set file at path.
func Load(path string) (*PolicySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy set %q: %w", path, err)
	}
	var set PolicySet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing policy set %q: %w", path, err)
	}
	return &set, nil
}

// Build constructs a *policy.Policy for every entry, in file order. It
// performs only the syntactic validation policy.New/policy.FromText
// already do; catalog binding is the caller's responsibility via
// catalog.Registry.Register.
func (s *PolicySet) Build() ([]*policy.Policy, error) {
	out := make([]*policy.Policy, 0, len(s.Policies))
	for i, e := range s.Policies {
		p, err := e.build()
		if err != nil {
			return nil, fmt.Errorf("policy set entry %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (e Entry) build() (*policy.Policy, error) {
	if strings.TrimSpace(e.Policy) != "" {
		return policy.FromText(e.Policy)
	}
	sources := cast.ToStringSlice(e.Source)
	action := policy.Action(strings.ToUpper(cast.ToString(e.OnFail)))
	aggregate := cast.ToBool(e.Aggregate)
	return policy.New(sources, e.Sink, e.Constraint, action, e.Description, aggregate)
}
