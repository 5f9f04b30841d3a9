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

package ast

import "strings"

// Identifier is a SQL name: a table, column, alias, or function name.
// Comparisons are case-insensitive (Equal/EqualString) but Name preserves
// the casing the parser saw, so String() round-trips the original query.
type Identifier struct {
	Name   string
	Quoted bool
}

// NewIdentifier builds an unquoted identifier.
func NewIdentifier(name string) Identifier {
	return Identifier{Name: name}
}

// Lower returns the identifier normalized to lowercase, the form used for
// catalog lookups and policy table/column matching throughout the
// rewriter.
func (id Identifier) Lower() string {
	return strings.ToLower(id.Name)
}

// Equal reports whether two identifiers refer to the same name,
// case-insensitively.
func (id Identifier) Equal(other Identifier) bool {
	return strings.EqualFold(id.Name, other.Name)
}

// EqualString reports whether the identifier's name equals s,
// case-insensitively.
func (id Identifier) EqualString(s string) bool {
	return strings.EqualFold(id.Name, s)
}

// IsZero reports whether this is the zero-value identifier (absent).
func (id Identifier) IsZero() bool {
	return id.Name == ""
}

func (id Identifier) String() string {
	if id.Quoted {
		return `"` + strings.ReplaceAll(id.Name, `"`, `""`) + `"`
	}
	return id.Name
}
