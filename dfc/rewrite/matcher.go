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

package rewrite

import "github.com/reallocf/dfc-sql-rewriter/sql/ast"

// Shape classifies a parsed statement the way the matcher and plan
// builder need to: which rewrite strategy applies.
type Shape int

const (
	ShapeScan Shape = iota
	ShapeAggregation
	ShapeInsert
	ShapeUnsupported // UPDATE, DDL, set operators: passed through unchanged
)

func (s Shape) String() string {
	switch s {
	case ShapeScan:
		return "scan"
	case ShapeAggregation:
		return "aggregation"
	case ShapeInsert:
		return "insert"
	default:
		return "unsupported"
	}
}

// Classify determines a parsed statement's rewrite shape.
func Classify(stmt ast.Statement) Shape {
	switch s := stmt.(type) {
	case *ast.SelectStatement:
		if s.HasAggregates() || len(s.GroupBy) > 0 {
			return ShapeAggregation
		}
		return ShapeScan
	case *ast.InsertStatement:
		return ShapeInsert
	default:
		return ShapeUnsupported
	}
}

// FromTables returns the lowercase set of table names directly under a
// SELECT's FROM/JOIN clause — not tables nested inside
// subqueries or CTEs, which the matcher does not consider base-query
// sources.
func FromTables(stmt *ast.SelectStatement) map[string]bool {
	out := map[string]bool{}
	if stmt.From == nil {
		return out
	}
	for _, ref := range collectTableRefs(stmt.From.Source) {
		out[ref.Name.Lower()] = true
	}
	return out
}
