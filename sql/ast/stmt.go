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

import (
	"fmt"
	"strings"
)

// TableExpr is anything that can appear in a FROM clause: a bare table,
// an aliased subquery, or a join of two TableExprs.
type TableExpr interface {
	Node
	tableExpr()
}

// TableRef is a plain `schema.table [AS] alias` reference.
type TableRef struct {
	baseNode
	Schema Identifier // zero if unspecified
	Name   Identifier
	Alias  Identifier // zero if unaliased
}

func (t *TableRef) tableExpr()       {}
func (t *TableRef) Children() []Node { return nil }
func (t *TableRef) WithChildren(children ...Node) (Node, error) {
	if len(children) != 0 {
		return nil, fmt.Errorf("ast.TableRef: expected 0 children, got %d", len(children))
	}
	return t, nil
}

// EffectiveName returns the alias if set, else the table name — the name
// other parts of the query resolve this reference by.
func (t *TableRef) EffectiveName() string {
	if !t.Alias.IsZero() {
		return t.Alias.Lower()
	}
	return t.Name.Lower()
}

func (t *TableRef) String() string {
	s := t.Name.String()
	if !t.Schema.IsZero() {
		s = t.Schema.String() + "." + s
	}
	if !t.Alias.IsZero() {
		s += " AS " + t.Alias.String()
	}
	return s
}

// SubqueryRef is `(SELECT ...) AS alias` used as a FROM-clause source.
type SubqueryRef struct {
	baseNode
	Query *SelectStatement
	Alias Identifier
}

func (s *SubqueryRef) tableExpr()       {}
func (s *SubqueryRef) Children() []Node { return []Node{s.Query} }
func (s *SubqueryRef) WithChildren(children ...Node) (Node, error) {
	if len(children) != 1 {
		return nil, fmt.Errorf("ast.SubqueryRef: expected 1 child, got %d", len(children))
	}
	q, ok := children[0].(*SelectStatement)
	if !ok {
		return nil, fmt.Errorf("ast.SubqueryRef: child is not a SelectStatement")
	}
	return &SubqueryRef{Query: q, Alias: s.Alias}, nil
}
func (s *SubqueryRef) EffectiveName() string { return s.Alias.Lower() }
func (s *SubqueryRef) String() string {
	return "(" + s.Query.String() + ") AS " + s.Alias.String()
}

// JoinKind enumerates the join operators this facade understands.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
)

func (k JoinKind) String() string {
	switch k {
	case JoinLeft:
		return "LEFT JOIN"
	case JoinRight:
		return "RIGHT JOIN"
	case JoinFull:
		return "FULL JOIN"
	case JoinCross:
		return "CROSS JOIN"
	default:
		return "JOIN"
	}
}

// JoinExpr is `Left <kind> Right [ON On]`.
type JoinExpr struct {
	baseNode
	Kind  JoinKind
	Left  TableExpr
	Right TableExpr
	On    Expression // nil for CROSS JOIN / comma join
}

func (j *JoinExpr) tableExpr() {}
func (j *JoinExpr) Children() []Node {
	children := []Node{j.Left, j.Right}
	if j.On != nil {
		children = append(children, j.On)
	}
	return children
}
func (j *JoinExpr) WithChildren(children ...Node) (Node, error) {
	want := 2
	if j.On != nil {
		want = 3
	}
	if len(children) != want {
		return nil, fmt.Errorf("ast.JoinExpr: expected %d children, got %d", want, len(children))
	}
	left, ok := children[0].(TableExpr)
	if !ok {
		return nil, fmt.Errorf("ast.JoinExpr: child 0 is not a TableExpr")
	}
	right, ok := children[1].(TableExpr)
	if !ok {
		return nil, fmt.Errorf("ast.JoinExpr: child 1 is not a TableExpr")
	}
	var on Expression
	if j.On != nil {
		e, ok := children[2].(Expression)
		if !ok {
			return nil, fmt.Errorf("ast.JoinExpr: child 2 is not an expression")
		}
		on = e
	}
	return &JoinExpr{Kind: j.Kind, Left: left, Right: right, On: on}, nil
}
func (j *JoinExpr) String() string {
	if j.Kind == JoinCross && j.On == nil {
		return j.Left.String() + ", " + j.Right.String()
	}
	s := j.Left.String() + " " + j.Kind.String() + " " + j.Right.String()
	if j.On != nil {
		s += " ON " + j.On.String()
	}
	return s
}

// FromClause holds the (possibly joined) table expression a SELECT reads
// from. It is nil on a FROM-less SELECT such as `SELECT 1`.
type FromClause struct {
	baseNode
	Source TableExpr
}

func (f *FromClause) Children() []Node { return []Node{f.Source} }
func (f *FromClause) WithChildren(children ...Node) (Node, error) {
	if len(children) != 1 {
		return nil, fmt.Errorf("ast.FromClause: expected 1 child, got %d", len(children))
	}
	t, ok := children[0].(TableExpr)
	if !ok {
		return nil, fmt.Errorf("ast.FromClause: child is not a TableExpr")
	}
	return &FromClause{Source: t}, nil
}
func (f *FromClause) String() string { return "FROM " + f.Source.String() }

// CTE is one `name [(cols)] AS (query)` entry of a WITH clause.
type CTE struct {
	baseNode
	Name    Identifier
	Columns []Identifier
	Query   *SelectStatement
}

func (c *CTE) Children() []Node { return []Node{c.Query} }
func (c *CTE) WithChildren(children ...Node) (Node, error) {
	if len(children) != 1 {
		return nil, fmt.Errorf("ast.CTE: expected 1 child, got %d", len(children))
	}
	q, ok := children[0].(*SelectStatement)
	if !ok {
		return nil, fmt.Errorf("ast.CTE: child is not a SelectStatement")
	}
	return &CTE{Name: c.Name, Columns: c.Columns, Query: q}, nil
}
func (c *CTE) String() string {
	s := c.Name.String()
	if len(c.Columns) > 0 {
		parts := make([]string, len(c.Columns))
		for i, col := range c.Columns {
			parts[i] = col.String()
		}
		s += " (" + strings.Join(parts, ", ") + ")"
	}
	return s + " AS (" + c.Query.String() + ")"
}

// WithClause is the `WITH [RECURSIVE] cte, cte, ...` prefix of a SELECT.
type WithClause struct {
	baseNode
	Recursive bool
	CTEs      []*CTE
}

func (w *WithClause) Children() []Node {
	out := make([]Node, len(w.CTEs))
	for i, c := range w.CTEs {
		out[i] = c
	}
	return out
}
func (w *WithClause) WithChildren(children ...Node) (Node, error) {
	if len(children) != len(w.CTEs) {
		return nil, fmt.Errorf("ast.WithClause: expected %d children, got %d", len(w.CTEs), len(children))
	}
	ctes := make([]*CTE, len(children))
	for i, c := range children {
		cte, ok := c.(*CTE)
		if !ok {
			return nil, fmt.Errorf("ast.WithClause: child %d is not a CTE", i)
		}
		ctes[i] = cte
	}
	return &WithClause{Recursive: w.Recursive, CTEs: ctes}, nil
}
func (w *WithClause) String() string {
	parts := make([]string, len(w.CTEs))
	for i, c := range w.CTEs {
		parts[i] = c.String()
	}
	prefix := "WITH "
	if w.Recursive {
		prefix = "WITH RECURSIVE "
	}
	return prefix + strings.Join(parts, ", ")
}

// SelectItem is one projected expression in a SELECT list, with its
// optional output alias.
type SelectItem struct {
	Expr  Expression
	Alias Identifier // zero if unaliased
}

func (i SelectItem) String() string {
	if i.Alias.IsZero() {
		return i.Expr.String()
	}
	return i.Expr.String() + " AS " + i.Alias.String()
}

// OutputName returns the alias if present, or the bare column name for a
// plain column projection, or "" if neither applies (e.g. a bare
// expression with no alias) — used when substituting sink-column
// references with their corresponding SELECT-output alias.
func (i SelectItem) OutputName() string {
	if !i.Alias.IsZero() {
		return i.Alias.Lower()
	}
	if col, ok := i.Expr.(*Column); ok {
		return col.ColumnName()
	}
	return ""
}

// OrderItem is one `expr [ASC|DESC]` entry of an ORDER BY list.
type OrderItem struct {
	Expr Expression
	Desc bool
}

func (o OrderItem) String() string {
	if o.Desc {
		return o.Expr.String() + " DESC"
	}
	return o.Expr.String()
}

// SelectStatement is a DuckDB SELECT, the statement shape the matcher
// and two-phase plan builder operate on directly.
type SelectStatement struct {
	baseNode
	With     *WithClause // nil if absent
	Distinct bool
	Items    []SelectItem
	From     *FromClause // nil for a FROM-less SELECT
	Where    Expression  // nil if absent
	GroupBy  []Expression
	Having   Expression // nil if absent
	OrderBy  []OrderItem
	Limit    Expression // nil if absent
	Offset   Expression // nil if absent
}

func (s *SelectStatement) statement() {}

func (s *SelectStatement) Children() []Node {
	var out []Node
	if s.With != nil {
		out = append(out, s.With)
	}
	for _, it := range s.Items {
		out = append(out, it.Expr)
	}
	if s.From != nil {
		out = append(out, s.From)
	}
	if s.Where != nil {
		out = append(out, s.Where)
	}
	for _, g := range s.GroupBy {
		out = append(out, g)
	}
	if s.Having != nil {
		out = append(out, s.Having)
	}
	for _, o := range s.OrderBy {
		out = append(out, o.Expr)
	}
	if s.Limit != nil {
		out = append(out, s.Limit)
	}
	if s.Offset != nil {
		out = append(out, s.Offset)
	}
	return out
}

func (s *SelectStatement) WithChildren(children ...Node) (Node, error) {
	idx := 0
	pop := func() Node {
		n := children[idx]
		idx++
		return n
	}
	out := &SelectStatement{Distinct: s.Distinct, Limit: nil}
	if s.With != nil {
		w, ok := pop().(*WithClause)
		if !ok {
			return nil, fmt.Errorf("ast.SelectStatement: with child has wrong type")
		}
		out.With = w
	}
	out.Items = make([]SelectItem, len(s.Items))
	for i, it := range s.Items {
		e, ok := pop().(Expression)
		if !ok {
			return nil, fmt.Errorf("ast.SelectStatement: select item %d has wrong type", i)
		}
		out.Items[i] = SelectItem{Expr: e, Alias: it.Alias}
	}
	if s.From != nil {
		f, ok := pop().(*FromClause)
		if !ok {
			return nil, fmt.Errorf("ast.SelectStatement: from child has wrong type")
		}
		out.From = f
	}
	if s.Where != nil {
		e, ok := pop().(Expression)
		if !ok {
			return nil, fmt.Errorf("ast.SelectStatement: where child has wrong type")
		}
		out.Where = e
	}
	out.GroupBy = make([]Expression, len(s.GroupBy))
	for i := range s.GroupBy {
		e, ok := pop().(Expression)
		if !ok {
			return nil, fmt.Errorf("ast.SelectStatement: group by %d has wrong type", i)
		}
		out.GroupBy[i] = e
	}
	if s.Having != nil {
		e, ok := pop().(Expression)
		if !ok {
			return nil, fmt.Errorf("ast.SelectStatement: having child has wrong type")
		}
		out.Having = e
	}
	out.OrderBy = make([]OrderItem, len(s.OrderBy))
	for i, o := range s.OrderBy {
		e, ok := pop().(Expression)
		if !ok {
			return nil, fmt.Errorf("ast.SelectStatement: order by %d has wrong type", i)
		}
		out.OrderBy[i] = OrderItem{Expr: e, Desc: o.Desc}
	}
	if s.Limit != nil {
		e, ok := pop().(Expression)
		if !ok {
			return nil, fmt.Errorf("ast.SelectStatement: limit child has wrong type")
		}
		out.Limit = e
	}
	if s.Offset != nil {
		e, ok := pop().(Expression)
		if !ok {
			return nil, fmt.Errorf("ast.SelectStatement: offset child has wrong type")
		}
		out.Offset = e
	}
	if idx != len(children) {
		return nil, fmt.Errorf("ast.SelectStatement: expected %d children, got %d", idx, len(children))
	}
	return out, nil
}

// Clone returns a deep-enough copy of the statement that in-place
// mutation of the copy (appending a SELECT item, adding a WHERE clause)
// never touches the original tree. Rewrite stages clone before mutating.
func (s *SelectStatement) Clone() *SelectStatement {
	clone := *s
	clone.Items = append([]SelectItem(nil), s.Items...)
	clone.GroupBy = append([]Expression(nil), s.GroupBy...)
	clone.OrderBy = append([]OrderItem(nil), s.OrderBy...)
	return &clone
}

func (s *SelectStatement) HasAggregates() bool {
	return len(FindAggregates(s.aggregateScanRoots())) > 0
}

// aggregateScanRoots returns the expressions that determine whether this
// SELECT is an aggregation query: its SELECT list and HAVING clause.
// (A WHERE-clause aggregate is not legal SQL and GROUP BY expressions
// themselves are never aggregates.)
func (s *SelectStatement) aggregateScanRoots() []Expression {
	roots := make([]Expression, 0, len(s.Items)+1)
	for _, it := range s.Items {
		roots = append(roots, it.Expr)
	}
	if s.Having != nil {
		roots = append(roots, s.Having)
	}
	return roots
}

func (s *SelectStatement) String() string {
	var sb strings.Builder
	if s.With != nil {
		sb.WriteString(s.With.String())
		sb.WriteByte(' ')
	}
	sb.WriteString("SELECT ")
	if s.Distinct {
		sb.WriteString("DISTINCT ")
	}
	parts := make([]string, len(s.Items))
	for i, it := range s.Items {
		parts[i] = it.String()
	}
	sb.WriteString(strings.Join(parts, ", "))
	if s.From != nil {
		sb.WriteByte(' ')
		sb.WriteString(s.From.String())
	}
	if s.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(s.Where.String())
	}
	if len(s.GroupBy) > 0 {
		gparts := make([]string, len(s.GroupBy))
		for i, g := range s.GroupBy {
			gparts[i] = g.String()
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(gparts, ", "))
	}
	if s.Having != nil {
		sb.WriteString(" HAVING ")
		sb.WriteString(s.Having.String())
	}
	if len(s.OrderBy) > 0 {
		oparts := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			oparts[i] = o.String()
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(oparts, ", "))
	}
	if s.Limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(s.Limit.String())
	}
	if s.Offset != nil {
		sb.WriteString(" OFFSET ")
		sb.WriteString(s.Offset.String())
	}
	return sb.String()
}

// InsertStatement is `INSERT INTO table [(cols)] SELECT ... | VALUES ...`.
type InsertStatement struct {
	baseNode
	Table   Identifier
	Columns []Identifier // explicit column list, empty if omitted
	Select  *SelectStatement
	Values  [][]Expression // used when Select is nil
}

func (ins *InsertStatement) statement() {}

func (ins *InsertStatement) Children() []Node {
	if ins.Select != nil {
		return []Node{ins.Select}
	}
	var out []Node
	for _, row := range ins.Values {
		for _, e := range row {
			out = append(out, e)
		}
	}
	return out
}

func (ins *InsertStatement) WithChildren(children ...Node) (Node, error) {
	out := &InsertStatement{Table: ins.Table, Columns: append([]Identifier(nil), ins.Columns...)}
	if ins.Select != nil {
		if len(children) != 1 {
			return nil, fmt.Errorf("ast.InsertStatement: expected 1 child, got %d", len(children))
		}
		sel, ok := children[0].(*SelectStatement)
		if !ok {
			return nil, fmt.Errorf("ast.InsertStatement: child is not a SelectStatement")
		}
		out.Select = sel
		return out, nil
	}
	idx := 0
	values := make([][]Expression, len(ins.Values))
	for i, row := range ins.Values {
		newRow := make([]Expression, len(row))
		for j := range row {
			e, ok := children[idx].(Expression)
			if !ok {
				return nil, fmt.Errorf("ast.InsertStatement: values[%d][%d] has wrong type", i, j)
			}
			newRow[j] = e
			idx++
		}
		values[i] = newRow
	}
	if idx != len(children) {
		return nil, fmt.Errorf("ast.InsertStatement: expected %d children, got %d", idx, len(children))
	}
	out.Values = values
	return out, nil
}

func (ins *InsertStatement) String() string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(ins.Table.String())
	if len(ins.Columns) > 0 {
		parts := make([]string, len(ins.Columns))
		for i, c := range ins.Columns {
			parts[i] = c.String()
		}
		sb.WriteString(" (" + strings.Join(parts, ", ") + ")")
	}
	sb.WriteByte(' ')
	if ins.Select != nil {
		sb.WriteString(ins.Select.String())
		return sb.String()
	}
	sb.WriteString("VALUES ")
	rows := make([]string, len(ins.Values))
	for i, row := range ins.Values {
		parts := make([]string, len(row))
		for j, e := range row {
			parts[j] = e.String()
		}
		rows[i] = "(" + strings.Join(parts, ", ") + ")"
	}
	sb.WriteString(strings.Join(rows, ", "))
	return sb.String()
}

// OpaqueStatement is any statement this facade doesn't model structurally
// (UPDATE, DDL, a set operator). It carries its original text verbatim so
// the rewriter can pass it through unchanged.
type OpaqueStatement struct {
	baseNode
	Text string
}

func (o *OpaqueStatement) statement()      {}
func (o *OpaqueStatement) Children() []Node { return nil }
func (o *OpaqueStatement) WithChildren(children ...Node) (Node, error) {
	if len(children) != 0 {
		return nil, fmt.Errorf("ast.OpaqueStatement: expected 0 children, got %d", len(children))
	}
	return o, nil
}
func (o *OpaqueStatement) String() string { return o.Text }
