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

// Column is a (possibly table-qualified) column reference.
type Column struct {
	baseNode
	Table Identifier // zero value if unqualified
	Name  Identifier
}

func (c *Column) expression() {}

func (c *Column) Qualified() bool { return !c.Table.IsZero() }

// TableName returns the lowercased qualifying table name, or "" if the
// column is unqualified.
func (c *Column) TableName() string {
	if c.Table.IsZero() {
		return ""
	}
	return c.Table.Lower()
}

// ColumnName returns the lowercased column name.
func (c *Column) ColumnName() string { return c.Name.Lower() }

func (c *Column) Children() []Node { return nil }

func (c *Column) WithChildren(children ...Node) (Node, error) {
	if len(children) != 0 {
		return nil, fmt.Errorf("ast.Column: expected 0 children, got %d", len(children))
	}
	return c, nil
}

func (c *Column) String() string {
	if c.Table.IsZero() {
		return c.Name.String()
	}
	return c.Table.String() + "." + c.Name.String()
}

// LiteralKind classifies a Literal's syntax so String() can render it
// without quoting numbers or booleans.
type LiteralKind int

const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralBool
	LiteralNull
)

// Literal is a constant value: number, quoted string, boolean, or NULL.
type Literal struct {
	baseNode
	Kind LiteralKind
	Raw  string // unquoted text; e.g. "1", "true", "Alice"
}

func (l *Literal) expression()         {}
func (l *Literal) Children() []Node    { return nil }
func (l *Literal) WithChildren(children ...Node) (Node, error) {
	if len(children) != 0 {
		return nil, fmt.Errorf("ast.Literal: expected 0 children, got %d", len(children))
	}
	return l, nil
}

func (l *Literal) String() string {
	switch l.Kind {
	case LiteralString:
		return "'" + strings.ReplaceAll(l.Raw, "'", "''") + "'"
	case LiteralNull:
		return "NULL"
	default:
		return l.Raw
	}
}

func NewNumber(raw string) *Literal { return &Literal{Kind: LiteralNumber, Raw: raw} }
func NewString(raw string) *Literal { return &Literal{Kind: LiteralString, Raw: raw} }
func NewBool(v bool) *Literal {
	raw := "false"
	if v {
		raw = "true"
	}
	return &Literal{Kind: LiteralBool, Raw: raw}
}
func NewNull() *Literal { return &Literal{Kind: LiteralNull, Raw: "NULL"} }

// Star is `*` or `table.*` in a select list, with DuckDB's optional
// `EXCLUDE (cols...)` modifier — used by the two-phase plan builder
// to drop the synthetic row-identity column from the final projection.
type Star struct {
	baseNode
	Table   Identifier // zero if unqualified
	Exclude []Identifier
}

func (s *Star) expression()      {}
func (s *Star) Children() []Node { return nil }
func (s *Star) WithChildren(children ...Node) (Node, error) {
	if len(children) != 0 {
		return nil, fmt.Errorf("ast.Star: expected 0 children, got %d", len(children))
	}
	return s, nil
}
func (s *Star) String() string {
	out := "*"
	if !s.Table.IsZero() {
		out = s.Table.String() + ".*"
	}
	if len(s.Exclude) == 0 {
		return out
	}
	parts := make([]string, len(s.Exclude))
	for i, id := range s.Exclude {
		parts[i] = id.String()
	}
	return out + " EXCLUDE (" + strings.Join(parts, ", ") + ")"
}

// BinaryExpr is a binary operator expression: comparison, arithmetic, or
// logical AND/OR.
type BinaryExpr struct {
	baseNode
	Op    string // "AND", "OR", "=", "<>", ">", ">=", "<", "<=", "+", "-", "*", "/", "LIKE", ...
	Left  Expression
	Right Expression
}

func (b *BinaryExpr) expression()      {}
func (b *BinaryExpr) Children() []Node { return []Node{b.Left, b.Right} }
func (b *BinaryExpr) WithChildren(children ...Node) (Node, error) {
	if len(children) != 2 {
		return nil, fmt.Errorf("ast.BinaryExpr: expected 2 children, got %d", len(children))
	}
	left, ok := children[0].(Expression)
	if !ok {
		return nil, fmt.Errorf("ast.BinaryExpr: child 0 is not an expression")
	}
	right, ok := children[1].(Expression)
	if !ok {
		return nil, fmt.Errorf("ast.BinaryExpr: child 1 is not an expression")
	}
	return &BinaryExpr{Op: b.Op, Left: left, Right: right}, nil
}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.String(), b.Op, b.Right.String())
}

// And is a convenience constructor combining two predicates with AND,
// used pervasively when composing multiple policies' clauses.
func And(left, right Expression) Expression {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return &BinaryExpr{Op: "AND", Left: left, Right: right}
}

// UnaryExpr is a prefix unary operator: NOT or unary minus.
type UnaryExpr struct {
	baseNode
	Op   string // "NOT", "-"
	Expr Expression
}

func (u *UnaryExpr) expression()      {}
func (u *UnaryExpr) Children() []Node { return []Node{u.Expr} }
func (u *UnaryExpr) WithChildren(children ...Node) (Node, error) {
	if len(children) != 1 {
		return nil, fmt.Errorf("ast.UnaryExpr: expected 1 child, got %d", len(children))
	}
	e, ok := children[0].(Expression)
	if !ok {
		return nil, fmt.Errorf("ast.UnaryExpr: child is not an expression")
	}
	return &UnaryExpr{Op: u.Op, Expr: e}, nil
}
func (u *UnaryExpr) String() string {
	if u.Op == "NOT" {
		return fmt.Sprintf("(NOT %s)", u.Expr.String())
	}
	return fmt.Sprintf("(%s%s)", u.Op, u.Expr.String())
}

// FuncCall is a scalar or aggregate function invocation, including the
// `Anonymous`-style engine UDFs (kill(), address_violating_rows(...))
// the rewriter injects.
type FuncCall struct {
	baseNode
	Name     string
	Args     []Expression
	Star     bool       // COUNT(*)
	Distinct bool       // COUNT(DISTINCT x)
	Filter   Expression // FILTER (WHERE <Filter>), nil if absent
}

func (f *FuncCall) expression() {}
func (f *FuncCall) Children() []Node {
	children := make([]Node, 0, len(f.Args)+1)
	for _, a := range f.Args {
		children = append(children, a)
	}
	if f.Filter != nil {
		children = append(children, f.Filter)
	}
	return children
}
func (f *FuncCall) WithChildren(children ...Node) (Node, error) {
	nArgs := len(f.Args)
	want := nArgs
	if f.Filter != nil {
		want++
	}
	if len(children) != want {
		return nil, fmt.Errorf("ast.FuncCall: expected %d children, got %d", want, len(children))
	}
	args := make([]Expression, nArgs)
	for i := 0; i < nArgs; i++ {
		e, ok := children[i].(Expression)
		if !ok {
			return nil, fmt.Errorf("ast.FuncCall: child %d is not an expression", i)
		}
		args[i] = e
	}
	var filter Expression
	if f.Filter != nil {
		e, ok := children[nArgs].(Expression)
		if !ok {
			return nil, fmt.Errorf("ast.FuncCall: filter child is not an expression")
		}
		filter = e
	}
	return &FuncCall{Name: f.Name, Args: args, Star: f.Star, Distinct: f.Distinct, Filter: filter}, nil
}

// IsAggregate reports whether this call is one of the aggregate functions
// the constraint transformer lowers in scan contexts.
func (f *FuncCall) IsAggregate() bool {
	return AggregateFunctionNames[strings.ToUpper(f.Name)]
}

func (f *FuncCall) String() string {
	var sb strings.Builder
	sb.WriteString(f.Name)
	sb.WriteByte('(')
	if f.Star {
		sb.WriteByte('*')
	} else {
		if f.Distinct {
			sb.WriteString("DISTINCT ")
		}
		parts := make([]string, len(f.Args))
		for i, a := range f.Args {
			parts[i] = a.String()
		}
		sb.WriteString(strings.Join(parts, ", "))
	}
	sb.WriteByte(')')
	if f.Filter != nil {
		sb.WriteString(" FILTER (WHERE ")
		sb.WriteString(f.Filter.String())
		sb.WriteByte(')')
	}
	return sb.String()
}

// WhenClause is one `WHEN cond THEN result` arm of a Case expression.
type WhenClause struct {
	Cond   Expression
	Result Expression
}

// Case is a CASE [operand] WHEN ... THEN ... [ELSE ...] END expression.
type Case struct {
	baseNode
	Operand Expression // nil for the searched CASE WHEN <bool> form
	Whens   []WhenClause
	Else    Expression // nil if absent
}

func (c *Case) expression() {}
func (c *Case) Children() []Node {
	n := 0
	if c.Operand != nil {
		n++
	}
	n += 2 * len(c.Whens)
	if c.Else != nil {
		n++
	}
	out := make([]Node, 0, n)
	if c.Operand != nil {
		out = append(out, c.Operand)
	}
	for _, w := range c.Whens {
		out = append(out, w.Cond, w.Result)
	}
	if c.Else != nil {
		out = append(out, c.Else)
	}
	return out
}
func (c *Case) WithChildren(children ...Node) (Node, error) {
	idx := 0
	next := func() (Expression, error) {
		if idx >= len(children) {
			return nil, fmt.Errorf("ast.Case: not enough children")
		}
		e, ok := children[idx].(Expression)
		idx++
		if !ok {
			return nil, fmt.Errorf("ast.Case: child is not an expression")
		}
		return e, nil
	}
	var operand Expression
	var err error
	if c.Operand != nil {
		if operand, err = next(); err != nil {
			return nil, err
		}
	}
	whens := make([]WhenClause, len(c.Whens))
	for i := range c.Whens {
		cond, err := next()
		if err != nil {
			return nil, err
		}
		result, err := next()
		if err != nil {
			return nil, err
		}
		whens[i] = WhenClause{Cond: cond, Result: result}
	}
	var elseExpr Expression
	if c.Else != nil {
		if elseExpr, err = next(); err != nil {
			return nil, err
		}
	}
	return &Case{Operand: operand, Whens: whens, Else: elseExpr}, nil
}
func (c *Case) String() string {
	var sb strings.Builder
	sb.WriteString("CASE ")
	if c.Operand != nil {
		sb.WriteString(c.Operand.String())
		sb.WriteByte(' ')
	}
	for _, w := range c.Whens {
		sb.WriteString("WHEN ")
		sb.WriteString(w.Cond.String())
		sb.WriteString(" THEN ")
		sb.WriteString(w.Result.String())
		sb.WriteByte(' ')
	}
	if c.Else != nil {
		sb.WriteString("ELSE ")
		sb.WriteString(c.Else.String())
		sb.WriteByte(' ')
	}
	sb.WriteString("END")
	return sb.String()
}

// NewSimpleCaseWhen builds `CASE WHEN cond THEN thenExpr ELSE elseExpr END`,
// the shape the action binder uses for KILL/HUMAN/LLM wrapping.
func NewSimpleCaseWhen(cond, thenExpr, elseExpr Expression) *Case {
	return &Case{Whens: []WhenClause{{Cond: cond, Result: thenExpr}}, Else: elseExpr}
}

// ArrayExpr is a DuckDB `[a, b, c]` / `ARRAY[a, b, c]` literal array.
type ArrayExpr struct {
	baseNode
	Elements []Expression
}

func (a *ArrayExpr) expression() {}
func (a *ArrayExpr) Children() []Node {
	out := make([]Node, len(a.Elements))
	for i, e := range a.Elements {
		out[i] = e
	}
	return out
}
func (a *ArrayExpr) WithChildren(children ...Node) (Node, error) {
	if len(children) != len(a.Elements) {
		return nil, fmt.Errorf("ast.ArrayExpr: expected %d children, got %d", len(a.Elements), len(children))
	}
	elems := make([]Expression, len(children))
	for i, c := range children {
		e, ok := c.(Expression)
		if !ok {
			return nil, fmt.Errorf("ast.ArrayExpr: child %d is not an expression", i)
		}
		elems[i] = e
	}
	return &ArrayExpr{Elements: elems}, nil
}
func (a *ArrayExpr) String() string {
	parts := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ScalarSubquery is a `(SELECT ...)` used in scalar position.
type ScalarSubquery struct {
	baseNode
	Query *SelectStatement
}

func (s *ScalarSubquery) expression()      {}
func (s *ScalarSubquery) Children() []Node { return []Node{s.Query} }
func (s *ScalarSubquery) WithChildren(children ...Node) (Node, error) {
	if len(children) != 1 {
		return nil, fmt.Errorf("ast.ScalarSubquery: expected 1 child, got %d", len(children))
	}
	q, ok := children[0].(*SelectStatement)
	if !ok {
		return nil, fmt.Errorf("ast.ScalarSubquery: child is not a SelectStatement")
	}
	return &ScalarSubquery{Query: q}, nil
}
func (s *ScalarSubquery) String() string { return "(" + s.Query.String() + ")" }

// ExistsExpr is `[NOT] EXISTS (SELECT ...)`.
type ExistsExpr struct {
	baseNode
	Not   bool
	Query *SelectStatement
}

func (e *ExistsExpr) expression()      {}
func (e *ExistsExpr) Children() []Node { return []Node{e.Query} }
func (e *ExistsExpr) WithChildren(children ...Node) (Node, error) {
	if len(children) != 1 {
		return nil, fmt.Errorf("ast.ExistsExpr: expected 1 child, got %d", len(children))
	}
	q, ok := children[0].(*SelectStatement)
	if !ok {
		return nil, fmt.Errorf("ast.ExistsExpr: child is not a SelectStatement")
	}
	return &ExistsExpr{Not: e.Not, Query: q}, nil
}
func (e *ExistsExpr) String() string {
	if e.Not {
		return "NOT EXISTS (" + e.Query.String() + ")"
	}
	return "EXISTS (" + e.Query.String() + ")"
}
