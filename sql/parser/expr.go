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

package parser

import (
	"fmt"
	"strings"

	"github.com/reallocf/dfc-sql-rewriter/sql/ast"
)

// binaryPrecedence implements precedence-climbing over the operators the
// policy DSL and query rewriter need to understand: logical OR/AND below
// comparison below additive below multiplicative. NOT and unary minus are
// handled in parseUnary: NOT binds tighter than AND/OR and looser than
// comparison, unary minus binds tighter than every binary level.
var binaryPrecedence = map[string]int{
	"OR":  1,
	"AND": 2,

	"=": 3, "<>": 3, "!=": 3, ">": 3, ">=": 3, "<": 3, "<=": 3,
	"LIKE": 3, "IN": 3, "IS": 3,

	"+": 4, "-": 4, "||": 4,
	"*": 5, "/": 5, "%": 5,
}

// parseExpr parses a full expression using precedence climbing, stopping
// as soon as the next token is an operator whose precedence is below
// minPrec (or isn't an operator this parser recognizes at all).
func (p *parser) parseExpr(minPrec int) (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, prec, ok := p.peekBinaryOp()
		if !ok || prec < minPrec {
			return left, nil
		}
		p.consumeBinaryOp(op)

		if op == "IS" {
			negate := false
			if p.isKeyword("NOT") {
				p.advance()
				negate = true
			}
			if err := p.expectKeyword("NULL"); err != nil {
				return nil, err
			}
			isNull := ast.Expression(&ast.BinaryExpr{Op: "IS", Left: left, Right: ast.NewNull()})
			if negate {
				isNull = &ast.UnaryExpr{Op: "NOT", Expr: isNull}
			}
			left = isNull
			continue
		}

		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
}

// peekBinaryOp reports the upcoming binary operator (if any) and its
// precedence without consuming tokens, so parseExpr can decide whether to
// keep climbing.
func (p *parser) peekBinaryOp() (string, int, bool) {
	t := p.peek()
	switch t.kind {
	case tokPunct:
		switch t.text {
		case "=", "<>", "!=", ">", ">=", "<", "<=", "+", "-", "*", "/", "||", "%":
			return t.text, binaryPrecedence[t.text], true
		}
		return "", 0, false
	case tokIdent:
		switch t.upper() {
		case "AND":
			return "AND", binaryPrecedence["AND"], true
		case "OR":
			return "OR", binaryPrecedence["OR"], true
		case "LIKE":
			return "LIKE", binaryPrecedence["LIKE"], true
		case "IS":
			return "IS", binaryPrecedence["IS"], true
		case "NOT":
			if p.tokens[p.pos+1].kind == tokIdent && p.tokens[p.pos+1].upper() == "LIKE" {
				return "NOT LIKE", binaryPrecedence["LIKE"], true
			}
			return "", 0, false
		}
	}
	return "", 0, false
}

func (p *parser) consumeBinaryOp(op string) {
	if op == "NOT LIKE" {
		p.advance()
		p.advance()
		return
	}
	p.advance()
}

// parseUnary handles NOT, unary minus, and otherwise falls through to a
// primary expression, then checks for a trailing postfix (only "NOT LIKE"
// is handled at the binary level above; NOT as a prefix is handled here).
func (p *parser) parseUnary() (ast.Expression, error) {
	if p.isKeyword("NOT") {
		p.advance()
		inner, err := p.parseExpr(binaryPrecedence["AND"] + 1)
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: "NOT", Expr: inner}, nil
	}
	if p.isPunct("-") {
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: "-", Expr: inner}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression. No postfix suffix is parsed
// here; in particular [NOT] IN (...) is not recognized.
func (p *parser) parsePostfix() (ast.Expression, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return expr, nil
}

func (p *parser) parsePrimary() (ast.Expression, error) {
	t := p.peek()

	switch t.kind {
	case tokNumber:
		p.advance()
		return ast.NewNumber(t.text), nil
	case tokString:
		p.advance()
		return ast.NewString(t.text), nil
	}

	if p.isPunct("(") {
		p.advance()
		if p.isKeyword("SELECT") || p.isKeyword("WITH") {
			sel, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return &ast.ScalarSubquery{Query: sel}, nil
		}
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	if p.isPunct("[") {
		return p.parseArrayLiteral()
	}

	if t.kind != tokIdent && t.kind != tokQuotedIdent {
		return nil, fmt.Errorf("unexpected token %q at position %d", t.text, t.pos)
	}

	switch t.upper() {
	case "TRUE":
		p.advance()
		return ast.NewBool(true), nil
	case "FALSE":
		p.advance()
		return ast.NewBool(false), nil
	case "NULL":
		p.advance()
		return ast.NewNull(), nil
	case "NOT":
		// parseUnary consumes a leading NOT (so "NOT EXISTS" becomes a
		// NOT over the EXISTS expression) before a primary is parsed;
		// this arm only runs when parsePrimary is entered on a NOT directly.
		p.advance()
		inner, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		if ex, ok := inner.(*ast.ExistsExpr); ok {
			ex.Not = true
			return ex, nil
		}
		return &ast.UnaryExpr{Op: "NOT", Expr: inner}, nil
	case "EXISTS":
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		sel, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return &ast.ExistsExpr{Query: sel}, nil
	case "CASE":
		return p.parseCase()
	case "ARRAY":
		p.advance()
		return p.parseArrayLiteral()
	}

	// Qualified or unqualified column reference, or function call.
	first, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}

	if p.isPunct(".") {
		p.advance()
		if p.isPunct("*") {
			p.advance()
			return &ast.Star{Table: first}, nil
		}
		second, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		if p.isPunct("(") {
			return nil, fmt.Errorf("qualified function calls are not supported near position %d", p.peek().pos)
		}
		return &ast.Column{Table: first, Name: second}, nil
	}

	if p.isPunct("(") {
		return p.parseFuncCall(first.Name)
	}

	return &ast.Column{Name: first}, nil
}

func (p *parser) parseFuncCall(name string) (ast.Expression, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	call := &ast.FuncCall{Name: strings.ToUpper(name)}

	if p.isPunct("*") {
		p.advance()
		call.Star = true
	} else if !p.isPunct(")") {
		if p.isKeyword("DISTINCT") {
			p.advance()
			call.Distinct = true
		}
		for {
			e, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, e)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	if p.isKeyword("FILTER") {
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("WHERE"); err != nil {
			return nil, err
		}
		filter, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		call.Filter = filter
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	}

	return call, nil
}

func (p *parser) parseArrayLiteral() (ast.Expression, error) {
	if err := p.expectPunct("["); err != nil {
		return nil, err
	}
	arr := &ast.ArrayExpr{}
	if !p.isPunct("]") {
		for {
			e, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			arr.Elements = append(arr.Elements, e)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return arr, nil
}

func (p *parser) parseCase() (ast.Expression, error) {
	if err := p.expectKeyword("CASE"); err != nil {
		return nil, err
	}
	c := &ast.Case{}
	if !p.isKeyword("WHEN") {
		operand, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		c.Operand = operand
	}
	for p.isKeyword("WHEN") {
		p.advance()
		cond, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("THEN"); err != nil {
			return nil, err
		}
		result, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, ast.WhenClause{Cond: cond, Result: result})
	}
	if len(c.Whens) == 0 {
		return nil, fmt.Errorf("CASE expression requires at least one WHEN clause near position %d", p.peek().pos)
	}
	if p.isKeyword("ELSE") {
		p.advance()
		elseExpr, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		c.Else = elseExpr
	}
	if err := p.expectKeyword("END"); err != nil {
		return nil, err
	}
	return c, nil
}
