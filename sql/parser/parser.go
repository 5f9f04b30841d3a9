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

// ParseError is returned for any malformed input, a dedicated error kind
// so callers can distinguish a parse failure from any other rewrite error
// rather than have it swallowed.
type ParseError struct {
	Query string
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sql parse error: %s (in query: %s)", e.Msg, truncate(e.Query, 120))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type parser struct {
	src    string
	tokens []token
	pos    int
}

// ParseStatement parses a single DuckDB-dialect SQL statement. SELECT and
// INSERT statements are parsed into their structural ast types; every
// other statement shape (UPDATE, DDL, set operators such as UNION) is
// returned as an *ast.OpaqueStatement carrying the original text
// verbatim.
func ParseStatement(query string) (ast.Statement, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(query), ";")
	toks, err := newLexer(trimmed).tokenize()
	if err != nil {
		return nil, &ParseError{Query: query, Msg: err.Error()}
	}
	p := &parser{src: trimmed, tokens: toks}

	if len(toks) > 0 && toks[0].kind == tokIdent {
		switch toks[0].upper() {
		case "SELECT", "WITH":
			stmt, err := p.parseSelectOrPassthrough()
			if err != nil {
				return nil, &ParseError{Query: query, Msg: err.Error()}
			}
			return stmt, nil
		case "INSERT":
			stmt, err := p.parseInsert()
			if err != nil {
				return nil, &ParseError{Query: query, Msg: err.Error()}
			}
			return stmt, nil
		}
	}
	return &ast.OpaqueStatement{Text: trimmed}, nil
}

// ParseExpression parses a single standalone SQL boolean/scalar
// expression, the form a policy's CONSTRAINT value takes.
func ParseExpression(exprSQL string) (ast.Expression, error) {
	toks, err := newLexer(exprSQL).tokenize()
	if err != nil {
		return nil, &ParseError{Query: exprSQL, Msg: err.Error()}
	}
	p := &parser{src: exprSQL, tokens: toks}
	expr, err := p.parseExpr(0)
	if err != nil {
		return nil, &ParseError{Query: exprSQL, Msg: err.Error()}
	}
	if !p.atEOF() {
		return nil, &ParseError{Query: exprSQL, Msg: fmt.Sprintf("unexpected trailing input %q", p.peek().text)}
	}
	return expr, nil
}

func (p *parser) peek() token  { return p.tokens[p.pos] }
func (p *parser) atEOF() bool  { return p.peek().kind == tokEOF }

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isKeyword(kw string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.upper() == kw
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return fmt.Errorf("expected %q, got %q at position %d", kw, p.peek().text, p.peek().pos)
	}
	p.advance()
	return nil
}

func (p *parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return fmt.Errorf("expected %q, got %q at position %d", s, p.peek().text, p.peek().pos)
	}
	p.advance()
	return nil
}

// parseSelectOrPassthrough parses a (possibly WITH-prefixed) SELECT, then
// checks for a trailing set operator (UNION/INTERSECT/EXCEPT). If one is
// found the whole statement is a set operation and is passed through
// unchanged instead of being modeled structurally.
func (p *parser) parseSelectOrPassthrough() (ast.Statement, error) {
	savedPos := p.pos
	stmt, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("UNION") || p.isKeyword("INTERSECT") || p.isKeyword("EXCEPT") {
		p.pos = savedPos
		return &ast.OpaqueStatement{Text: p.src}, nil
	}
	if !p.atEOF() {
		return nil, fmt.Errorf("unexpected trailing input %q at position %d", p.peek().text, p.peek().pos)
	}
	return stmt, nil
}

func (p *parser) parseSelect() (*ast.SelectStatement, error) {
	stmt := &ast.SelectStatement{}

	if p.isKeyword("WITH") {
		p.advance()
		with := &ast.WithClause{}
		if p.isKeyword("RECURSIVE") {
			p.advance()
			with.Recursive = true
		}
		for {
			cte, err := p.parseCTE()
			if err != nil {
				return nil, err
			}
			with.CTEs = append(with.CTEs, cte)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		stmt.With = with
	}

	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	if p.isKeyword("DISTINCT") {
		p.advance()
		stmt.Distinct = true
	}

	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		stmt.Items = append(stmt.Items, item)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}

	if p.isKeyword("FROM") {
		p.advance()
		src, err := p.parseTableExpr()
		if err != nil {
			return nil, err
		}
		stmt.From = &ast.FromClause{Source: src}
	}

	if p.isKeyword("WHERE") {
		p.advance()
		expr, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		stmt.Where = expr
	}

	if p.isKeyword("GROUP") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, e)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}

	if p.isKeyword("HAVING") {
		p.advance()
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		stmt.Having = e
	}

	if p.isKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			desc := false
			if p.isKeyword("ASC") {
				p.advance()
			} else if p.isKeyword("DESC") {
				p.advance()
				desc = true
			}
			stmt.OrderBy = append(stmt.OrderBy, ast.OrderItem{Expr: e, Desc: desc})
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}

	if p.isKeyword("LIMIT") {
		p.advance()
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		stmt.Limit = e
	}
	if p.isKeyword("OFFSET") {
		p.advance()
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		stmt.Offset = e
	}

	return stmt, nil
}

func (p *parser) parseCTE() (*ast.CTE, error) {
	name, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	cte := &ast.CTE{Name: name}
	if p.isPunct("(") {
		p.advance()
		for {
			col, err := p.parseIdentifier()
			if err != nil {
				return nil, err
			}
			cte.Columns = append(cte.Columns, col)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("AS"); err != nil {
		return nil, err
	}
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
	cte.Query = sel
	return cte, nil
}

func (p *parser) parseSelectItem() (ast.SelectItem, error) {
	if p.isPunct("*") {
		p.advance()
		return ast.SelectItem{Expr: &ast.Star{}}, nil
	}
	expr, err := p.parseExpr(0)
	if err != nil {
		return ast.SelectItem{}, err
	}
	item := ast.SelectItem{Expr: expr}
	if p.isKeyword("AS") {
		p.advance()
		alias, err := p.parseIdentifier()
		if err != nil {
			return ast.SelectItem{}, err
		}
		item.Alias = alias
	} else if p.peek().kind == tokIdent && !isReservedInSelectListPosition(p.peek().upper()) {
		alias, err := p.parseIdentifier()
		if err != nil {
			return ast.SelectItem{}, err
		}
		item.Alias = alias
	}
	return item, nil
}

// isReservedInSelectListPosition lists the keywords that can legally
// follow a select-list expression without being a bare alias (FROM,
// WHERE, the next clause keywords, or a comma/closing paren caller
// already checks for separately).
func isReservedInSelectListPosition(upper string) bool {
	switch upper {
	case "FROM", "WHERE", "GROUP", "HAVING", "ORDER", "LIMIT", "OFFSET",
		"UNION", "INTERSECT", "EXCEPT", "AND", "OR", "ON", "JOIN", "INNER",
		"LEFT", "RIGHT", "FULL", "CROSS", "AS", "WHEN", "THEN", "ELSE", "END",
		"ASC", "DESC", "FILTER":
		return true
	default:
		return false
	}
}

func (p *parser) parseIdentifier() (ast.Identifier, error) {
	t := p.peek()
	switch t.kind {
	case tokIdent:
		p.advance()
		return ast.Identifier{Name: t.text}, nil
	case tokQuotedIdent:
		p.advance()
		return ast.Identifier{Name: t.text, Quoted: true}, nil
	default:
		return ast.Identifier{}, fmt.Errorf("expected identifier, got %q at position %d", t.text, t.pos)
	}
}

func (p *parser) parseTableExpr() (ast.TableExpr, error) {
	left, err := p.parseTableFactor()
	if err != nil {
		return nil, err
	}
	for {
		kind, hasJoin, err := p.tryJoinKind()
		if err != nil {
			return nil, err
		}
		if hasJoin {
			right, err := p.parseTableFactor()
			if err != nil {
				return nil, err
			}
			var on ast.Expression
			if kind != ast.JoinCross && p.isKeyword("ON") {
				p.advance()
				on, err = p.parseExpr(0)
				if err != nil {
					return nil, err
				}
			}
			left = &ast.JoinExpr{Kind: kind, Left: left, Right: right, On: on}
			continue
		}
		if p.isPunct(",") {
			p.advance()
			right, err := p.parseTableFactor()
			if err != nil {
				return nil, err
			}
			left = &ast.JoinExpr{Kind: ast.JoinCross, Left: left, Right: right}
			continue
		}
		break
	}
	return left, nil
}

func (p *parser) tryJoinKind() (ast.JoinKind, bool, error) {
	switch {
	case p.isKeyword("JOIN"):
		p.advance()
		return ast.JoinInner, true, nil
	case p.isKeyword("INNER"):
		p.advance()
		if err := p.expectKeyword("JOIN"); err != nil {
			return 0, false, err
		}
		return ast.JoinInner, true, nil
	case p.isKeyword("LEFT"):
		p.advance()
		if p.isKeyword("OUTER") {
			p.advance()
		}
		if err := p.expectKeyword("JOIN"); err != nil {
			return 0, false, err
		}
		return ast.JoinLeft, true, nil
	case p.isKeyword("RIGHT"):
		p.advance()
		if p.isKeyword("OUTER") {
			p.advance()
		}
		if err := p.expectKeyword("JOIN"); err != nil {
			return 0, false, err
		}
		return ast.JoinRight, true, nil
	case p.isKeyword("FULL"):
		p.advance()
		if p.isKeyword("OUTER") {
			p.advance()
		}
		if err := p.expectKeyword("JOIN"); err != nil {
			return 0, false, err
		}
		return ast.JoinFull, true, nil
	case p.isKeyword("CROSS"):
		p.advance()
		if err := p.expectKeyword("JOIN"); err != nil {
			return 0, false, err
		}
		return ast.JoinCross, true, nil
	default:
		return 0, false, nil
	}
}

func (p *parser) parseTableFactor() (ast.TableExpr, error) {
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
			ref := &ast.SubqueryRef{Query: sel}
			if p.isKeyword("AS") {
				p.advance()
			}
			alias, err := p.parseIdentifier()
			if err != nil {
				return nil, fmt.Errorf("subquery in FROM must have an alias: %w", err)
			}
			ref.Alias = alias
			return ref, nil
		}
		inner, err := p.parseTableExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	name, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	ref := &ast.TableRef{Name: name}
	if p.isPunct(".") {
		p.advance()
		table, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		ref.Schema = name
		ref.Name = table
	}
	if p.isKeyword("AS") {
		p.advance()
		alias, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		ref.Alias = alias
	} else if p.peek().kind == tokIdent && !isJoinOrClauseKeyword(p.peek().upper()) {
		alias, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		ref.Alias = alias
	}
	return ref, nil
}

func isJoinOrClauseKeyword(upper string) bool {
	switch upper {
	case "JOIN", "INNER", "LEFT", "RIGHT", "FULL", "CROSS", "ON",
		"WHERE", "GROUP", "HAVING", "ORDER", "LIMIT", "OFFSET",
		"UNION", "INTERSECT", "EXCEPT":
		return true
	default:
		return false
	}
}

// parseInsert parses `INSERT INTO table [(cols)] SELECT ...` or
// `INSERT INTO table [(cols)] VALUES (...), ...`.
func (p *parser) parseInsert() (ast.Statement, error) {
	if err := p.expectKeyword("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	stmt := &ast.InsertStatement{Table: table}

	if p.isPunct("(") {
		p.advance()
		for {
			col, err := p.parseIdentifier()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	}

	if p.isKeyword("SELECT") || p.isKeyword("WITH") {
		savedPos := p.pos
		sel, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if p.isKeyword("UNION") || p.isKeyword("INTERSECT") || p.isKeyword("EXCEPT") {
			p.pos = savedPos
			return &ast.OpaqueStatement{Text: p.src}, nil
		}
		stmt.Select = sel
		return stmt, nil
	}

	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	for {
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		var row []ast.Expression
		for {
			e, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		stmt.Values = append(stmt.Values, row)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return stmt, nil
}
