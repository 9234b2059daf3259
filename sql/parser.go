package sql

import (
	"fmt"
	"strconv"

	"github.com/tis-abe-akira/our-sql/storage"
)

// Parser holds the lexer and current/peek tokens for recursive-descent
// parsing, following the same cursor shape as a conventional hand-written
// SQL parser: two tokens of lookahead, a next() that slides the window,
// and expectX helpers that advance on match or return a parse error.
type Parser struct {
	lx   *lexer
	cur  token
	peek token
}

// NewParser creates a parser over the given SQL text.
func NewParser(text string) *Parser {
	p := &Parser{lx: newLexer(text)}
	p.cur = p.lx.nextToken()
	p.peek = p.lx.nextToken()
	return p
}

func (p *Parser) next() { p.cur, p.peek = p.peek, p.lx.nextToken() }

func (p *Parser) atSymbol(sym string) bool { return p.cur.Typ == tSymbol && p.cur.Val == sym }
func (p *Parser) atKeyword(kw string) bool { return p.cur.Typ == tKeyword && p.cur.Val == kw }

func (p *Parser) expectSymbol(sym string) error {
	if p.atSymbol(sym) {
		p.next()
		return nil
	}
	return p.errf("expected symbol %q", sym)
}

func (p *Parser) expectKeyword(kw string) error {
	if p.atKeyword(kw) {
		p.next()
		return nil
	}
	return p.errf("expected keyword %q", kw)
}

func (p *Parser) expectIdent() (string, error) {
	if p.cur.Typ == tIdent {
		name := p.cur.Val
		p.next()
		return name, nil
	}
	return "", p.errf("expected identifier")
}

func (p *Parser) errf(format string, a ...any) error {
	if p.cur.Typ == tInvalid {
		return fmt.Errorf("%w: unrecognized character %q", ErrLex, p.cur.Val)
	}
	return fmt.Errorf("%w: near %q: %s", ErrParse, p.cur.Val, fmt.Sprintf(format, a...))
}

// ───────────────────────────────────────────────────────────────────────────
// AST
// ───────────────────────────────────────────────────────────────────────────

// Expr is any parsed expression: VarRef, Literal, or Binary.
type Expr interface{}

type (
	// VarRef refers to a column by name.
	VarRef struct{ Name string }
	// Literal holds a constant INT or TEXT value.
	Literal struct{ Val storage.Value }
	// Binary is a binary operator application: comparisons (=, !=, <, <=,
	// >, >=) or boolean connectives (AND, OR).
	Binary struct {
		Op          string
		Left, Right Expr
	}
)

// Statement is the root interface for every parsed SQL statement.
type Statement interface{}

// SelectStmt is a parsed SELECT query.
type SelectStmt struct {
	Table   string
	Cols    []string // nil means "*"
	Where   Expr
	OrderBy string // "" means unordered
	Desc    bool
	Limit   *int
}

// InsertStmt is a parsed INSERT statement. Cols is nil when the column
// list was omitted, in which case Vals maps positionally onto the
// target table's schema columns in order.
type InsertStmt struct {
	Table string
	Cols  []string
	Vals  []Expr
}

// UpdateStmt is a parsed UPDATE statement.
type UpdateStmt struct {
	Table string
	Sets  map[string]Expr
	Where Expr
}

// DeleteStmt is a parsed DELETE statement.
type DeleteStmt struct {
	Table string
	Where Expr
}

// CreateTableStmt is a parsed CREATE TABLE statement. The first column is
// always the primary key (storage.Schema's convention).
type CreateTableStmt struct {
	Table string
	Cols  []storage.Column
}

// DropTableStmt is a parsed DROP TABLE statement.
type DropTableStmt struct {
	Table string
}

// ───────────────────────────────────────────────────────────────────────────
// Statement parsing
// ───────────────────────────────────────────────────────────────────────────

// Parse parses a single SQL statement (an optional trailing ; is allowed).
func Parse(text string) (Statement, error) {
	p := NewParser(text)
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.atSymbol(";") {
		p.next()
	}
	if p.cur.Typ != tEOF {
		return nil, p.errf("unexpected trailing input")
	}
	return stmt, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	switch {
	case p.atKeyword("SELECT"):
		return p.parseSelect()
	case p.atKeyword("INSERT"):
		return p.parseInsert()
	case p.atKeyword("UPDATE"):
		return p.parseUpdate()
	case p.atKeyword("DELETE"):
		return p.parseDelete()
	case p.atKeyword("CREATE"):
		return p.parseCreateTable()
	case p.atKeyword("DROP"):
		return p.parseDropTable()
	default:
		return nil, p.errf("expected a statement")
	}
}

func (p *Parser) parseSelect() (Statement, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	stmt := &SelectStmt{}
	if p.atSymbol("*") {
		p.next()
	} else {
		for {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			stmt.Cols = append(stmt.Cols, name)
			if p.atSymbol(",") {
				p.next()
				continue
			}
			break
		}
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt.Table = table

	if p.atKeyword("WHERE") {
		p.next()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	if p.atKeyword("ORDER") {
		p.next()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		stmt.OrderBy = col
		if p.atKeyword("ASC") {
			p.next()
		} else if p.atKeyword("DESC") {
			stmt.Desc = true
			p.next()
		}
	}
	if p.atKeyword("LIMIT") {
		p.next()
		if p.cur.Typ != tNumber {
			return nil, p.errf("expected number after LIMIT")
		}
		n, err := strconv.Atoi(p.cur.Val)
		if err != nil {
			return nil, p.errf("invalid LIMIT value: %v", err)
		}
		p.next()
		stmt.Limit = &n
	}
	return stmt, nil
}

func (p *Parser) parseInsert() (Statement, error) {
	if err := p.expectKeyword("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt := &InsertStmt{Table: table}

	// The column list is an optional extension; the canonical grammar is
	// INSERT INTO ident VALUES (literal, ...), mapping values to the
	// table's schema columns positionally.
	if p.atSymbol("(") {
		p.next()
		for {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			stmt.Cols = append(stmt.Cols, name)
			if p.atSymbol(",") {
				p.next()
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}

	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	for {
		v, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		stmt.Vals = append(stmt.Vals, v)
		if p.atSymbol(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if len(stmt.Cols) > 0 && len(stmt.Cols) != len(stmt.Vals) {
		return nil, p.errf("column count (%d) does not match value count (%d)", len(stmt.Cols), len(stmt.Vals))
	}
	return stmt, nil
}

func (p *Parser) parseUpdate() (Statement, error) {
	if err := p.expectKeyword("UPDATE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt := &UpdateStmt{Table: table, Sets: map[string]Expr{}}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		val, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		stmt.Sets[name] = val
		if p.atSymbol(",") {
			p.next()
			continue
		}
		break
	}
	if p.atKeyword("WHERE") {
		p.next()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (Statement, error) {
	if err := p.expectKeyword("DELETE"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt := &DeleteStmt{Table: table}
	if p.atKeyword("WHERE") {
		p.next()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *Parser) parseCreateTable() (Statement, error) {
	if err := p.expectKeyword("CREATE"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt := &CreateTableStmt{Table: table}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		var colType storage.ColType
		switch {
		case p.atKeyword("INT"):
			colType = storage.ColInt
			p.next()
		case p.atKeyword("TEXT"):
			colType = storage.ColText
			p.next()
		default:
			return nil, p.errf("expected column type INT or TEXT")
		}
		if p.atKeyword("PRIMARY") {
			p.next()
			if err := p.expectKeyword("KEY"); err != nil {
				return nil, err
			}
		}
		stmt.Cols = append(stmt.Cols, storage.Column{Name: name, Type: colType})
		if p.atSymbol(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseDropTable() (Statement, error) {
	if err := p.expectKeyword("DROP"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &DropTableStmt{Table: table}, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Expression parsing (precedence climbing: OR, AND, comparison, primary)
// ───────────────────────────────────────────────────────────────────────────

func (p *Parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("AND") {
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseComparison() (Expr, error) {
	parenthesized := p.atSymbol("(")
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.cur.Typ == tSymbol {
		switch p.cur.Val {
		case "=", "!=", "<", "<=", ">", ">=":
			op := p.cur.Val
			p.next()
			right, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			return &Binary{Op: op, Left: left, Right: right}, nil
		}
	}
	if parenthesized {
		// A parenthesized group is already a complete condition.
		return left, nil
	}
	return left, p.errf("expected comparison operator")
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch {
	case p.cur.Typ == tIdent:
		name := p.cur.Val
		p.next()
		return &VarRef{Name: name}, nil
	case p.cur.Typ == tNumber:
		n, err := strconv.ParseInt(p.cur.Val, 10, 64)
		if err != nil {
			return nil, p.errf("invalid integer literal: %v", err)
		}
		p.next()
		return &Literal{Val: storage.IntValue(n)}, nil
	case p.cur.Typ == tString:
		s := p.cur.Val
		p.next()
		return &Literal{Val: storage.TextValue(s)}, nil
	case p.atSymbol("-"):
		p.next()
		if p.cur.Typ != tNumber {
			return nil, p.errf("expected number after unary -")
		}
		n, err := strconv.ParseInt(p.cur.Val, 10, 64)
		if err != nil {
			return nil, p.errf("invalid integer literal: %v", err)
		}
		p.next()
		return &Literal{Val: storage.IntValue(-n)}, nil
	case p.atSymbol("("):
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, p.errf("expected an expression")
	}
}
