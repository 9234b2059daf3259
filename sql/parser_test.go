package sql

import (
	"errors"
	"testing"

	"github.com/tis-abe-akira/our-sql/storage"
)

func TestParse_SelectStar(t *testing.T) {
	stmt, err := Parse("SELECT * FROM users")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sel, ok := stmt.(*SelectStmt)
	if !ok {
		t.Fatalf("expected *SelectStmt, got %T", stmt)
	}
	if sel.Table != "users" || sel.Cols != nil {
		t.Fatalf("unexpected select: %+v", sel)
	}
}

func TestParse_SelectWithWhereOrderLimit(t *testing.T) {
	stmt, err := Parse("SELECT id, name FROM users WHERE id >= 10 AND id < 20 ORDER BY name DESC LIMIT 5;")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sel, ok := stmt.(*SelectStmt)
	if !ok {
		t.Fatalf("expected *SelectStmt, got %T", stmt)
	}
	if len(sel.Cols) != 2 || sel.Cols[0] != "id" || sel.Cols[1] != "name" {
		t.Fatalf("unexpected cols: %v", sel.Cols)
	}
	if sel.OrderBy != "name" || !sel.Desc {
		t.Fatalf("unexpected order by: %q desc=%v", sel.OrderBy, sel.Desc)
	}
	if sel.Limit == nil || *sel.Limit != 5 {
		t.Fatalf("unexpected limit: %v", sel.Limit)
	}
	where, ok := sel.Where.(*Binary)
	if !ok || where.Op != "AND" {
		t.Fatalf("expected top-level AND, got %+v", sel.Where)
	}
}

func TestParse_Insert(t *testing.T) {
	stmt, err := Parse("INSERT INTO users (id, name) VALUES (1, 'Alice')")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ins, ok := stmt.(*InsertStmt)
	if !ok {
		t.Fatalf("expected *InsertStmt, got %T", stmt)
	}
	if ins.Table != "users" || len(ins.Cols) != 2 || len(ins.Vals) != 2 {
		t.Fatalf("unexpected insert: %+v", ins)
	}
	lit, ok := ins.Vals[0].(*Literal)
	if !ok || lit.Val.Int != 1 {
		t.Fatalf("unexpected first value: %+v", ins.Vals[0])
	}
}

func TestParse_InsertColumnValueMismatch(t *testing.T) {
	_, err := Parse("INSERT INTO users (id, name) VALUES (1)")
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestParse_InsertPositionalNoColumnList(t *testing.T) {
	stmt, err := Parse("INSERT INTO users VALUES (1, 'Alice')")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ins, ok := stmt.(*InsertStmt)
	if !ok {
		t.Fatalf("expected *InsertStmt, got %T", stmt)
	}
	if ins.Table != "users" || ins.Cols != nil || len(ins.Vals) != 2 {
		t.Fatalf("unexpected insert: %+v", ins)
	}
	lit, ok := ins.Vals[0].(*Literal)
	if !ok || lit.Val.Int != 1 {
		t.Fatalf("unexpected first value: %+v", ins.Vals[0])
	}
}

func TestParse_UnrecognizedCharacterIsLexError(t *testing.T) {
	_, err := Parse("SELECT * FROM users WHERE id = 1 @ 2")
	if !errors.Is(err, ErrLex) {
		t.Fatalf("expected ErrLex, got %v", err)
	}
}

func TestParse_Update(t *testing.T) {
	stmt, err := Parse("UPDATE users SET name = 'Bob' WHERE id = 3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	upd, ok := stmt.(*UpdateStmt)
	if !ok {
		t.Fatalf("expected *UpdateStmt, got %T", stmt)
	}
	if upd.Table != "users" {
		t.Fatalf("unexpected table: %s", upd.Table)
	}
	v, ok := upd.Sets["name"].(*Literal)
	if !ok || v.Val.Text != "Bob" {
		t.Fatalf("unexpected set value: %+v", upd.Sets["name"])
	}
	where, ok := upd.Where.(*Binary)
	if !ok || where.Op != "=" {
		t.Fatalf("unexpected where: %+v", upd.Where)
	}
}

func TestParse_Delete(t *testing.T) {
	stmt, err := Parse("DELETE FROM users WHERE id = 3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	del, ok := stmt.(*DeleteStmt)
	if !ok {
		t.Fatalf("expected *DeleteStmt, got %T", stmt)
	}
	if del.Table != "users" || del.Where == nil {
		t.Fatalf("unexpected delete: %+v", del)
	}
}

func TestParse_CreateTable(t *testing.T) {
	stmt, err := Parse("CREATE TABLE users (id INT PRIMARY KEY, name TEXT)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ct, ok := stmt.(*CreateTableStmt)
	if !ok {
		t.Fatalf("expected *CreateTableStmt, got %T", stmt)
	}
	if ct.Table != "users" || len(ct.Cols) != 2 {
		t.Fatalf("unexpected create table: %+v", ct)
	}
	if ct.Cols[0].Name != "id" || ct.Cols[0].Type != storage.ColInt {
		t.Fatalf("unexpected first column: %+v", ct.Cols[0])
	}
	if ct.Cols[1].Name != "name" || ct.Cols[1].Type != storage.ColText {
		t.Fatalf("unexpected second column: %+v", ct.Cols[1])
	}
}

func TestParse_DropTable(t *testing.T) {
	stmt, err := Parse("DROP TABLE users")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	dt, ok := stmt.(*DropTableStmt)
	if !ok || dt.Table != "users" {
		t.Fatalf("unexpected drop table: %+v", stmt)
	}
}

func TestParse_TrailingInputIsError(t *testing.T) {
	_, err := Parse("SELECT * FROM users EXTRA")
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestParse_MissingStatementIsError(t *testing.T) {
	_, err := Parse("")
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestParse_ParenthesizedExpression(t *testing.T) {
	stmt, err := Parse("SELECT * FROM users WHERE (id = 1 OR id = 2) AND id != 3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sel := stmt.(*SelectStmt)
	top, ok := sel.Where.(*Binary)
	if !ok || top.Op != "AND" {
		t.Fatalf("expected top-level AND, got %+v", sel.Where)
	}
	left, ok := top.Left.(*Binary)
	if !ok || left.Op != "OR" {
		t.Fatalf("expected parenthesized OR on the left, got %+v", top.Left)
	}
}
