package sql

import "testing"

func lexAll(s string) []token {
	lx := newLexer(s)
	var toks []token
	for {
		tok := lx.nextToken()
		toks = append(toks, tok)
		if tok.Typ == tEOF {
			return toks
		}
	}
}

func TestLexer_IdentifiersAndKeywords(t *testing.T) {
	toks := lexAll("SELECT name FROM users")
	want := []struct {
		typ tokenType
		val string
	}{
		{tKeyword, "SELECT"},
		{tIdent, "name"},
		{tKeyword, "FROM"},
		{tIdent, "users"},
		{tEOF, ""},
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(want), toks)
	}
	for i, w := range want {
		if toks[i].Typ != w.typ || toks[i].Val != w.val {
			t.Fatalf("token %d = %+v, want {%v %q}", i, toks[i], w.typ, w.val)
		}
	}
}

func TestLexer_KeywordCaseInsensitive(t *testing.T) {
	toks := lexAll("select Id from Widgets")
	if toks[0].Typ != tKeyword || toks[0].Val != "SELECT" {
		t.Fatalf("expected lowercase 'select' to lex as keyword SELECT, got %+v", toks[0])
	}
	if toks[1].Typ != tIdent || toks[1].Val != "Id" {
		t.Fatalf("expected identifier case to be preserved, got %+v", toks[1])
	}
}

func TestLexer_Numbers(t *testing.T) {
	toks := lexAll("42 007")
	if toks[0].Typ != tNumber || toks[0].Val != "42" {
		t.Fatalf("unexpected token: %+v", toks[0])
	}
	if toks[1].Typ != tNumber || toks[1].Val != "007" {
		t.Fatalf("unexpected token: %+v", toks[1])
	}
}

func TestLexer_StringLiteralWithEscapedQuote(t *testing.T) {
	toks := lexAll("'it''s here'")
	if toks[0].Typ != tString || toks[0].Val != "it's here" {
		t.Fatalf("unexpected token: %+v", toks[0])
	}
}

func TestLexer_Operators(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"=", "="},
		{"!=", "!="},
		{"<", "<"},
		{"<=", "<="},
		{">", ">"},
		{">=", ">="},
		{"<>", "<>"},
	}
	for _, c := range cases {
		toks := lexAll(c.src)
		if toks[0].Typ != tSymbol || toks[0].Val != c.want {
			t.Fatalf("lexing %q: got %+v, want symbol %q", c.src, toks[0], c.want)
		}
	}
}

func TestLexer_SkipsLineComments(t *testing.T) {
	toks := lexAll("SELECT 1 -- trailing comment\nFROM t")
	var kinds []string
	for _, tok := range toks {
		if tok.Typ != tEOF {
			kinds = append(kinds, tok.Val)
		}
	}
	want := []string{"SELECT", "1", "FROM", "t"}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("got %v, want %v", kinds, want)
		}
	}
}

func TestLexer_UnrecognizedCharacterIsInvalid(t *testing.T) {
	toks := lexAll("a @ b")
	if toks[1].Typ != tInvalid || toks[1].Val != "@" {
		t.Fatalf("expected invalid token for '@', got %+v", toks[1])
	}
}

func TestLexer_Punctuation(t *testing.T) {
	toks := lexAll("(a, b*)")
	var vals []string
	for _, tok := range toks {
		if tok.Typ != tEOF {
			vals = append(vals, tok.Val)
		}
	}
	want := []string{"(", "a", ",", "b", "*", ")"}
	if len(vals) != len(want) {
		t.Fatalf("got %v, want %v", vals, want)
	}
	for i := range want {
		if vals[i] != want[i] {
			t.Fatalf("got %v, want %v", vals, want)
		}
	}
}
