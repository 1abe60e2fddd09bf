package query

import "testing"

func TestLexerBasic(t *testing.T) {
	toks := allTokens("(tag:nature | tag:landscape) -meta.year=2023")
	want := []Kind{LPAREN, CLAUSE, PIPE, CLAUSE, RPAREN, MINUS, CLAUSE, EOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: got %s, want %s", i, toks[i].Kind, k)
		}
	}
	if toks[1].Text != "tag:nature" {
		t.Errorf("token 1 text = %q", toks[1].Text)
	}
	if toks[6].Text != "meta.year=2023" {
		t.Errorf("token 6 text = %q", toks[6].Text)
	}
}

func TestLexerEmpty(t *testing.T) {
	toks := allTokens("   ")
	if len(toks) != 1 || toks[0].Kind != EOF {
		t.Fatalf("expected single EOF token, got %v", toks)
	}
}

func TestLexerOffsets(t *testing.T) {
	toks := allTokens("type:VAULT tag:x")
	if toks[0].Offset != 0 {
		t.Errorf("offset 0 = %d", toks[0].Offset)
	}
	if toks[1].Offset != 11 {
		t.Errorf("offset 1 = %d, want 11", toks[1].Offset)
	}
}

func allTokens(s string) []Token {
	l := NewLexer(s)
	var out []Token
	for {
		tok := l.Next()
		out = append(out, tok)
		if tok.Kind == EOF {
			return out
		}
	}
}
