package lexer

import (
	"testing"

	"buildlang/internal/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func assertKinds(t *testing.T, got []token.Kind, want []token.Kind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(got), got)
	}
	for i, exp := range want {
		if got[i] != exp {
			t.Errorf("token[%d]: expected %s, got %s", i, exp, got[i])
		}
	}
}

func TestTokenizeSimpleAssignment(t *testing.T) {
	source := "x = 1 + 2\n"
	l := New(source, "test.star", "trace-1")
	tokens, diags := l.Tokenize()

	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	assertKinds(t, kinds(tokens), []token.Kind{
		token.IDENTIFIER, token.ASSIGN, token.INTEGER, token.PLUS, token.INTEGER,
		token.NEWLINE, token.EOF,
	})
}

func TestTokenizeKeywords(t *testing.T) {
	source := "and or not if elif else for in def return break continue pass lambda load"
	l := New(source, "test.star", "")
	tokens, diags := l.Tokenize()

	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	assertKinds(t, kinds(tokens), []token.Kind{
		token.AND, token.OR, token.NOT, token.IF, token.ELIF, token.ELSE,
		token.FOR, token.IN, token.DEF, token.RETURN, token.BREAK,
		token.CONTINUE, token.PASS, token.LAMBDA, token.LOAD,
		token.EOF,
	})
}

func TestTokenizeOperatorsAndAugmentedAssign(t *testing.T) {
	source := "+ - * / // % & | ^ ~ << >> == != < <= > >= ** -> += -= *= /= //= %= &= |= ^= <<= >>="
	l := New(source, "test.star", "")
	tokens, diags := l.Tokenize()

	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	assertKinds(t, kinds(tokens), []token.Kind{
		token.PLUS, token.MINUS, token.STAR, token.SLASH, token.SLASHSLASH, token.PERCENT,
		token.AMP, token.PIPE, token.CARET, token.TILDE, token.LSHIFT, token.RSHIFT,
		token.EQ, token.NEQ, token.LT, token.LE, token.GT, token.GE,
		token.STARSTAR, token.ARROW,
		token.PLUS_ASSIGN, token.MINUS_ASSIGN, token.STAR_ASSIGN, token.SLASH_ASSIGN,
		token.SLASHSLASH_ASSIGN, token.PERCENT_ASSIGN, token.AMP_ASSIGN, token.PIPE_ASSIGN,
		token.CARET_ASSIGN, token.LSHIFT_ASSIGN, token.RSHIFT_ASSIGN,
		token.EOF,
	})
}

func TestTokenizeIndentation(t *testing.T) {
	source := "def f():\n    x = 1\n    if x:\n        pass\n    return x\n"
	l := New(source, "test.star", "")
	tokens, diags := l.Tokenize()

	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	assertKinds(t, kinds(tokens), []token.Kind{
		token.DEF, token.IDENTIFIER, token.LPAREN, token.RPAREN, token.COLON, token.NEWLINE,
		token.INDENT,
		token.IDENTIFIER, token.ASSIGN, token.INTEGER, token.NEWLINE,
		token.IF, token.IDENTIFIER, token.COLON, token.NEWLINE,
		token.INDENT,
		token.PASS, token.NEWLINE,
		token.DEDENT,
		token.RETURN, token.IDENTIFIER, token.NEWLINE,
		token.DEDENT,
		token.EOF,
	})
}

func TestTokenizeImplicitLineJoin(t *testing.T) {
	source := "x = (\n    1,\n    2,\n)\n"
	l := New(source, "test.star", "")
	tokens, diags := l.Tokenize()

	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	assertKinds(t, kinds(tokens), []token.Kind{
		token.IDENTIFIER, token.ASSIGN, token.LPAREN,
		token.INTEGER, token.COMMA,
		token.INTEGER, token.COMMA,
		token.RPAREN, token.NEWLINE, token.EOF,
	})
}

func TestTokenizeString(t *testing.T) {
	source := `"hello" 'line1\nline2'`
	l := New(source, "test.star", "")
	tokens, diags := l.Tokenize()

	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	if tokens[0].Kind != token.STRING || tokens[0].Str != "hello" {
		t.Errorf("expected STRING 'hello', got %s %q", tokens[0].Kind, tokens[0].Str)
	}
	if tokens[1].Kind != token.STRING || tokens[1].Str != "line1\nline2" {
		t.Errorf("expected STRING with newline, got %s %q", tokens[1].Kind, tokens[1].Str)
	}
}

func TestTokenizeBigIntAndFloat(t *testing.T) {
	source := "123456789012345678901234567890 3.14 2.5e3"
	l := New(source, "test.star", "")
	tokens, diags := l.Tokenize()

	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	if tokens[0].Kind != token.INTEGER || tokens[0].Int.String() != "123456789012345678901234567890" {
		t.Errorf("expected big INTEGER, got %s %v", tokens[0].Kind, tokens[0].Int)
	}
	if tokens[1].Kind != token.FLOAT || tokens[1].Float != 3.14 {
		t.Errorf("expected FLOAT 3.14, got %s %v", tokens[1].Kind, tokens[1].Float)
	}
	if tokens[2].Kind != token.FLOAT || tokens[2].Float != 2500 {
		t.Errorf("expected FLOAT 2500, got %s %v", tokens[2].Kind, tokens[2].Float)
	}
}

func TestTokenizeFStringIdentifierInterpolation(t *testing.T) {
	source := `f"hello {name}!"`
	l := New(source, "test.star", "")
	tokens, diags := l.Tokenize()

	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if tokens[0].Kind != token.FSTRING {
		t.Fatalf("expected FSTRING, got %s", tokens[0].Kind)
	}
	frags := tokens[0].FString.Fragments
	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(frags))
	}
	if frags[0].IsInterp || frags[0].Literal != "hello " {
		t.Errorf("fragment[0]: expected literal 'hello ', got %+v", frags[0])
	}
	if !frags[1].IsInterp || len(frags[1].Expr) != 1 || frags[1].Expr[0].Kind != token.IDENTIFIER {
		t.Errorf("fragment[1]: expected identifier interpolation, got %+v", frags[1])
	}
	if frags[2].IsInterp || frags[2].Literal != "!" {
		t.Errorf("fragment[2]: expected literal '!', got %+v", frags[2])
	}
}

func TestTokenizeFStringComplexInterpolation(t *testing.T) {
	source := `f"{a + b}"`
	l := New(source, "test.star", "")
	tokens, diags := l.Tokenize()

	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	frags := tokens[0].FString.Fragments
	if len(frags) != 1 || !frags[0].IsInterp {
		t.Fatalf("expected a single interpolation fragment, got %+v", frags)
	}
	assertKinds(t, kinds(frags[0].Expr), []token.Kind{token.IDENTIFIER, token.PLUS, token.IDENTIFIER})
}

func TestTokenizeEmptyInterpolationIsMalformed(t *testing.T) {
	source := `f"{}"`
	l := New(source, "test.star", "")
	_, diags := l.Tokenize()

	if len(diags) == 0 {
		t.Fatal("expected a diagnostic for an empty f-string interpolation")
	}
}

func TestTokenizeComment(t *testing.T) {
	source := "x # this is a comment\ny\n"
	l := New(source, "test.star", "")
	tokens, _ := l.Tokenize()

	assertKinds(t, kinds(tokens), []token.Kind{
		token.IDENTIFIER, token.NEWLINE, token.IDENTIFIER, token.NEWLINE, token.EOF,
	})
}

func TestTokenizePositions(t *testing.T) {
	source := "x = 1"
	l := New(source, "test.star", "")
	tokens, _ := l.Tokenize()

	if tokens[0].Span.Start.Line != 1 || tokens[0].Span.Start.Column != 1 {
		t.Errorf("'x' position: expected 1:1, got %d:%d", tokens[0].Span.Start.Line, tokens[0].Span.Start.Column)
	}
	if tokens[2].Span.Start.Line != 1 || tokens[2].Span.Start.Column != 5 {
		t.Errorf("'1' position: expected 1:5, got %d:%d", tokens[2].Span.Start.Line, tokens[2].Span.Start.Column)
	}
}
