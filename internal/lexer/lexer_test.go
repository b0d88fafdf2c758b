package lexer

import (
	"noxy-vm/internal/token"
	"testing"
)

func TestNextToken(t *testing.T) {
	input := `var five = 5;
var ten = 10.5;

fun add(x, y) {
  return x + y;
}

// a comment
/* a block
   comment */
if (five < ten) {
  print "less";
} else {
  print "more";
}

five == five;
five != ten;
five += 1;
five++;
"a string"
`

	tests := []struct {
		kind   token.Kind
		lexeme string
	}{
		{token.VAR, "var"},
		{token.IDENTIFIER, "five"},
		{token.EQUAL, "="},
		{token.NUMBER, "5"},
		{token.SEMICOLON, ";"},
		{token.VAR, "var"},
		{token.IDENTIFIER, "ten"},
		{token.EQUAL, "="},
		{token.NUMBER, "10.5"},
		{token.SEMICOLON, ";"},
		{token.FUN, "fun"},
		{token.IDENTIFIER, "add"},
		{token.LPAREN, "("},
		{token.IDENTIFIER, "x"},
		{token.COMMA, ","},
		{token.IDENTIFIER, "y"},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.RETURN, "return"},
		{token.IDENTIFIER, "x"},
		{token.PLUS, "+"},
		{token.IDENTIFIER, "y"},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},
		{token.IF, "if"},
		{token.LPAREN, "("},
		{token.IDENTIFIER, "five"},
		{token.LESS, "<"},
		{token.IDENTIFIER, "ten"},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.PRINT, "print"},
		{token.STRING, `"less"`},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},
		{token.ELSE, "else"},
		{token.LBRACE, "{"},
		{token.PRINT, "print"},
		{token.STRING, `"more"`},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},
		{token.IDENTIFIER, "five"},
		{token.EQUAL_EQUAL, "=="},
		{token.IDENTIFIER, "five"},
		{token.SEMICOLON, ";"},
		{token.IDENTIFIER, "five"},
		{token.BANG_EQUAL, "!="},
		{token.IDENTIFIER, "ten"},
		{token.SEMICOLON, ";"},
		{token.IDENTIFIER, "five"},
		{token.PLUS_EQUAL, "+="},
		{token.NUMBER, "1"},
		{token.SEMICOLON, ";"},
		{token.IDENTIFIER, "five"},
		{token.PLUS_PLUS, "++"},
		{token.SEMICOLON, ";"},
		{token.STRING, `"a string"`},
		{token.EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Kind != tt.kind {
			t.Fatalf("test[%d] - wrong kind. expected=%s, got=%s (lexeme %q)", i, tt.kind, tok.Kind, tok.Lexeme)
		}
		if tok.Lexeme != tt.lexeme {
			t.Fatalf("test[%d] - wrong lexeme. expected=%q, got=%q", i, tt.lexeme, tok.Lexeme)
		}
	}
}

func TestUnterminatedString(t *testing.T) {
	l := New(`"unterminated`)
	tok := l.NextToken()
	if tok.Kind != token.ERROR {
		t.Fatalf("expected ERROR token, got %s", tok.Kind)
	}
}

func TestUnterminatedBlockComment(t *testing.T) {
	l := New(`/* never closed`)
	tok := l.NextToken()
	if tok.Kind != token.ERROR {
		t.Fatalf("expected ERROR token, got %s", tok.Kind)
	}
}

func TestLineCounting(t *testing.T) {
	l := New("var a = 1;\nvar b = 2;\n")
	for {
		tok := l.NextToken()
		if tok.Kind == token.EOF {
			break
		}
		if tok.Lexeme == "b" && tok.Line != 2 {
			t.Fatalf("expected line 2 for 'b', got %d", tok.Line)
		}
	}
}
