package lexer

import (
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/xplshn/gcpp/pkg/token"
)

func lexAll(t *testing.T, src string) []token.Token {
	t.Helper()
	tok := New("test.cc", []rune(src))
	var out []token.Token
	for {
		tk, err := tok.Produce()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected lex error: %v", err)
		}
		out = append(out, tk)
	}
}

func values(toks []token.Token) []string {
	var vs []string
	for _, tk := range toks {
		vs = append(vs, tk.Value)
	}
	return vs
}

func ignorePos() cmp.Option {
	return cmpopts.IgnoreFields(token.Token{}, "Pos")
}

func TestLexIdentifiersAndPunctuators(t *testing.T) {
	toks := lexAll(t, "foo->bar")
	want := []token.Token{
		{Type: token.Identifier, Value: "foo"},
		{Type: token.Punctuator, Value: "->"},
		{Type: token.Identifier, Value: "bar"},
	}
	if diff := cmp.Diff(want, toks, ignorePos()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestLexNumber(t *testing.T) {
	toks := lexAll(t, "3.14e-10f")
	if len(toks) != 1 || toks[0].Type != token.Number || toks[0].Value != "3.14e-10f" {
		t.Fatalf("got %v", toks)
	}
}

func TestLexCommentsCollapseToWhitespace(t *testing.T) {
	toks := lexAll(t, "a/* multi\nline */b")
	want := []string{"a", " ", "b"}
	if got := values(toks); !cmp.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if toks[1].Type != token.Whitespace || !toks[1].HasNewLine {
		t.Fatalf("comment-collapsed whitespace should carry HasNewLine: %+v", toks[1])
	}
}

func TestLexLineComment(t *testing.T) {
	toks := lexAll(t, "a // comment\nb")
	var types []token.Type
	for _, tk := range toks {
		types = append(types, tk.Type)
	}
	want := []token.Type{token.Identifier, token.Whitespace, token.Identifier}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestLineSplicing(t *testing.T) {
	toks := lexAll(t, "fo\\\no")
	if len(toks) != 1 || toks[0].Value != "foo" {
		t.Fatalf("expected spliced identifier \"foo\", got %v", toks)
	}
}

func TestCRLFNormalization(t *testing.T) {
	toks := lexAll(t, "a\r\nb")
	if len(toks) != 3 {
		t.Fatalf("expected 3 tokens (a, ws, b), got %d: %v", len(toks), toks)
	}
	if toks[1].Type != token.Whitespace || !toks[1].HasNewLine {
		t.Fatalf("CRLF should collapse to one newline-bearing whitespace token: %+v", toks[1])
	}
}

func TestStringLiteralWithEscape(t *testing.T) {
	toks := lexAll(t, `"a\nb"`)
	if len(toks) != 1 || toks[0].Type != token.String || toks[0].Value != `"a\nb"` {
		t.Fatalf("got %v", toks)
	}
}

func TestRawStringPreservesBackslashes(t *testing.T) {
	toks := lexAll(t, `R"(a\nb)"`)
	if len(toks) != 1 || toks[0].Type != token.String {
		t.Fatalf("got %v", toks)
	}
	want := `R"(a\nb)"`
	if toks[0].Value != want {
		t.Fatalf("raw string should preserve literal backslash: got %q, want %q", toks[0].Value, want)
	}
}

func TestRawStringCustomDelimiter(t *testing.T) {
	toks := lexAll(t, `R"XYZ(a)b)XYZ"`)
	if len(toks) != 1 || toks[0].Type != token.String {
		t.Fatalf("got %v", toks)
	}
	want := `R"XYZ(a)b)XYZ"`
	if toks[0].Value != want {
		t.Fatalf("got %q, want %q", toks[0].Value, want)
	}
}

func TestCharLiteral(t *testing.T) {
	toks := lexAll(t, `'\x41'`)
	if len(toks) != 1 || toks[0].Type != token.Character || toks[0].Value != `'\x41'` {
		t.Fatalf("got %v", toks)
	}
}

func TestUnterminatedCommentErrors(t *testing.T) {
	tok := New("test.cc", []rune("a /* never closed"))
	_, err := tok.Produce() // "a"
	if err != nil {
		t.Fatalf("unexpected error on first token: %v", err)
	}
	_, err = tok.Produce() // whitespace then the open comment
	if err == nil {
		t.Fatal("expected an unterminated-comment error")
	}
}

func TestUnknownByteBecomesOther(t *testing.T) {
	toks := lexAll(t, "@")
	if len(toks) != 1 || toks[0].Type != token.Other || toks[0].Value != "@" {
		t.Fatalf("got %v", toks)
	}
}
