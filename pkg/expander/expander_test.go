package expander

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/gcpp/pkg/macro"
	"github.com/xplshn/gcpp/pkg/token"
)

func ident(v string) token.Token { return token.Token{Type: token.Identifier, Value: v} }
func num(v string) token.Token   { return token.Token{Type: token.Number, Value: v} }
func punc(v string) token.Token  { return token.Token{Type: token.Punctuator, Value: v} }
func ws() token.Token            { return token.Token{Type: token.Whitespace, Value: " "} }

func values(toks []token.Token) []string {
	var vs []string
	for _, tk := range toks {
		vs = append(vs, tk.Value)
	}
	return vs
}

func TestExpandObjectMacro(t *testing.T) {
	tbl := macro.NewTable()
	tbl.Define(macro.Macro{Name: "FOO", Kind: macro.Object, Body: []token.Token{num("42")}})

	out, err := ExpandTokens([]token.Token{ident("FOO")}, tbl)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"42"}; !cmp.Equal(values(out), want) {
		t.Fatalf("got %v, want %v", values(out), want)
	}
}

func TestExpandFunctionMacro(t *testing.T) {
	tbl := macro.NewTable()
	tbl.Define(macro.Macro{
		Name: "ADD", Kind: macro.Function, Params: []string{"a", "b"},
		Body: []token.Token{ident("a"), punc("+"), ident("b")},
	})

	in := []token.Token{ident("ADD"), punc("("), num("1"), punc(","), num("2"), punc(")")}
	out, err := ExpandTokens(in, tbl)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"1", "+", "2"}; !cmp.Equal(values(out), want) {
		t.Fatalf("got %v, want %v", values(out), want)
	}
}

func TestFunctionMacroArityMismatch(t *testing.T) {
	tbl := macro.NewTable()
	tbl.Define(macro.Macro{Name: "ADD", Kind: macro.Function, Params: []string{"a", "b"}, Body: nil})

	in := []token.Token{ident("ADD"), punc("("), num("1"), punc(")")}
	if _, err := ExpandTokens(in, tbl); err == nil {
		t.Fatal("expected a 'too few args' error")
	}
}

func TestFunctionLikeNameWithoutCallPassesThrough(t *testing.T) {
	tbl := macro.NewTable()
	tbl.Define(macro.Macro{Name: "ADD", Kind: macro.Function, Params: []string{"a"}, Body: []token.Token{num("0")}})

	in := []token.Token{ident("ADD"), punc(";")}
	out, err := ExpandTokens(in, tbl)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"ADD", ";"}; !cmp.Equal(values(out), want) {
		t.Fatalf("got %v, want %v", values(out), want)
	}
}

func TestFunctionMacroCallAcrossLineBoundary(t *testing.T) {
	tbl := macro.NewTable()
	tbl.Define(macro.Macro{Name: "ADD", Kind: macro.Function, Params: []string{"a", "b"},
		Body: []token.Token{ident("a"), punc("+"), ident("b")}})

	nl := token.Token{Type: token.Whitespace, Value: " ", HasNewLine: true}
	in := []token.Token{ident("ADD"), nl, punc("("), num("1"), punc(","), num("2"), punc(")")}
	out, err := ExpandTokens(in, tbl)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"1", "+", "2"}; !cmp.Equal(values(out), want) {
		t.Fatalf("got %v, want %v", values(out), want)
	}
}

func TestSelfReferentialMacroDoesNotRecurse(t *testing.T) {
	tbl := macro.NewTable()
	tbl.Define(macro.Macro{Name: "X", Kind: macro.Object, Body: []token.Token{ident("X"), punc("+"), num("1")}})

	out, err := ExpandTokens([]token.Token{ident("X")}, tbl)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"X", "+", "1"}; !cmp.Equal(values(out), want) {
		t.Fatalf("got %v, want %v (self-reference must not recurse)", values(out), want)
	}
}

func TestVariadicMacro(t *testing.T) {
	tbl := macro.NewTable()
	tbl.Define(macro.Macro{
		Name: "LOG", Kind: macro.Function, Params: []string{"fmt", "__VA_ARGS__"}, Variadic: true,
		Body: []token.Token{ident("fmt"), punc(","), ident("__VA_ARGS__")},
	})

	in := []token.Token{
		ident("LOG"), punc("("), token.Token{Type: token.String, Value: `"%d%d"`}, punc(","),
		num("1"), punc(","), num("2"), punc(")"),
	}
	out, err := ExpandTokens(in, tbl)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{`"%d%d"`, ",", "1", ",", "2"}
	if !cmp.Equal(values(out), want) {
		t.Fatalf("got %v, want %v", values(out), want)
	}
}

func TestArgumentPreScan(t *testing.T) {
	tbl := macro.NewTable()
	tbl.Define(macro.Macro{Name: "INNER", Kind: macro.Object, Body: []token.Token{num("5")}})
	tbl.Define(macro.Macro{Name: "ID", Kind: macro.Function, Params: []string{"x"}, Body: []token.Token{ident("x")}})

	in := []token.Token{ident("ID"), punc("("), ident("INNER"), punc(")")}
	out, err := ExpandTokens(in, tbl)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"5"}; !cmp.Equal(values(out), want) {
		t.Fatalf("argument should be pre-scanned before substitution: got %v, want %v", values(out), want)
	}
}

func TestNonMacroIdentifierPassesThrough(t *testing.T) {
	tbl := macro.NewTable()
	out, err := ExpandTokens([]token.Token{ident("plain")}, tbl)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"plain"}; !cmp.Equal(values(out), want) {
		t.Fatalf("got %v, want %v", values(out), want)
	}
}
