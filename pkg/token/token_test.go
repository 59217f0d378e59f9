package token

import "testing"

func TestIs(t *testing.T) {
	tok := Token{Type: Identifier, Value: "foo"}
	if !tok.Is(Identifier, "foo") {
		t.Fatal("expected match")
	}
	if tok.Is(Identifier, "bar") {
		t.Fatal("expected no match on different value")
	}
	if tok.Is(Punctuator, "foo") {
		t.Fatal("expected no match on different type")
	}
}

func TestPunctuatorsLongestMatchFirst(t *testing.T) {
	// "->*" must be tried before "->" which must be tried before nothing
	// shorter exists that could shadow it.
	seenArrowStar, seenArrow := -1, -1
	for i, p := range Punctuators {
		switch p {
		case "->*":
			seenArrowStar = i
		case "->":
			seenArrow = i
		}
	}
	if seenArrowStar == -1 || seenArrow == -1 {
		t.Fatal("expected both -> and ->* in table")
	}
	if seenArrowStar > seenArrow {
		t.Fatal("->* must be tried before ->")
	}
}

func TestAlternativeTokens(t *testing.T) {
	// Exactly the eight spellings spec.md §6 lists and
	// original_source/condition_parser.cpp implements — no more.
	want := map[string]string{
		"and": "&&", "or": "||", "not": "!", "not_eq": "!=", "eq": "==",
		"bitand": "&", "bitor": "|", "xor": "^",
	}
	if len(AlternativeTokens) != len(want) {
		t.Fatalf("got %d alternative tokens, want %d", len(AlternativeTokens), len(want))
	}
	for name, sym := range want {
		if AlternativeTokens[name] != sym {
			t.Errorf("AlternativeTokens[%q] = %q, want %q", name, AlternativeTokens[name], sym)
		}
	}
	for _, bogus := range []string{"compl", "and_eq", "or_eq", "xor_eq"} {
		if _, ok := AlternativeTokens[bogus]; ok {
			t.Errorf("%q is not one of the spec's alternative-token spellings", bogus)
		}
	}
}
