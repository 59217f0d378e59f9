package condition

import (
	"io"
	"testing"

	"github.com/xplshn/gcpp/pkg/pos"
	"github.com/xplshn/gcpp/pkg/stream"
	"github.com/xplshn/gcpp/pkg/token"
)

// sliceProducer is a minimal stream.Producer over a fixed token slice,
// mirroring pkg/expander's NewSliceProducer without importing it (this
// package must stay independent of pkg/expander per its doc comment).
type sliceProducer struct {
	toks []token.Token
	i    int
}

func (s *sliceProducer) Produce() (token.Token, error) {
	if s.i >= len(s.toks) {
		return token.Token{}, io.EOF
	}
	t := s.toks[s.i]
	s.i++
	return t, nil
}
func (s *sliceProducer) Finished() bool { return s.i >= len(s.toks) }
func (s *sliceProducer) Position() (p pos.Position) {
	if s.i < len(s.toks) {
		return s.toks[s.i].Pos
	}
	return p
}

func evalSrc(t *testing.T, toks []token.Token) (Value, error) {
	t.Helper()
	return Eval(stream.New(&sliceProducer{toks: toks}), true)
}

func num(v string) token.Token  { return token.Token{Type: token.Number, Value: v} }
func punc(v string) token.Token { return token.Token{Type: token.Punctuator, Value: v} }
func ident(v string) token.Token { return token.Token{Type: token.Identifier, Value: v} }
func char(v string) token.Token { return token.Token{Type: token.Character, Value: v} }

func TestSimpleArithmetic(t *testing.T) {
	// 1 + 2 * 3 == 7
	toks := []token.Token{num("1"), punc("+"), num("2"), punc("*"), num("3")}
	v, err := evalSrc(t, toks)
	if err != nil {
		t.Fatal(err)
	}
	if v.Int64() != 7 {
		t.Fatalf("got %d, want 7", v.Int64())
	}
}

func TestComparison(t *testing.T) {
	toks := []token.Token{num("3"), punc("<"), num("5")}
	v, err := evalSrc(t, toks)
	if err != nil {
		t.Fatal(err)
	}
	if v.IsZero() {
		t.Fatal("3 < 5 should be true (non-zero)")
	}
}

func TestTernary(t *testing.T) {
	toks := []token.Token{num("1"), punc("?"), num("10"), punc(":"), num("20")}
	v, err := evalSrc(t, toks)
	if err != nil {
		t.Fatal(err)
	}
	if v.Int64() != 10 {
		t.Fatalf("got %d, want 10", v.Int64())
	}
}

func TestCommaOperatorKeepsLastValue(t *testing.T) {
	toks := []token.Token{num("1"), punc(","), num("2"), punc(","), num("3")}
	v, err := evalSrc(t, toks)
	if err != nil {
		t.Fatal(err)
	}
	if v.Int64() != 3 {
		t.Fatalf("got %d, want 3", v.Int64())
	}
}

func TestAlternativeTokenOperators(t *testing.T) {
	toks := []token.Token{num("1"), ident("and"), num("1")}
	v, err := evalSrc(t, toks)
	if err != nil {
		t.Fatal(err)
	}
	if v.IsZero() {
		t.Fatal("1 and 1 should be true")
	}
}

func TestEqAlternativeToken(t *testing.T) {
	toks := []token.Token{num("1"), ident("eq"), num("1")}
	v, err := evalSrc(t, toks)
	if err != nil {
		t.Fatal(err)
	}
	if v.IsZero() {
		t.Fatal("1 eq 1 should be true (eq stands for ==)")
	}
}

func TestAlternativeTokensDisabledByFlag(t *testing.T) {
	// With altTokens off, a bare "and" identifier between two operands
	// leaves a trailing token unconsumed (the primary parser only
	// yields "1"), which is a parse error, not a silent false.
	toks := []token.Token{num("1"), ident("and"), num("1")}
	if _, err := Eval(stream.New(&sliceProducer{toks: toks}), false); err == nil {
		t.Fatal("expected a trailing-token error when alt-tokens are disabled")
	}
}

func TestDivisionByZeroErrors(t *testing.T) {
	toks := []token.Token{num("1"), punc("/"), num("0")}
	if _, err := evalSrc(t, toks); err == nil {
		t.Fatal("expected division-by-zero error")
	}
}

func TestFloatingPointRejected(t *testing.T) {
	toks := []token.Token{num("1.5")}
	if _, err := evalSrc(t, toks); err == nil {
		t.Fatal("expected a floating-point-constant error")
	}
}

func TestCharacterConstant(t *testing.T) {
	toks := []token.Token{char(`'A'`)}
	v, err := evalSrc(t, toks)
	if err != nil {
		t.Fatal(err)
	}
	if v.Int64() != 'A' {
		t.Fatalf("got %d, want %d", v.Int64(), int('A'))
	}
}

func TestUnexpectedTrailingTokenErrors(t *testing.T) {
	toks := []token.Token{num("1"), num("2")}
	if _, err := evalSrc(t, toks); err == nil {
		t.Fatal("expected a trailing-token error")
	}
}

func TestEmptyExpressionErrors(t *testing.T) {
	if _, err := evalSrc(t, nil); err == nil {
		t.Fatal("expected an empty-expression error")
	}
}

func TestUnsignedOverflowPromotion(t *testing.T) {
	// A hex literal above MaxInt64 must evaluate as unsigned.
	toks := []token.Token{num("0xFFFFFFFFFFFFFFFF")}
	v, err := evalSrc(t, toks)
	if err != nil {
		t.Fatal(err)
	}
	if v.Signed() {
		t.Fatal("value above MaxInt64 should be unsigned")
	}
}
