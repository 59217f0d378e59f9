package stream

import (
	"io"
	"testing"

	"github.com/xplshn/gcpp/pkg/pos"
	"github.com/xplshn/gcpp/pkg/token"
)

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
func (s *sliceProducer) Position() pos.Position {
	if s.i < len(s.toks) {
		return s.toks[s.i].Pos
	}
	return pos.Position{}
}

func newStream(toks ...token.Token) *Stream {
	return New(&sliceProducer{toks: toks})
}

func TestNextAndUngetLIFO(t *testing.T) {
	s := newStream(
		token.Token{Type: token.Identifier, Value: "a"},
		token.Token{Type: token.Identifier, Value: "b"},
	)
	first, err := s.Next()
	if err != nil || first.Value != "a" {
		t.Fatalf("got %v, %v", first, err)
	}
	s.Unget(first)
	second, err := s.Next()
	if err != nil || second.Value != "a" {
		t.Fatalf("Unget should replay the same token first: got %v, %v", second, err)
	}
	third, err := s.Next()
	if err != nil || third.Value != "b" {
		t.Fatalf("got %v, %v", third, err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestMatchSucceedsAndFails(t *testing.T) {
	s := newStream(token.Token{Type: token.Punctuator, Value: "("})
	if _, ok, err := s.Match(token.Punctuator, ")"); err != nil || ok {
		t.Fatalf("mismatched Match should report false, not consume: ok=%v err=%v", ok, err)
	}
	tk, ok, err := s.Match(token.Punctuator, "(")
	if err != nil || !ok || tk.Value != "(" {
		t.Fatalf("got %v %v %v", tk, ok, err)
	}
}

func TestExpectPuncError(t *testing.T) {
	s := newStream(token.Token{Type: token.Identifier, Value: "x"})
	if _, err := s.ExpectPunc("("); err == nil {
		t.Fatal("expected an error")
	}
}

func TestSpaceRespectsNewlineFlag(t *testing.T) {
	s := newStream(token.Token{Type: token.Whitespace, Value: " ", HasNewLine: true})
	if _, ok, err := s.Space(false); err != nil || ok {
		t.Fatalf("a newline-bearing space should not be consumed when allowNewLine is false: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.Space(true); err != nil || !ok {
		t.Fatalf("got ok=%v err=%v", ok, err)
	}
}
