// Package stream implements the single TokenStream abstraction every
// pipeline layer is built from (spec.md §4.1). Per the design notes in
// spec.md §9, this is modeled as a capability interface — produce,
// report-end, report-position — plus one concrete pushback wrapper
// composed by delegation, rather than a class hierarchy with virtual
// hooks. The pushback buffer lives on the wrapper, never on the
// producer.
package stream

import (
	"io"

	"github.com/xplshn/gcpp/pkg/pos"
	"github.com/xplshn/gcpp/pkg/token"
	"github.com/xplshn/gcpp/pkg/util"
)

// Producer is the capability set a token source must implement: pull
// one token, report whether it's exhausted, and report the position of
// whatever it would produce next. The tokenizer, the directive parser,
// and the macro expander all implement Producer so that each can sit
// underneath a Stream and be composed uniformly.
type Producer interface {
	// Produce returns the next token, io.EOF when exhausted, or a
	// *util.ParseError on failure.
	Produce() (token.Token, error)
	Finished() bool
	Position() pos.Position
}

// Stream is the uniform, matcher-equipped wrapper every higher layer
// consumes. It holds a LIFO pushback buffer that is always drained
// before the underlying Producer is called again, so a caller can
// unget arbitrarily far with cheap rollback.
type Stream struct {
	producer Producer
	pushback []token.Token
}

// New wraps a Producer in a Stream.
func New(p Producer) *Stream {
	return &Stream{producer: p}
}

// Next returns the next token: from the pushback buffer if non-empty,
// otherwise from the underlying producer. Returns io.EOF at end of
// input.
func (s *Stream) Next() (token.Token, error) {
	if n := len(s.pushback); n > 0 {
		t := s.pushback[n-1]
		s.pushback = s.pushback[:n-1]
		return t, nil
	}
	return s.producer.Produce()
}

// Unget places t at the head of the pushback buffer; a subsequent Next
// returns it before consulting the producer again. Multiple ungets
// stack LIFO, so the most recently ungotten token comes back first.
func (s *Stream) Unget(t token.Token) {
	s.pushback = append(s.pushback, t)
}

// Finished reports end of stream: pushback empty and producer
// exhausted.
func (s *Stream) Finished() bool {
	return len(s.pushback) == 0 && s.producer.Finished()
}

// Position is the source position of whatever Next would return.
func (s *Stream) Position() pos.Position {
	if n := len(s.pushback); n > 0 {
		return s.pushback[n-1].Pos
	}
	return s.producer.Position()
}

// Match consumes and returns the next token if it has the given kind
// and literal text; otherwise it ungets what it peeked and reports no
// match. End of input is reported as no match, not as an error.
func (s *Stream) Match(typ token.Type, value string) (token.Token, bool, error) {
	t, err := s.Next()
	if err == io.EOF {
		return token.Token{}, false, nil
	}
	if err != nil {
		return token.Token{}, false, err
	}
	if t.Is(typ, value) {
		return t, true, nil
	}
	s.Unget(t)
	return token.Token{}, false, nil
}

// MatchPunc is the Punctuator shortcut for Match.
func (s *Stream) MatchPunc(p string) (token.Token, bool, error) {
	return s.Match(token.Punctuator, p)
}

// MatchID is the Identifier shortcut for Match.
func (s *Stream) MatchID(name string) (token.Token, bool, error) {
	return s.Match(token.Identifier, name)
}

// ExpectPunc is MatchPunc but raises a *util.ParseError on mismatch.
func (s *Stream) ExpectPunc(p string) (token.Token, error) {
	t, ok, err := s.MatchPunc(p)
	if err != nil {
		return token.Token{}, err
	}
	if !ok {
		return token.Token{}, util.NewError(s.Position(), "expected '%s'", p)
	}
	return t, nil
}

// ExpectID is MatchID but raises a *util.ParseError on mismatch.
func (s *Stream) ExpectID(name string) (token.Token, error) {
	t, ok, err := s.MatchID(name)
	if err != nil {
		return token.Token{}, err
	}
	if !ok {
		return token.Token{}, util.NewError(s.Position(), "expected '%s'", name)
	}
	return t, nil
}

// ExpectAnyID consumes and returns the next token if it is any
// identifier, else raises a *util.ParseError.
func (s *Stream) ExpectAnyID() (token.Token, error) {
	t, err := s.Next()
	if err != nil {
		return token.Token{}, err
	}
	if t.Type != token.Identifier {
		s.Unget(t)
		return token.Token{}, util.NewError(s.Position(), "expected an identifier")
	}
	return t, nil
}

// ExpectNewLine consumes a whitespace token bearing a logical newline,
// or end of input; raises a *util.ParseError otherwise.
func (s *Stream) ExpectNewLine() error {
	t, err := s.Next()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	if t.Type == token.Whitespace && t.HasNewLine {
		return nil
	}
	s.Unget(t)
	return util.NewError(s.Position(), "expected a new line")
}

// Space consumes one whitespace token if present. When allowNewLine is
// false, a whitespace token that carries a logical newline is left in
// the pushback buffer instead of being consumed. Reports whether a
// (consumed) whitespace token was found.
func (s *Stream) Space(allowNewLine bool) (token.Token, bool, error) {
	t, err := s.Next()
	if err == io.EOF {
		return token.Token{}, false, nil
	}
	if err != nil {
		return token.Token{}, false, err
	}
	if t.Type != token.Whitespace {
		s.Unget(t)
		return token.Token{}, false, nil
	}
	if t.HasNewLine && !allowNewLine {
		s.Unget(t)
		return token.Token{}, false, nil
	}
	return t, true, nil
}
