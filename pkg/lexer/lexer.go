// Package lexer implements the Tokenizer: the bottom of the pipeline,
// turning a raw rune stream into preprocessing tokens (spec.md §4.2).
// Structurally this is the teacher compiler's pkg/lexer/lexer.go
// (advance/peek/peekNext/match helpers, makeToken-by-start-position,
// decodeEscape/parseHexEscape escape handling) generalized from B's
// token set to C++ preprocessing tokens: line splicing, comments that
// collapse into a single reported Whitespace token, raw strings, and
// the 57-entry punctuator table replace B's keyword/operator lexing.
package lexer

import (
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xplshn/gcpp/pkg/pos"
	"github.com/xplshn/gcpp/pkg/token"
	"github.com/xplshn/gcpp/pkg/util"
)

// Tokenizer implements stream.Producer over an in-memory rune buffer.
type Tokenizer struct {
	src  []rune
	file string

	i    int
	line int
	col  int
	off  int

	// hasReturn flip-flops CR/LF/CRLF into exactly one newline per
	// logical line end, following original_source/tokenizer.cpp.
	hasReturn bool

	// noSplice disables line splicing while lexing a raw string body,
	// per spec.md §4.2.
	noSplice bool
}

// New creates a Tokenizer over src, attributing positions to file.
func New(file string, src []rune) *Tokenizer {
	return &Tokenizer{src: src, file: file, line: 1, col: 0}
}

func (t *Tokenizer) position() pos.Position {
	return pos.Position{File: t.file, Line: t.line, Col: t.col, Offset: t.off}
}

// Position implements stream.Producer.
func (t *Tokenizer) Position() pos.Position { return t.position() }

// Finished implements stream.Producer.
func (t *Tokenizer) Finished() bool { return t.i >= len(t.src) }

func (t *Tokenizer) advanceRaw() rune {
	c := t.src[t.i]
	t.i++
	if n := utf8.RuneLen(c); n > 0 {
		t.off += n
	} else {
		t.off++
	}
	switch c {
	case '\r':
		t.hasReturn = true
		t.line++
		t.col = 0
	case '\n':
		if !t.hasReturn {
			t.line++
			t.col = 0
		}
		t.hasReturn = false
	default:
		t.hasReturn = false
		t.col++
	}
	return c
}

// skipSplices consumes any `\` immediately followed by CR, LF, or CRLF
// sitting at the cursor, so every other method sees a post-splice view
// of the input. Disabled inside raw string bodies.
func (t *Tokenizer) skipSplices() {
	if t.noSplice {
		return
	}
	for t.i+1 < len(t.src) && t.src[t.i] == '\\' {
		nc := t.src[t.i+1]
		if nc != '\n' && nc != '\r' {
			return
		}
		t.advanceRaw() // the backslash
		t.advanceRaw() // the CR or LF (advanceRaw's flip-flop folds a following LF in)
		if nc == '\r' && t.i < len(t.src) && t.src[t.i] == '\n' {
			t.advanceRaw()
		}
	}
}

func (t *Tokenizer) peek() rune {
	t.skipSplices()
	if t.i >= len(t.src) {
		return 0
	}
	return t.src[t.i]
}

// peekN looks n runes past the (post-splice) cursor. It does not itself
// resolve a splice embedded within the lookahead window — acceptable
// for the short fixed-width prefixes (u8, R) it's used for.
func (t *Tokenizer) peekN(n int) rune {
	t.skipSplices()
	idx := t.i + n
	if idx < 0 || idx >= len(t.src) {
		return 0
	}
	return t.src[idx]
}

func (t *Tokenizer) peekNext() rune { return t.peekN(1) }

func (t *Tokenizer) advance() rune {
	t.skipSplices()
	if t.i >= len(t.src) {
		return 0
	}
	return t.advanceRaw()
}

// hasLiteral reports whether s sits at the (post-splice) cursor,
// without consuming it.
func (t *Tokenizer) hasLiteral(s string) bool {
	t.skipSplices()
	rs := []rune(s)
	for i, r := range rs {
		if t.i+i >= len(t.src) || t.src[t.i+i] != r {
			return false
		}
	}
	return true
}

func isIdentStart(c rune) bool { return c == '_' || unicode.IsLetter(c) }
func isIdentCont(c rune) bool  { return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c) }
func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
func isOctalDigit(c rune) bool { return c >= '0' && c <= '7' }

// Produce implements stream.Producer: lex exactly one preprocessing
// token, or return io.EOF at end of input.
func (t *Tokenizer) Produce() (tok token.Token, err error) {
	defer util.Catch(&err)

	startPos := t.position()
	if consumed, hasNewLine := t.skipWhitespaceAndComments(); consumed {
		return token.Token{Type: token.Whitespace, Value: " ", Pos: startPos, HasNewLine: hasNewLine}, nil
	}
	if t.Finished() {
		return token.Token{}, io.EOF
	}

	startPos = t.position()
	c := t.peek()

	switch {
	case c == '.' && unicode.IsDigit(t.peekNext()), unicode.IsDigit(c):
		return t.lexNumber(startPos), nil
	case c == 'u' || c == 'U' || c == 'L' || c == 'R':
		return t.lexPrefixed(startPos), nil
	case c == '"':
		return t.lexString(startPos, "", false), nil
	case c == '\'':
		return t.lexChar(startPos, ""), nil
	case isIdentStart(c):
		return t.lexIdentifier(startPos), nil
	default:
		return t.lexPunctuatorOrOther(startPos), nil
	}
}

func (t *Tokenizer) skipWhitespaceAndComments() (consumed, hasNewLine bool) {
	for {
		c := t.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\v' || c == '\f':
			t.advance()
			consumed = true
		case c == '\n' || c == '\r':
			t.advance()
			consumed, hasNewLine = true, true
		case c == '/' && t.peekNext() == '*':
			start := t.position()
			t.advance()
			t.advance()
			closed := false
			for !t.Finished() {
				if t.peek() == '\n' || t.peek() == '\r' {
					hasNewLine = true
				}
				if t.peek() == '*' && t.peekNext() == '/' {
					t.advance()
					t.advance()
					closed = true
					break
				}
				t.advance()
			}
			if !closed {
				util.Panic(start, "Unterminated comment")
			}
			consumed = true
		case c == '/' && t.peekNext() == '/':
			t.advance()
			t.advance()
			for !t.Finished() && t.peek() != '\n' && t.peek() != '\r' {
				t.advance()
			}
			consumed = true
		default:
			return
		}
	}
}

func (t *Tokenizer) lexNumber(startPos pos.Position) token.Token {
	var sb strings.Builder
	sb.WriteRune(t.advance())
	if sb.String() == "." {
		sb.WriteRune(t.advance())
	}
	for {
		c := t.peek()
		switch {
		case c == 'e' || c == 'E' || c == 'p' || c == 'P':
			sign := t.peekNext()
			sb.WriteRune(t.advance())
			if sign == '+' || sign == '-' {
				sb.WriteRune(t.advance())
			}
		case unicode.IsDigit(c) || isIdentStart(c) || c == '.' || c == '\'':
			sb.WriteRune(t.advance())
		default:
			return token.Token{Type: token.Number, Value: sb.String(), Pos: startPos}
		}
	}
}

// lexPrefixed handles the u/U/L/R lookahead branch of spec.md §4.2's
// dispatch: an optional "8" after "u", an optional "R" raw-string flag,
// then a decision between string, character, and plain identifier.
func (t *Tokenizer) lexPrefixed(startPos pos.Position) token.Token {
	n := 1
	isU8, isRaw := false, t.peek() == 'R'
	if t.peek() == 'u' && t.peekN(1) == '8' {
		n, isU8 = 2, true
	}
	if !isRaw && t.peekN(n) == 'R' {
		n, isRaw = n+1, true
	}

	switch t.peekN(n) {
	case '"':
		prefix := t.consumeRunes(n)
		return t.lexString(startPos, prefix, isRaw)
	case '\'':
		if isRaw || isU8 {
			util.Panic(startPos, "invalid character literal prefix")
		}
		prefix := t.consumeRunes(n)
		return t.lexChar(startPos, prefix)
	default:
		return t.lexIdentifier(startPos)
	}
}

func (t *Tokenizer) consumeRunes(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteRune(t.advance())
	}
	return sb.String()
}

func (t *Tokenizer) lexIdentifier(startPos pos.Position) token.Token {
	var sb strings.Builder
	for isIdentCont(t.peek()) {
		sb.WriteRune(t.advance())
	}
	return token.Token{Type: token.Identifier, Value: sb.String(), Pos: startPos}
}

func (t *Tokenizer) lexString(startPos pos.Position, prefix string, raw bool) token.Token {
	if raw {
		return t.lexRawString(startPos, prefix)
	}
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteRune(t.advance()) // opening quote
	for {
		if t.Finished() {
			util.Panic(startPos, "Unterminated string literal")
		}
		c := t.peek()
		switch {
		case c == '"':
			sb.WriteRune(t.advance())
			return token.Token{Type: token.String, Value: sb.String(), Pos: startPos}
		case c == '\n' || c == '\r':
			util.Panic(startPos, "Newline in string literal")
		case c == '\\':
			sb.WriteRune(t.advance())
			sb.WriteString(t.lexEscape(startPos))
		default:
			sb.WriteRune(t.advance())
		}
	}
}

func (t *Tokenizer) lexChar(startPos pos.Position, prefix string) token.Token {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteRune(t.advance()) // opening quote
	for {
		if t.Finished() {
			util.Panic(startPos, "Unterminated character literal")
		}
		c := t.peek()
		switch {
		case c == '\'':
			sb.WriteRune(t.advance())
			return token.Token{Type: token.Character, Value: sb.String(), Pos: startPos}
		case c == '\n' || c == '\r':
			util.Panic(startPos, "Newline in character literal")
		case c == '\\':
			sb.WriteRune(t.advance())
			sb.WriteString(t.lexEscape(startPos))
		default:
			sb.WriteRune(t.advance())
		}
	}
}

func (t *Tokenizer) lexEscape(startPos pos.Position) string {
	c := t.peek()
	switch {
	case strings.ContainsRune(`'"?\abfnrtv`, c):
		return string(t.advance())
	case c == 'u':
		return t.lexFixedHexEscape(startPos, 4)
	case c == 'U':
		return t.lexFixedHexEscape(startPos, 8)
	case c == 'x':
		return t.lexVariableHexEscape(startPos)
	case isOctalDigit(c):
		return t.lexOctalEscape()
	default:
		util.Panic(startPos, "invalid escape sequence '\\%c'", c)
		return ""
	}
}

func (t *Tokenizer) lexFixedHexEscape(startPos pos.Position, n int) string {
	var sb strings.Builder
	marker := t.advance() // 'u' or 'U'
	sb.WriteRune(marker)
	for i := 0; i < n; i++ {
		if !isHexDigit(t.peek()) {
			util.Panic(startPos, "\\%c escape requires %d hex digits", marker, n)
		}
		sb.WriteRune(t.advance())
	}
	return sb.String()
}

func (t *Tokenizer) lexVariableHexEscape(startPos pos.Position) string {
	var sb strings.Builder
	sb.WriteRune(t.advance()) // 'x'
	if !isHexDigit(t.peek()) {
		util.Panic(startPos, "\\x escape with no following hex digits")
	}
	for isHexDigit(t.peek()) {
		sb.WriteRune(t.advance())
	}
	return sb.String()
}

func (t *Tokenizer) lexOctalEscape() string {
	var sb strings.Builder
	for i := 0; i < 3 && isOctalDigit(t.peek()); i++ {
		sb.WriteRune(t.advance())
	}
	return sb.String()
}

func isInvalidDelimChar(c rune) bool {
	switch c {
	case 0, ' ', '(', ')', '\\', '\t', '\f', '\r', '\n':
		return true
	default:
		return false
	}
}

// lexRawString lexes the body of `R"dchars(...)dchars"`, with line
// splicing disabled for its duration (spec.md §4.2).
func (t *Tokenizer) lexRawString(startPos pos.Position, prefix string) token.Token {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteRune(t.advance()) // opening quote

	var delim strings.Builder
	for t.peek() != '(' {
		if isInvalidDelimChar(t.peek()) {
			util.Panic(startPos, "invalid raw string delimiter character")
		}
		delim.WriteRune(t.advance())
	}
	sb.WriteString(delim.String())
	sb.WriteRune(t.advance()) // '('

	t.noSplice = true
	defer func() { t.noSplice = false }()

	closeSeq := ")" + delim.String() + "\""
	for {
		if t.Finished() {
			util.Panic(startPos, "Unterminated raw string literal")
		}
		if t.peek() == ')' && t.hasLiteral(closeSeq) {
			for range []rune(closeSeq) {
				sb.WriteRune(t.advance())
			}
			return token.Token{Type: token.String, Value: sb.String(), Pos: startPos}
		}
		sb.WriteRune(t.advance())
	}
}

func (t *Tokenizer) lexPunctuatorOrOther(startPos pos.Position) token.Token {
	for _, p := range token.Punctuators {
		if t.hasLiteral(p) {
			for range []rune(p) {
				t.advance()
			}
			return token.Token{Type: token.Punctuator, Value: p, Pos: startPos}
		}
	}
	c := t.advance()
	return token.Token{Type: token.Other, Value: string(c), Pos: startPos}
}
