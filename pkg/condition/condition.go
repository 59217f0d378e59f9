// Package condition evaluates the constant-expression grammar that
// drives #if/#elif (spec.md §4.5): a 13-level precedence-climbing
// parser over integer constants, character constants, and the usual
// C operators, following the evalOr/evalAnd/evalRel/evalAdd/evalMul
// cascade in assyrianic-sptools' preprocessor.go.
//
// Eval expects its stream already stripped of Whitespace tokens and
// already resolved for `defined` (the caller — the directive parser —
// owns macro expansion and must substitute every `defined X` /
// `defined(X)` with a literal 0/1 token before the tokens reach here,
// since `defined`'s operand must never be macro-expanded while the
// rest of the line must be; see spec.md §4.3, §4.5).
package condition

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xplshn/gcpp/pkg/pos"
	"github.com/xplshn/gcpp/pkg/stream"
	"github.com/xplshn/gcpp/pkg/token"
	"github.com/xplshn/gcpp/pkg/util"
)

// Value is a C-style tagged 64-bit integer: signed or unsigned, with
// the usual arithmetic conversions applied at every binary operator
// (mixed signed/unsigned yields unsigned, matching a target where long
// and the expression's intermediate type are both 64-bit).
type Value struct {
	bits   uint64
	signed bool
}

func Signed(v int64) Value    { return Value{bits: uint64(v), signed: true} }
func Unsigned(v uint64) Value { return Value{bits: v, signed: false} }

func (v Value) Int64() int64   { return int64(v.bits) }
func (v Value) Uint64() uint64 { return v.bits }
func (v Value) Signed() bool   { return v.signed }
func (v Value) IsZero() bool   { return v.bits == 0 }

func (v Value) String() string {
	if v.signed {
		return strconv.FormatInt(v.Int64(), 10)
	}
	return strconv.FormatUint(v.bits, 10) + "u"
}

func combine(a, b Value, bits uint64) Value {
	return Value{bits: bits, signed: a.signed && b.signed}
}

func boolVal(b bool) Value {
	if b {
		return Signed(1)
	}
	return Signed(0)
}

func (a Value) Add(b Value) Value { return combine(a, b, a.bits+b.bits) }
func (a Value) Sub(b Value) Value { return combine(a, b, a.bits-b.bits) }
func (a Value) Mul(b Value) Value { return combine(a, b, a.bits*b.bits) }

func (a Value) Div(b Value) (Value, error) {
	if b.bits == 0 {
		return Value{}, fmt.Errorf("division by zero")
	}
	if a.signed && b.signed {
		return Signed(a.Int64() / b.Int64()), nil
	}
	return Unsigned(a.bits / b.bits), nil
}

func (a Value) Mod(b Value) (Value, error) {
	if b.bits == 0 {
		return Value{}, fmt.Errorf("division by zero")
	}
	if a.signed && b.signed {
		return Signed(a.Int64() % b.Int64()), nil
	}
	return Unsigned(a.bits % b.bits), nil
}

// Shl/Shr's result type follows the left operand alone, per C.
func (a Value) Shl(b Value) Value {
	return Value{bits: a.bits << (b.bits & 63), signed: a.signed}
}

func (a Value) Shr(b Value) Value {
	if a.signed {
		return Signed(a.Int64() >> (b.bits & 63))
	}
	return Unsigned(a.bits >> (b.bits & 63))
}

func (a Value) And(b Value) Value { return combine(a, b, a.bits&b.bits) }
func (a Value) Or(b Value) Value  { return combine(a, b, a.bits|b.bits) }
func (a Value) Xor(b Value) Value { return combine(a, b, a.bits^b.bits) }

func (a Value) Neg() Value {
	if a.signed {
		return Signed(-a.Int64())
	}
	return Unsigned(-a.bits)
}

func (a Value) Not() Value { return Value{bits: ^a.bits, signed: a.signed} }

func (a Value) LNot() Value { return boolVal(a.IsZero()) }

func (a Value) cmpLess(b Value) bool {
	if a.signed && b.signed {
		return a.Int64() < b.Int64()
	}
	return a.bits < b.bits
}

func (a Value) Lt(b Value) Value { return boolVal(a.cmpLess(b)) }
func (a Value) Gt(b Value) Value { return boolVal(b.cmpLess(a)) }
func (a Value) Le(b Value) Value { return boolVal(!b.cmpLess(a)) }
func (a Value) Ge(b Value) Value { return boolVal(!a.cmpLess(b)) }
func (a Value) Eq(b Value) Value { return boolVal(a.bits == b.bits) }
func (a Value) Ne(b Value) Value { return boolVal(a.bits != b.bits) }

func (a Value) LAnd(b Value) Value { return boolVal(!a.IsZero() && !b.IsZero()) }
func (a Value) LOr(b Value) Value  { return boolVal(!a.IsZero() || !b.IsZero()) }

// parser holds the parse state: the stream to consume and whether the
// C++ alternative-token spellings (and, or, eq, ...) are recognized as
// operators.
type parser struct {
	s        *stream.Stream
	altToken bool
}

// Eval parses and evaluates one constant-expression to end of stream,
// raising a *util.ParseError (via panic, recovered here) on any
// syntax or semantic failure — division by zero, a floating-point or
// string-literal operand, a trailing token after the expression, or
// an empty expression. altTokens gates recognition of the C++
// alternative-token operator spellings (token.AlternativeTokens) —
// the caller threads through config.FeatAltTokens.
func Eval(s *stream.Stream, altTokens bool) (val Value, err error) {
	defer util.Catch(&err)

	p := &parser{s: s, altToken: altTokens}
	v, perr := p.parseComma()
	if perr != nil {
		return Value{}, perr
	}
	if !s.Finished() {
		t, terr := s.Next()
		if terr != nil && terr != io.EOF {
			return Value{}, terr
		}
		if terr == nil {
			util.Panic(t.Pos, "unexpected token %q in #if expression", t.Value)
		}
	}
	return v, nil
}

func (p *parser) here() pos.Position { return p.s.Position() }

// matchOp consumes a punctuator sym or, when altToken is enabled, the
// C++ alternative-token identifier spelling that stands for it.
func (p *parser) matchOp(sym string) (bool, error) {
	if _, ok, err := p.s.MatchPunc(sym); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	if !p.altToken {
		return false, nil
	}
	for name, mapped := range token.AlternativeTokens {
		if mapped != sym {
			continue
		}
		if _, ok, err := p.s.MatchID(name); err != nil {
			return false, err
		} else if ok {
			return true, nil
		}
	}
	return false, nil
}

type binOp struct {
	sym string
	fn  func(a, b Value) (Value, error)
}

func simple(f func(a, b Value) Value) func(a, b Value) (Value, error) {
	return func(a, b Value) (Value, error) { return f(a, b), nil }
}

func (p *parser) parseLevel(next func() (Value, error), ops []binOp) (Value, error) {
	left, err := next()
	if err != nil {
		return Value{}, err
	}
	for {
		opPos := p.here()
		var matchedFn func(a, b Value) (Value, error)
		for _, op := range ops {
			ok, err := p.matchOp(op.sym)
			if err != nil {
				return Value{}, err
			}
			if ok {
				matchedFn = op.fn
				break
			}
		}
		if matchedFn == nil {
			return left, nil
		}
		right, err := next()
		if err != nil {
			return Value{}, err
		}
		left, err = matchedFn(left, right)
		if err != nil {
			util.Panic(opPos, "%s", err.Error())
		}
	}
}

// parseComma is the lowest precedence level — its operand list keeps
// only the last evaluated value, per the comma operator's semantics.
func (p *parser) parseComma() (Value, error) {
	left, err := p.parseConditional()
	if err != nil {
		return Value{}, err
	}
	for {
		if ok, err := p.matchOp(","); err != nil {
			return Value{}, err
		} else if !ok {
			return left, nil
		}
		left, err = p.parseConditional()
		if err != nil {
			return Value{}, err
		}
	}
}

func (p *parser) parseConditional() (Value, error) {
	cond, err := p.parseLogicalOr()
	if err != nil {
		return Value{}, err
	}
	if ok, err := p.matchOp("?"); err != nil {
		return Value{}, err
	} else if ok {
		thenV, err := p.parseComma()
		if err != nil {
			return Value{}, err
		}
		if _, err := p.s.ExpectPunc(":"); err != nil {
			return Value{}, err
		}
		elseV, err := p.parseConditional()
		if err != nil {
			return Value{}, err
		}
		if !cond.IsZero() {
			return thenV, nil
		}
		return elseV, nil
	}
	return cond, nil
}

func (p *parser) parseLogicalOr() (Value, error) {
	return p.parseLevel(p.parseLogicalAnd, []binOp{{"||", simple(Value.LOr)}})
}

func (p *parser) parseLogicalAnd() (Value, error) {
	return p.parseLevel(p.parseBitOr, []binOp{{"&&", simple(Value.LAnd)}})
}

func (p *parser) parseBitOr() (Value, error) {
	return p.parseLevel(p.parseBitXor, []binOp{{"|", simple(Value.Or)}})
}

func (p *parser) parseBitXor() (Value, error) {
	return p.parseLevel(p.parseBitAnd, []binOp{{"^", simple(Value.Xor)}})
}

func (p *parser) parseBitAnd() (Value, error) {
	return p.parseLevel(p.parseEquality, []binOp{{"&", simple(Value.And)}})
}

func (p *parser) parseEquality() (Value, error) {
	return p.parseLevel(p.parseRelational, []binOp{
		{"==", simple(Value.Eq)},
		{"!=", simple(Value.Ne)},
	})
}

func (p *parser) parseRelational() (Value, error) {
	return p.parseLevel(p.parseShift, []binOp{
		{"<=", simple(Value.Le)},
		{">=", simple(Value.Ge)},
		{"<", simple(Value.Lt)},
		{">", simple(Value.Gt)},
	})
}

func (p *parser) parseShift() (Value, error) {
	return p.parseLevel(p.parseAdditive, []binOp{
		{"<<", simple(Value.Shl)},
		{">>", simple(Value.Shr)},
	})
}

func (p *parser) parseAdditive() (Value, error) {
	return p.parseLevel(p.parseMultiplicative, []binOp{
		{"+", simple(Value.Add)},
		{"-", simple(Value.Sub)},
	})
}

func (p *parser) parseMultiplicative() (Value, error) {
	return p.parseLevel(p.parseUnary, []binOp{
		{"*", simple(Value.Mul)},
		{"/", Value.Div},
		{"%", Value.Mod},
	})
}

func (p *parser) parseUnary() (Value, error) {
	switch {
	case mustMatch(p, "!"):
		v, err := p.parseUnary()
		if err != nil {
			return Value{}, err
		}
		return v.LNot(), nil
	case mustMatch(p, "~"):
		v, err := p.parseUnary()
		if err != nil {
			return Value{}, err
		}
		return v.Not(), nil
	case mustMatch(p, "-"):
		v, err := p.parseUnary()
		if err != nil {
			return Value{}, err
		}
		return v.Neg(), nil
	case mustMatch(p, "+"):
		return p.parseUnary()
	default:
		return p.parsePrimary()
	}
}

// mustMatch is matchOp with errors folded into a panic, used only in
// parseUnary's dispatch switch where threading an error return through
// a case condition would be awkward.
func mustMatch(p *parser, sym string) bool {
	ok, err := p.matchOp(sym)
	if err != nil {
		util.Panic(p.here(), "%s", err.Error())
	}
	return ok
}

func (p *parser) parsePrimary() (Value, error) {
	t, err := p.s.Next()
	if err == io.EOF {
		util.Panic(p.here(), "expected an expression")
	}
	if err != nil {
		return Value{}, err
	}

	switch t.Type {
	case token.Number:
		return parseNumber(t.Value, t.Pos)
	case token.Character:
		return parseChar(t.Value), nil
	case token.String:
		util.Panic(t.Pos, "string literal is not valid in a constant expression")
	case token.Identifier:
		switch t.Value {
		case "true":
			return Signed(1), nil
		case "false":
			return Signed(0), nil
		default:
			// An identifier surviving macro expansion (not a
			// keyword, not itself a macro) evaluates to 0.
			return Signed(0), nil
		}
	case token.Punctuator:
		if t.Value == "(" {
			v, err := p.parseComma()
			if err != nil {
				return Value{}, err
			}
			if _, err := p.s.ExpectPunc(")"); err != nil {
				return Value{}, err
			}
			return v, nil
		}
	}
	util.Panic(t.Pos, "unexpected token %q in #if expression", t.Value)
	panic("unreachable")
}

func isFloatLiteral(digits string) bool {
	if strings.Contains(digits, ".") {
		return true
	}
	lower := strings.ToLower(digits)
	if strings.HasPrefix(lower, "0x") {
		return strings.ContainsRune(lower, 'p')
	}
	return strings.ContainsRune(lower, 'e')
}

// parseNumber decodes a preprocessing-number token into an integer
// Value, rejecting floating-point spellings (spec.md §8's "floating
// point value in #if" error scenario) and applying the usual
// unsigned-on-overflow-or-U-suffix promotion.
func parseNumber(text string, p pos.Position) (Value, error) {
	unsigned := false
	end := len(text)
	for end > 0 && (text[end-1] == 'u' || text[end-1] == 'U' || text[end-1] == 'l' || text[end-1] == 'L') {
		if text[end-1] == 'u' || text[end-1] == 'U' {
			unsigned = true
		}
		end--
	}
	digits := strings.ReplaceAll(text[:end], "'", "")

	if isFloatLiteral(digits) {
		return Value{}, util.NewError(p, "Floating point number is not allowed")
	}

	var v uint64
	var perr error
	lower := strings.ToLower(digits)
	switch {
	case strings.HasPrefix(lower, "0x"):
		v, perr = strconv.ParseUint(digits[2:], 16, 64)
	case strings.HasPrefix(lower, "0b"):
		v, perr = strconv.ParseUint(digits[2:], 2, 64)
	case len(digits) > 1 && digits[0] == '0':
		v, perr = strconv.ParseUint(digits[1:], 8, 64)
	default:
		v, perr = strconv.ParseUint(digits, 10, 64)
	}
	if perr != nil {
		return Value{}, util.NewError(p, "invalid integer constant %q", text)
	}
	if unsigned || v > math.MaxInt64 {
		return Unsigned(v), nil
	}
	return Signed(int64(v)), nil
}

var simpleEscapes = map[byte]rune{
	'\'': '\'', '"': '"', '?': '?', '\\': '\\',
	'a': '\a', 'b': '\b', 'f': '\f', 'n': '\n', 'r': '\r', 't': '\t', 'v': '\v',
}

// parseChar decodes a character-literal token's escapes and folds its
// content into a single integer, matching the multicharacter-constant
// convention (successive bytes shifted in) most compilers use.
func parseChar(text string) Value {
	start := strings.IndexByte(text, '\'')
	body := text[start+1 : len(text)-1]

	var v uint64
	i := 0
	for i < len(body) {
		if body[i] != '\\' {
			v = v<<8 | uint64(body[i])
			i++
			continue
		}
		i++
		if i >= len(body) {
			break
		}
		if r, ok := simpleEscapes[body[i]]; ok {
			v = v<<8 | uint64(byte(r))
			i++
			continue
		}
		switch body[i] {
		case 'x':
			i++
			j := i
			for j < len(body) && isHex(body[j]) {
				j++
			}
			n, _ := strconv.ParseUint(body[i:j], 16, 64)
			v = v<<8 | (n & 0xff)
			i = j
		case 'u', 'U':
			n := 4
			if body[i] == 'U' {
				n = 8
			}
			i++
			j := i + n
			if j > len(body) {
				j = len(body)
			}
			code, _ := strconv.ParseUint(body[i:j], 16, 64)
			v = v<<8 | (code & 0xff)
			i = j
		default:
			j := i
			for j < len(body) && j < i+3 && body[j] >= '0' && body[j] <= '7' {
				j++
			}
			n, _ := strconv.ParseUint(body[i:j], 8, 64)
			v = v<<8 | (n & 0xff)
			i = j
		}
	}
	return Signed(int64(int32(uint32(v))))
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
