// Package expander implements the MacroExpander: the top of the
// pipeline, replacing macro invocations with their substituted and
// rescanned bodies (spec.md §4.4). The algorithm is the classic
// queue-based one — pop a token, and if it names an unsuppressed
// macro, push its substitution back onto the front of the queue for
// rescanning before any token that was already waiting — grounded on
// assyrianic-sptools' preprocessor.go macro.apply, generalized from
// its %N-parameter substitution to full token-sequence bodies with
// __VA_ARGS__ and a persistent macro.Stack (spec.md's rescan guard)
// instead of a visited-name set.
package expander

import (
	"io"

	"github.com/xplshn/gcpp/pkg/macro"
	"github.com/xplshn/gcpp/pkg/pos"
	"github.com/xplshn/gcpp/pkg/stream"
	"github.com/xplshn/gcpp/pkg/token"
	"github.com/xplshn/gcpp/pkg/util"
)

// queued is one token together with the set of macros already active
// around it — the hideset that blocks self-recursive rescanning.
type queued struct {
	tok   token.Token
	stack *macro.Stack
}

// Expander implements stream.Producer over an upstream stream.Stream,
// consuming its tokens and emitting them with every macro invocation
// replaced.
type Expander struct {
	up    *stream.Stream
	table *macro.Table

	rescan []queued      // awaiting (re)scan, consumed before up
	ready  []token.Token // fully resolved, awaiting Produce
}

// New wraps up, expanding macro invocations against table.
func New(up *stream.Stream, table *macro.Table) *Expander {
	return &Expander{up: up, table: table}
}

// Finished implements stream.Producer.
func (e *Expander) Finished() bool {
	return len(e.ready) == 0 && len(e.rescan) == 0 && e.up.Finished()
}

// Position implements stream.Producer.
func (e *Expander) Position() pos.Position {
	if len(e.ready) > 0 {
		return e.ready[0].Pos
	}
	if len(e.rescan) > 0 {
		return e.rescan[0].tok.Pos
	}
	return e.up.Position()
}

// Produce implements stream.Producer.
func (e *Expander) Produce() (tok token.Token, err error) {
	defer util.Catch(&err)
	for len(e.ready) == 0 {
		if serr := e.step(); serr != nil {
			return token.Token{}, serr
		}
	}
	t := e.ready[0]
	e.ready = e.ready[1:]
	return t, nil
}

func (e *Expander) pull() (queued, error) {
	if len(e.rescan) > 0 {
		q := e.rescan[0]
		e.rescan = e.rescan[1:]
		return q, nil
	}
	t, err := e.up.Next()
	if err != nil {
		return queued{}, err
	}
	return queued{tok: t}, nil
}

func (e *Expander) pushFront(qs []queued) {
	e.rescan = append(append([]queued{}, qs...), e.rescan...)
}

func tagBody(toks []token.Token, stack *macro.Stack) []queued {
	qs := make([]queued, len(toks))
	for i, t := range toks {
		qs[i] = queued{tok: t, stack: stack}
	}
	return qs
}

// step performs one unit of work: pop the next (re)scan candidate and
// either pass it through, or expand it and push its substitution back
// for rescanning.
func (e *Expander) step() error {
	q, err := e.pull()
	if err != nil {
		return err
	}

	if q.tok.Type != token.Identifier || q.stack.Contains(q.tok.Value) {
		e.ready = append(e.ready, q.tok)
		return nil
	}

	m, ok := e.table.Lookup(q.tok.Value)
	if !ok {
		e.ready = append(e.ready, q.tok)
		return nil
	}

	if m.Kind == macro.Object {
		e.pushFront(tagBody(m.Body, q.stack.Push(m.Name)))
		return nil
	}

	var skipped []queued
	next, err := e.peekNonWhitespace(&skipped)
	if err == io.EOF {
		e.pushFront(skipped)
		e.ready = append(e.ready, q.tok)
		return nil
	}
	if err != nil {
		return err
	}
	if !next.tok.Is(token.Punctuator, "(") {
		e.pushFront(append(skipped, next))
		e.ready = append(e.ready, q.tok)
		return nil
	}

	args, err := e.parseArgs(q.tok.Pos, m)
	if err != nil {
		return err
	}
	substituted, err := e.substitute(q.tok.Pos, m, args, q.stack.Push(m.Name))
	if err != nil {
		return err
	}
	e.pushFront(substituted)
	return nil
}

// peekNonWhitespace pulls past any run of Whitespace tokens (including
// ones carrying a newline — a function-like invocation is allowed to
// span a line boundary, spec.md §9's supplemented-feature decision),
// collecting what it skipped so the caller can restore it verbatim if
// the lookahead turns out not to be a call.
func (e *Expander) peekNonWhitespace(skipped *[]queued) (queued, error) {
	for {
		q, err := e.pull()
		if err != nil {
			return queued{}, err
		}
		if q.tok.Type == token.Whitespace {
			*skipped = append(*skipped, q)
			continue
		}
		return q, nil
	}
}

// parseArgs consumes tokens up to (and including) the invocation's
// closing paren — already past the opening one — splitting top-level
// commas into arguments. Once the variadic tail is reached, further
// top-level commas are kept verbatim inside that last argument, which
// is exactly __VA_ARGS__'s raw token sequence.
func (e *Expander) parseArgs(callPos pos.Position, m macro.Macro) ([][]token.Token, error) {
	var args [][]token.Token
	var cur []token.Token
	depth := 0

	splitPoint := len(m.Params)
	if m.Variadic {
		splitPoint = len(m.Params) - 1
	}

	for {
		q, err := e.pull()
		if err == io.EOF {
			return nil, util.NewError(callPos, "unterminated macro invocation of %q", m.Name)
		}
		if err != nil {
			return nil, err
		}
		t := q.tok

		switch {
		case t.Is(token.Punctuator, "("):
			depth++
			cur = append(cur, t)
		case t.Is(token.Punctuator, ")"):
			if depth == 0 {
				args = append(args, trimEdgeWhitespace(cur))
				if len(m.Params) == 0 && len(args) == 1 && len(args[0]) == 0 {
					args = nil
				}
				return args, nil
			}
			depth--
			cur = append(cur, t)
		case t.Is(token.Punctuator, ",") && depth == 0 && (!m.Variadic || len(args) < splitPoint):
			args = append(args, trimEdgeWhitespace(cur))
			cur = nil
		default:
			cur = append(cur, t)
		}
	}
}

func trimEdgeWhitespace(toks []token.Token) []token.Token {
	start := 0
	for start < len(toks) && toks[start].Type == token.Whitespace {
		start++
	}
	end := len(toks)
	for end > start && toks[end-1].Type == token.Whitespace {
		end--
	}
	return toks[start:end]
}

// substitute builds the replacement token sequence for one invocation
// of m: every parameter name in the body is replaced by its argument,
// fully macro-expanded first (spec.md §4.4's "argument pre-scan"); a
// __VA_ARGS__ reference is replaced by the variadic tail, likewise
// pre-scanned and with its commas included, since parseArgs never split
// it further.
func (e *Expander) substitute(callPos pos.Position, m macro.Macro, args [][]token.Token, stack *macro.Stack) ([]queued, error) {
	minArgs := len(m.Params)
	if m.Variadic {
		minArgs--
	}
	switch {
	case len(args) < minArgs:
		return nil, util.NewError(callPos, "Too few args to macro %q (expected %d, got %d)", m.Name, minArgs, len(args))
	case !m.Variadic && len(args) > minArgs:
		return nil, util.NewError(callPos, "Too many args to macro %q (expected %d, got %d)", m.Name, minArgs, len(args))
	}

	expandedArgs := make([][]token.Token, len(args))
	for i, a := range args {
		exp, err := ExpandTokens(a, e.table)
		if err != nil {
			return nil, err
		}
		expandedArgs[i] = exp
	}

	paramIndex := make(map[string]int, len(m.Params))
	for i, p := range m.Params {
		paramIndex[p] = i
	}

	var out []token.Token
	for _, bt := range m.Body {
		if bt.Type == token.Identifier {
			if bt.Value == "__VA_ARGS__" && m.Variadic {
				idx := len(m.Params) - 1
				if idx < len(expandedArgs) {
					out = append(out, expandedArgs[idx]...)
				}
				continue
			}
			if idx, ok := paramIndex[bt.Value]; ok {
				out = append(out, expandedArgs[idx]...)
				continue
			}
		}
		out = append(out, bt)
	}
	return tagBody(out, stack), nil
}

// sliceProducer implements stream.Producer over a fixed token slice —
// the vehicle for expanding a bounded, already-extracted line of
// tokens (a macro argument, or a directive parser's #if expression)
// without a live upstream to pull from.
type sliceProducer struct {
	toks []token.Token
	i    int
}

// NewSliceProducer wraps toks as a stream.Producer.
func NewSliceProducer(toks []token.Token) stream.Producer {
	return &sliceProducer{toks: toks}
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
	if len(s.toks) > 0 {
		return s.toks[len(s.toks)-1].Pos
	}
	return pos.Position{}
}

// ExpandTokens fully macro-expands a bounded token slice: used for a
// macro argument's pre-scan and, by the directive parser, for a
// #if/#elif expression's tokens once any `defined` operand has been
// protected from expansion.
func ExpandTokens(toks []token.Token, table *macro.Table) ([]token.Token, error) {
	exp := New(stream.New(NewSliceProducer(toks)), table)
	var out []token.Token
	for {
		t, err := exp.Produce()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
}
