// Package macro holds the macro value types shared across the
// directive parser, the macro expander, and the condition parser's
// `defined` operator: the macro table (mutated by #define/#undef) and
// the macro stack (consulted, never mutated, to suppress rescan
// recursion).
//
// The table shape follows the predefined-macro Environment in
// EngFlow's gazelle_cc parser package, generalized from int-valued
// macros to full token-sequence bodies.
package macro

import (
	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/gcpp/pkg/token"
)

// Kind distinguishes object-like from function-like macros.
type Kind int

const (
	Object Kind = iota
	Function
)

// Macro is a single #define entry. Identity is by Name; Body never
// contains a leading or trailing whitespace-only token (trimmed at
// #define time) and never contains a directive token.
type Macro struct {
	Name     string
	Kind     Kind
	Params   []string // function-like only, in declared order
	Variadic bool      // last param is __VA_ARGS__
	Body     []token.Token
}

// fingerprint hashes the macro's param list and body spellings. Two
// macros with the same fingerprint are indistinguishable as far as the
// standard's "identical redefinition is not an error" rule cares about;
// used by Table.Define to decide whether a redefinition is worth a
// warning without an O(n) structural compare on every #define.
func fingerprint(kind Kind, params []string, variadic bool, body []token.Token) uint64 {
	h := xxhash.New()
	if kind == Function {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	if variadic {
		h.Write([]byte{1})
	}
	for _, p := range params {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	for _, t := range body {
		h.Write([]byte(t.Value))
		h.Write([]byte{byte(t.Type), 0})
	}
	return h.Sum64()
}

// Table is the process-unique mapping from identifier to macro
// definition, shared by reference across the pipeline. It is mutated
// only by #define/#undef from the directive parser that currently owns
// the token stream; there is no concurrent mutation because the whole
// pipeline runs single-threaded and synchronous (spec.md §5).
type Table struct {
	macros map[string]Macro
	fp     map[string]uint64
}

// NewTable creates an empty macro table.
func NewTable() *Table {
	return &Table{macros: make(map[string]Macro), fp: make(map[string]uint64)}
}

// Lookup returns the macro registered under name, if any.
func (t *Table) Lookup(name string) (Macro, bool) {
	m, ok := t.macros[name]
	return m, ok
}

// Defined reports whether name currently has a macro definition; used
// by the condition parser's `defined` operator.
func (t *Table) Defined(name string) bool {
	_, ok := t.macros[name]
	return ok
}

// Define installs m, silently replacing any prior entry per spec.md
// §4.3. It reports whether the redefinition changed the macro's
// fingerprint (kind, params, variadic-ness, or body spelling) so a
// caller can choose to warn on an incompatible redefinition while
// staying quiet about a harmless re-#define of the same macro.
func (t *Table) Define(m Macro) (changed bool) {
	newFP := fingerprint(m.Kind, m.Params, m.Variadic, m.Body)
	if oldFP, existed := t.fp[m.Name]; existed && oldFP != newFP {
		changed = true
	}
	t.macros[m.Name] = m
	t.fp[m.Name] = newFP
	return changed
}

// Undef removes the named entry; a no-op if absent.
func (t *Table) Undef(name string) {
	delete(t.macros, name)
	delete(t.fp, name)
}

// Stack is a persistent singly-linked list of macro names currently
// under expansion. It is extended (never mutated in place) when
// entering a nested expander, so that a sub-expander sees exactly the
// frames of its ancestors — copying is cheap because only the head
// frame is allocated per push. A nil *Stack is the empty stack.
type Stack struct {
	name string
	next *Stack
}

// Push returns a new stack with name as its head, the rest unchanged.
func (s *Stack) Push(name string) *Stack {
	return &Stack{name: name, next: s}
}

// Contains reports whether name is anywhere on the stack — the rescan
// guard that stops a macro from expanding itself or a macro currently
// expanding it.
func (s *Stack) Contains(name string) bool {
	for f := s; f != nil; f = f.next {
		if f.name == name {
			return true
		}
	}
	return false
}

// Names returns the stack's frames, innermost (most recently pushed)
// first. Used only by tests.
func (s *Stack) Names() []string {
	var names []string
	for f := s; f != nil; f = f.next {
		names = append(names, f.name)
	}
	return names
}
