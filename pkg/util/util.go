// Package util holds the preprocessor's diagnostics: positioned parse
// errors and warnings, printed the way the teacher's compiler prints
// them (a caret under the offending span, ANSI-colored), plus the
// FileOpener collaborator spec.md §1 and §6 assume is external.
package util

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/xplshn/gcpp/pkg/pos"
)

// ParseError is the single error type every pipeline stage raises for
// lexical, syntactic, directive, and semantic failures (spec.md §7,
// categories 1-4). It carries the position the way every diagnostic in
// the teacher's compiler does.
type ParseError struct {
	Pos     pos.Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// NewError builds a *ParseError without raising it; callers that thread
// errors through normal returns use this directly.
func NewError(p pos.Position, format string, args ...interface{}) *ParseError {
	return &ParseError{Pos: p, Message: fmt.Sprintf(format, args...)}
}

// Panic raises a *ParseError through a panic. Deep call chains inside a
// single stage (the tokenizer's escape decoder, the expander's argument
// scanner) use this instead of threading an error return through every
// helper; the stage's exported entry point recovers it with Catch.
func Panic(p pos.Position, format string, args ...interface{}) {
	panic(NewError(p, format, args...))
}

// Catch recovers a *ParseError panic raised by Panic and stores it in
// *errp; any other panic value is re-raised. Call via defer at the top
// of every exported method that may call Panic transitively — the
// idiom spec.md §9's "rewrite as a result-returning next()" note
// describes, and the one andrewchambers-cc's Preprocessor.preprocess
// uses with its breakout type.
func Catch(errp *error) {
	if r := recover(); r != nil {
		if pe, ok := r.(*ParseError); ok {
			*errp = pe
			return
		}
		panic(r)
	}
}

// FileOpener resolves an #include path to readable content. The
// directive parser depends only on this interface (spec.md §1's "a
// file opener [is] assumed available"); production wiring is an
// os.Open-backed implementation, tests use an in-memory map.
type FileOpener interface {
	// Open resolves path relative to dir (the directory of the
	// including file) and returns its content plus the resolved name
	// to attach to positions, or an error if it can't be read.
	Open(dir, path string) (name string, content []rune, err error)
}

// color reports whether ANSI color codes should be emitted to stderr.
// The teacher's compiler colors unconditionally; gcpp gates it on
// whether stderr is actually a terminal, using the isatty dependency
// that rode along in the teacher's go.mod unused.
var color = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

func colorize(code, s string) string {
	if !color {
		return s
	}
	return code + s + "\033[0m"
}

// sourceLine, when non-nil, returns the full text of the given line of
// the given file, for printing the caret diagnostic. Wired up by the
// driver via SetSourceLookup before the first input file is read.
var sourceLine func(file string, line int) (string, bool)

// SetSourceLookup installs the callback PrintError/Warn use to print the
// offending source line under a diagnostic.
func SetSourceLookup(f func(file string, line int) (string, bool)) {
	sourceLine = f
}

func printCaret(w *os.File, p pos.Position, width int) {
	if sourceLine == nil {
		return
	}
	line, ok := sourceLine(p.File, p.Line)
	if !ok {
		return
	}
	fmt.Fprintf(w, "  %s\n", line)
	col := p.Col
	if col < 1 {
		col = 1
	}
	caret := colorize("\033[32m", "^"+strings.Repeat("~", max(width-1, 0)))
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", col-1), caret)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// PrintError writes a ParseError diagnostic to stderr in the
// `FILE[line:L, col:C]: error: MESSAGE` form, with a caret line when a
// source lookup is available. It never exits the process — exit-code
// handling is the driver's job (spec.md §6).
func PrintError(err *ParseError) {
	fmt.Fprintf(os.Stderr, "%s: %s ", err.Pos, colorize("\033[31m", "error:"))
	fmt.Fprintln(os.Stderr, err.Message)
	printCaret(os.Stderr, err.Pos, 1)
}

// Warn prints a non-fatal diagnostic tagged with the warning's name,
// e.g. for an unknown directive silently skipped (spec.md §4.3) when
// that behavior is itself worth flagging.
func Warn(p pos.Position, name, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s: %s ", p, colorize("\033[33m", "warning:"))
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintf(os.Stderr, " [-W%s]\n", name)
	printCaret(os.Stderr, p, 1)
}
