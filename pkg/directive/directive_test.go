package directive

import (
	"fmt"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/gcpp/pkg/config"
	"github.com/xplshn/gcpp/pkg/lexer"
	"github.com/xplshn/gcpp/pkg/macro"
	"github.com/xplshn/gcpp/pkg/stream"
	"github.com/xplshn/gcpp/pkg/token"
)

// mapOpener resolves #include paths from an in-memory map, for tests
// that don't want to touch the filesystem.
type mapOpener struct {
	files map[string]string
}

func (o *mapOpener) Open(dir, path string) (string, []rune, error) {
	content, ok := o.files[path]
	if !ok {
		return "", nil, fmt.Errorf("no such file %q", path)
	}
	return path, []rune(content), nil
}

func run(t *testing.T, src string, opener *mapOpener) ([]token.Token, error) {
	t.Helper()
	if opener == nil {
		opener = &mapOpener{files: map[string]string{}}
	}
	tbl := macro.NewTable()
	cfg := config.NewConfig()
	tok := lexer.New("test.cc", []rune(src))
	dp := New("test.cc", ".", stream.New(tok), tbl, cfg, opener, 0)
	s := stream.New(dp)

	var out []token.Token
	for {
		tk, err := s.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, tk)
	}
}

func significant(toks []token.Token) []string {
	var vs []string
	for _, tk := range toks {
		if tk.Type == token.Whitespace {
			continue
		}
		vs = append(vs, tk.Value)
	}
	return vs
}

func TestDefineAndPassthrough(t *testing.T) {
	out, err := run(t, "#define FOO 1\nFOO\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	// the directive parser does not itself expand macros — that's the
	// expander's job, sitting above this one in the pipeline.
	if want := []string{"FOO"}; !cmp.Equal(significant(out), want) {
		t.Fatalf("got %v, want %v", significant(out), want)
	}
}

func TestUndef(t *testing.T) {
	tbl := macro.NewTable()
	cfg := config.NewConfig()
	tok := lexer.New("test.cc", []rune("#define FOO 1\n#undef FOO\n"))
	dp := New("test.cc", ".", stream.New(tok), tbl, cfg, &mapOpener{}, 0)
	s := stream.New(dp)
	for {
		if _, err := s.Next(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatal(err)
		}
	}
	if tbl.Defined("FOO") {
		t.Fatal("FOO should be undefined")
	}
}

func TestIfTakesTrueBranch(t *testing.T) {
	out, err := run(t, "#if 1\nA\n#else\nB\n#endif\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"A"}; !cmp.Equal(significant(out), want) {
		t.Fatalf("got %v, want %v", significant(out), want)
	}
}

func TestIfElifElse(t *testing.T) {
	src := "#if 0\nA\n#elif 0\nB\n#elif 1\nC\n#else\nD\n#endif\n"
	out, err := run(t, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"C"}; !cmp.Equal(significant(out), want) {
		t.Fatalf("got %v, want %v", significant(out), want)
	}
}

func TestIfdefIfndef(t *testing.T) {
	src := "#define FOO\n#ifdef FOO\nA\n#endif\n#ifndef FOO\nB\n#endif\n"
	out, err := run(t, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"A"}; !cmp.Equal(significant(out), want) {
		t.Fatalf("got %v, want %v", significant(out), want)
	}
}

func TestDefinedOperator(t *testing.T) {
	src := "#define FOO\n#if defined(FOO)\nA\n#endif\n#if defined BAR\nB\n#endif\n"
	out, err := run(t, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"A"}; !cmp.Equal(significant(out), want) {
		t.Fatalf("got %v, want %v", significant(out), want)
	}
}

func TestNestedConditionals(t *testing.T) {
	src := "#if 1\n#if 0\nA\n#else\nB\n#endif\n#endif\n"
	out, err := run(t, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"B"}; !cmp.Equal(significant(out), want) {
		t.Fatalf("got %v, want %v", significant(out), want)
	}
}

func TestDanglingEndifErrors(t *testing.T) {
	if _, err := run(t, "#endif\n", nil); err == nil {
		t.Fatal("expected an error for #endif without a matching #if")
	}
}

func TestUnterminatedIfErrors(t *testing.T) {
	if _, err := run(t, "#if 1\nA\n", nil); err == nil {
		t.Fatal("expected an error for a missing #endif")
	}
}

func TestUnknownDirectiveWarnsButSkips(t *testing.T) {
	out, err := run(t, "#bogus stuff here\nA\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"A"}; !cmp.Equal(significant(out), want) {
		t.Fatalf("unknown directive should be skipped, not fatal: got %v, want %v", significant(out), want)
	}
}

func TestErrorWarningPragmaLineAreSilentlySkipped(t *testing.T) {
	out, err := run(t, "#error something bad\n#warning also bad\n#pragma once\n#line 5\nA\n", nil)
	if err != nil {
		t.Fatalf("these four directives must never be fatal or raise a diagnostic of their own: %v", err)
	}
	if want := []string{"A"}; !cmp.Equal(significant(out), want) {
		t.Fatalf("got %v, want %v", significant(out), want)
	}
}

func TestQuotedInclude(t *testing.T) {
	opener := &mapOpener{files: map[string]string{"inc.h": "INCLUDED\n"}}
	out, err := run(t, `#include "inc.h"`+"\nAFTER\n", opener)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"INCLUDED", "AFTER"}; !cmp.Equal(significant(out), want) {
		t.Fatalf("got %v, want %v", significant(out), want)
	}
}

func TestUnresolvedIncludeIsNonFatalPassthrough(t *testing.T) {
	out, err := run(t, `#include "missing.h"`+"\nAFTER\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	toks := significant(out)
	if len(toks) != 2 || toks[1] != "AFTER" {
		t.Fatalf("got %v, want a passthrough token then AFTER", toks)
	}
}

func TestFunctionMacroDefineWithVariadic(t *testing.T) {
	tbl := macro.NewTable()
	cfg := config.NewConfig()
	tok := lexer.New("test.cc", []rune("#define LOG(fmt, ...) fmt\n"))
	dp := New("test.cc", ".", stream.New(tok), tbl, cfg, &mapOpener{}, 0)
	s := stream.New(dp)
	for {
		if _, err := s.Next(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatal(err)
		}
	}
	m, ok := tbl.Lookup("LOG")
	if !ok {
		t.Fatal("LOG should be defined")
	}
	if !m.Variadic || m.Kind != macro.Function {
		t.Fatalf("LOG should be a variadic function-like macro: %+v", m)
	}
}
