// gcpp is the preprocessor's command-line driver: flag handling
// (grounded on the teacher compiler's cmd/gbc/main.go), per-file
// pipeline construction, and diagnostic wiring.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xplshn/gcpp/pkg/cli"
	"github.com/xplshn/gcpp/pkg/config"
	"github.com/xplshn/gcpp/pkg/directive"
	"github.com/xplshn/gcpp/pkg/expander"
	"github.com/xplshn/gcpp/pkg/lexer"
	"github.com/xplshn/gcpp/pkg/macro"
	"github.com/xplshn/gcpp/pkg/stream"
	"github.com/xplshn/gcpp/pkg/token"
	"github.com/xplshn/gcpp/pkg/util"

	"github.com/goforj/godump"
)

// osOpener resolves #include paths against the filesystem and caches
// every file it reads so diagnostics can print the offending source
// line (util.SetSourceLookup).
type osOpener struct {
	sources map[string][]string
}

func newOSOpener() *osOpener {
	return &osOpener{sources: make(map[string][]string)}
}

func (o *osOpener) Open(dir, path string) (string, []rune, error) {
	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(dir, path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", nil, err
	}
	text := string(data)
	o.sources[full] = strings.Split(text, "\n")
	return full, []rune(text), nil
}

func (o *osOpener) lookup(file string, line int) (string, bool) {
	lines, ok := o.sources[file]
	if !ok || line < 1 || line > len(lines) {
		return "", false
	}
	return lines[line-1], true
}

func main() {
	app := cli.NewApp("gcpp")
	app.Synopsis = "[options] <input.c> ..."
	app.Description = "A standalone C++ preprocessor: tokenizes, runs #define/#include/#if directives, and expands macros, emitting the resulting token stream."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/gcpp>"
	app.Since = 2026

	var (
		outFile      string
		defines      []string
		undefines    []string
		includePaths []string
		dumpState    bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "-", "Write preprocessed output to <file> ('-' for stdout).", "file")
	fs.Special(&defines, "D", "Predefine NAME, optionally as NAME=VALUE.", "name[=value]")
	fs.Special(&undefines, "U", "Remove an existing macro definition before processing.", "name")
	fs.List(&includePaths, "include", "I", []string{}, "Add a directory to the #include search path.", "path")
	fs.Bool(&dumpState, "dump-state", "d", false, "Dump the final macro table with godump after all input files are processed.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		for i, entry := range warningFlags {
			if entry.Enabled != nil && *entry.Enabled {
				cfg.SetWarning(config.Warning(i), true)
			}
			if entry.Disabled != nil && *entry.Disabled {
				cfg.SetWarning(config.Warning(i), false)
			}
		}
		for i, entry := range featureFlags {
			if entry.Enabled != nil && *entry.Enabled {
				cfg.SetFeature(config.Feature(i), true)
			}
			if entry.Disabled != nil && *entry.Disabled {
				cfg.SetFeature(config.Feature(i), false)
			}
		}
		cfg.IncludePaths = append(cfg.IncludePaths, includePaths...)
		cfg.Defines = defines
		cfg.Undefines = undefines

		if len(inputFiles) == 0 {
			return fmt.Errorf("no input files specified")
		}

		opener := newOSOpener()
		util.SetSourceLookup(opener.lookup)

		out := os.Stdout
		if outFile != "-" {
			f, err := os.Create(outFile)
			if err != nil {
				return fmt.Errorf("could not create output file %q: %w", outFile, err)
			}
			defer f.Close()
			out = f
		}

		table := macro.NewTable()
		applyPredefinitions(table, cfg.Defines, cfg.Undefines)

		failed := false
		for _, path := range inputFiles {
			if err := processFile(path, table, cfg, opener, out); err != nil {
				if pe, ok := err.(*util.ParseError); ok {
					util.PrintError(pe)
				} else {
					fmt.Fprintln(os.Stderr, err)
				}
				failed = true
			}
		}
		if dumpState {
			godump.Dump(table)
		}
		if failed {
			os.Exit(1)
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// applyPredefinitions installs -D/-U macros ahead of the real input
// (spec.md §6). Their body tokens carry no source position.
func applyPredefinitions(table *macro.Table, defines, undefines []string) {
	for _, d := range defines {
		name, value := d, "1"
		if idx := strings.IndexByte(d, '='); idx >= 0 {
			name, value = d[:idx], d[idx+1:]
		}
		var body []token.Token
		if value != "" {
			body = []token.Token{{Type: token.Number, Value: value}}
			if !isNumeric(value) {
				body = []token.Token{{Type: token.Identifier, Value: value}}
			}
		}
		table.Define(macro.Macro{Name: name, Kind: macro.Object, Body: body})
	}
	for _, name := range undefines {
		table.Undef(name)
	}
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// processFile runs one input file through the full pipeline —
// Tokenizer, DirectiveParser, MacroExpander — rendering every
// resulting token's literal spelling to out.
func processFile(path string, table *macro.Table, cfg *config.Config, opener *osOpener, out io.Writer) (err error) {
	defer util.Catch(&err)

	name, content, oerr := opener.Open("", path)
	if oerr != nil {
		return fmt.Errorf("could not read file %q: %w", path, oerr)
	}

	tok := lexer.New(name, content)
	dir := filepath.Dir(name)
	dp := directive.New(name, dir, stream.New(tok), table, cfg, opener, 0)
	ex := expander.New(stream.New(dp), table)
	s := stream.New(ex)

	for {
		t, terr := s.Next()
		if terr == io.EOF {
			return nil
		}
		if terr != nil {
			return terr
		}
		writeToken(out, t)
	}
}

func writeToken(out io.Writer, t token.Token) {
	if t.Type == token.Whitespace {
		if t.HasNewLine {
			fmt.Fprint(out, "\n")
		} else {
			fmt.Fprint(out, " ")
		}
		return
	}
	fmt.Fprint(out, t.Value)
}
