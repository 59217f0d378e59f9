// Package token defines the preprocessing-token value type: the common
// currency passed between every stage of the pipeline (tokenizer,
// directive parser, macro expander, condition parser).
package token

import (
	"fmt"

	"github.com/xplshn/gcpp/pkg/pos"
)

// Type tags the kind of preprocessing token, per the C++ preprocessing
// grammar (not the full-language token set).
type Type int

const (
	EOF Type = iota
	Whitespace
	Identifier
	Number
	Character
	String
	Punctuator
	// Other is an opaque passthrough token: the literal text of a line
	// the preprocessor chose not to interpret (an unresolved #include,
	// an unknown byte with no punctuator match).
	Other
)

func (t Type) String() string {
	switch t {
	case EOF:
		return "EOF"
	case Whitespace:
		return "Whitespace"
	case Identifier:
		return "Identifier"
	case Number:
		return "Number"
	case Character:
		return "Character"
	case String:
		return "String"
	case Punctuator:
		return "Punctuator"
	case Other:
		return "Other"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Token is a tagged value: its kind, its exact literal spelling, and the
// position of its first byte. HasNewLine is meaningful only for
// Whitespace tokens, recording whether the run of whitespace it
// collapses (including any comment) contained a logical newline.
type Token struct {
	Type       Type
	Value      string
	Pos        pos.Position
	HasNewLine bool
}

func (t Token) String() string {
	if t.Value == "" {
		return fmt.Sprintf("%s@%s", t.Type, t.Pos)
	}
	return fmt.Sprintf("%s(%q)@%s", t.Type, t.Value, t.Pos)
}

// Is reports whether t is of the given kind with the given literal
// spelling. It is the building block for the stream package's
// match/expect helpers.
func (t Token) Is(typ Type, value string) bool {
	return t.Type == typ && t.Value == value
}

// Punctuators is the ordered, longest-match-first table of the 57
// recognized preprocessing-operator-or-punctuator spellings. The
// tokenizer scans this table in order so that e.g. "->*" wins over
// "->" and "->" wins over "-".
var Punctuators = []string{
	"->*", "%:%", "...", ">>=", "<<=",
	"##", "<:", ":>", "<%", "%>", "%:", "::", ".*",
	"+=", "-=", "*=", "/=", "%=", "^=", "&=", "|=",
	"<<", ">>", "==", "!=", "<=", ">=", "&&", "||", "++", "--", "->",
	"{", "}", "[", "]", "#", "(", ")", ";", ":", "?", ".",
	"+", "-", "*", "/", "%", "^", "&", "|", "~", "!", "=", "<", ">", ",",
}

// AlternativeTokens maps a C++ alternative-token identifier spelling to
// the punctuator it stands for, recognized by the condition parser
// (spec.md §6's "and, or, not, not_eq, eq, bitand, bitor, xor" list,
// matching original_source/condition_parser.cpp's operator-parsing
// functions exactly — eight spellings, no more).
var AlternativeTokens = map[string]string{
	"and":    "&&",
	"or":     "||",
	"not":    "!",
	"not_eq": "!=",
	"eq":     "==",
	"bitand": "&",
	"bitor":  "|",
	"xor":    "^",
}
