// Package config holds the preprocessor's ambient settings: the
// Feature/Warning enablement table (shaped after the teacher compiler's
// config.Config), include search paths, recursion limits, and
// command-line macro predefinitions.
package config

import (
	"strings"

	"github.com/xplshn/gcpp/pkg/cli"
)

// Feature toggles an optional piece of preprocessor behavior.
type Feature int

const (
	// FeatAltTokens recognizes C++ alternative-token identifiers
	// (and, or, bitand, ...) as operators inside #if/#elif expressions
	// (spec.md §6).
	FeatAltTokens Feature = iota
	// FeatPedanticElif still parses (but discards) an #elif expression
	// found in a branch that is already known true, per spec.md §9's
	// resolved open question. Disabling this skips parsing entirely,
	// which is faster but diverges from the spec's documented choice.
	FeatPedanticElif
	FeatCount
)

// Warning toggles a non-fatal diagnostic.
type Warning int

const (
	// WarnUnknownDirective flags a `#`-line whose directive word isn't
	// one of the recognized set — spec.md §4.3 says it's silently
	// skipped, but silent is still worth a warning under -Wall.
	WarnUnknownDirective Warning = iota
	// WarnRedefinition flags a #define that replaces a prior
	// definition with an incompatible body (different params, arity,
	// or token spelling) rather than an identical one.
	WarnRedefinition
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

// Config is the mutable settings object threaded through a single
// preprocessing run: one Config is shared by reference across every
// nested #include pipeline it spawns.
type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning

	// IncludePaths is searched, in order, for angle-bracket includes
	// (spec.md §9's resolved open question 2 — the original source has
	// no such list; gcpp adds one via -I).
	IncludePaths []string
	// MaxIncludeDepth bounds #include nesting (spec.md §4.3, §6):
	// default 15.
	MaxIncludeDepth int
	// Defines holds -D command-line macro predefinitions in NAME or
	// NAME=VALUE form, applied before the first file is read.
	Defines []string
	// Undefines holds -U command-line macro names to remove after
	// Defines is applied.
	Undefines []string
}

// NewConfig returns a Config with every feature/warning at its default
// and the spec-mandated 15-deep include recursion limit.
func NewConfig() *Config {
	cfg := &Config{
		Features:        make(map[Feature]Info),
		Warnings:        make(map[Warning]Info),
		FeatureMap:      make(map[string]Feature),
		WarningMap:      make(map[string]Warning),
		MaxIncludeDepth: 15,
	}

	features := map[Feature]Info{
		FeatAltTokens:    {"alt-tokens", true, "Recognize C++ alternative-token operators (and, or, bitand, ...) in #if expressions."},
		FeatPedanticElif: {"pedantic-elif", true, "Parse (but discard) #elif expressions in already-resolved branches."},
	}
	warnings := map[Warning]Info{
		WarnUnknownDirective: {"unknown-directive", true, "Warn when a `#` line names an unrecognized directive."},
		WarnRedefinition:     {"redefinition", true, "Warn when #define replaces a macro with an incompatible body."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}
	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// SetupFlagGroups registers a -W<name>/-Wno-<name> and a -F<name>/-Fno-<name>
// flag group on fs, mirroring the teacher compiler's cli.AddFlagGroup
// convention, and returns the per-flag *bool pairs indexed by Warning/
// Feature so the caller can apply them after parsing (cmd/gcpp applies
// the -no- form last, so it wins if both -W<name> and -Wno-<name> are
// passed).
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warningFlags, featureFlags []cli.FlagGroupEntry) {
	warningFlags = make([]cli.FlagGroupEntry, WarnCount)
	for wt := Warning(0); wt < WarnCount; wt++ {
		info := c.Warnings[wt]
		var enabled, disabled bool
		warningFlags[wt] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description,
			Enabled: &enabled, Disabled: &disabled,
		}
	}
	fs.AddFlagGroup("Warnings", "Toggle individual diagnostics.", "warning",
		"Available warnings", warningFlags)

	featureFlags = make([]cli.FlagGroupEntry, FeatCount)
	for ft := Feature(0); ft < FeatCount; ft++ {
		info := c.Features[ft]
		var enabled, disabled bool
		featureFlags[ft] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description,
			Enabled: &enabled, Disabled: &disabled,
		}
	}
	fs.AddFlagGroup("Features", "Toggle optional preprocessor behavior.", "feature",
		"Available features", featureFlags)

	return warningFlags, featureFlags
}

// ApplyFlag interprets one -W<name>/-Wno-<name>/-F<name>/-Fno-<name>
// command-line flag body (without its leading '-'), following the
// teacher compiler's applyFlag convention.
func (c *Config) ApplyFlag(flag string) {
	isNo := strings.HasPrefix(flag, "Wno-") || strings.HasPrefix(flag, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool
	switch {
	case strings.HasPrefix(flag, "W"):
		name = strings.TrimPrefix(flag, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(flag, "F"):
		name = strings.TrimPrefix(flag, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		return
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else if f, ok := c.FeatureMap[name]; ok {
		c.SetFeature(f, enable)
	}
}
