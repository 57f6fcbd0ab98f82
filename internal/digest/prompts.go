package digest

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// DefaultLocale is used when the requested locale has no prompt set.
const DefaultLocale = "en"

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptPair is the instruction sent before and after a chunk.
type PromptPair struct {
	Lead string `yaml:"lead"`
	End  string `yaml:"end"`
}

// PromptSet maps a mode to its instruction pair.
type PromptSet map[Mode]PromptPair

// For returns the pair for mode. Modes outside categorize, sort and summarize
// get an empty pair, whatever the prompt file holds for them.
func (p PromptSet) For(mode Mode) PromptPair {
	if !mode.Known() {
		return PromptPair{}
	}
	return p[mode]
}

// LoadPrompts reads the prompt file at path, or the bundled set when path is
// empty, and picks locale from it.
func LoadPrompts(path, locale string) (PromptSet, error) {
	data := defaultPrompts
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompts file: %w", err)
		}
		data = b
	}
	return ParsePrompts(data, locale)
}

// ParsePrompts decodes a locale-keyed prompt document. A locale missing from
// the document falls back to DefaultLocale.
func ParsePrompts(data []byte, locale string) (PromptSet, error) {
	var byLocale map[string]map[Mode]PromptPair
	if err := yaml.Unmarshal(data, &byLocale); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}

	if locale == "" {
		locale = DefaultLocale
	}
	set, ok := byLocale[locale]
	if !ok {
		set, ok = byLocale[DefaultLocale]
	}
	if !ok {
		return nil, fmt.Errorf("no prompts for locale %q or %q", locale, DefaultLocale)
	}

	for _, mode := range []Mode{ModeCategorize, ModeSort, ModeSummarize} {
		if _, ok := set[mode]; !ok {
			return nil, fmt.Errorf("prompts for locale %q are missing mode %q", locale, mode)
		}
	}

	return PromptSet(set), nil
}
