package digest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadPrompts_Embedded(t *testing.T) {
	for _, locale := range []string{"", "en", "zh-TW"} {
		set, err := LoadPrompts("", locale)
		require.NoError(t, err, locale)

		for _, mode := range []Mode{ModeCategorize, ModeSort, ModeSummarize, ModeRank} {
			pair := set[mode]
			require.NotEmpty(t, pair.Lead, "%s/%s lead", locale, mode)
			require.NotEmpty(t, pair.End, "%s/%s end", locale, mode)
		}
	}
}

func TestLoadPrompts_UnknownLocaleFallsBack(t *testing.T) {
	en, err := LoadPrompts("", "en")
	require.NoError(t, err)

	set, err := LoadPrompts("", "fr")
	require.NoError(t, err)
	require.Equal(t, en.For(ModeSummarize), set.For(ModeSummarize))
}

func TestPromptSet_UnknownModeIsEmpty(t *testing.T) {
	set, err := LoadPrompts("", "en")
	require.NoError(t, err)
	require.Equal(t, PromptPair{}, set.For(Mode("translate")))

	// rank ships in the bundled file but is not a pipeline mode.
	require.NotEmpty(t, set[ModeRank].Lead)
	require.Equal(t, PromptPair{}, set.For(ModeRank))

	custom := PromptSet{ModeSummarize: {Lead: "l", End: "e"}, Mode("translate"): {Lead: "tl", End: "te"}}
	require.Equal(t, PromptPair{}, custom.For(Mode("translate")))
}

func TestLoadPrompts_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	doc := `
ja:
  summarize: {lead: "要約リード", end: "要約エンド"}
  categorize: {lead: "c-lead", end: "c-end"}
  sort: {lead: "s-lead", end: "s-end"}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	set, err := LoadPrompts(path, "ja")
	require.NoError(t, err)
	require.Equal(t, PromptPair{Lead: "要約リード", End: "要約エンド"}, set.For(ModeSummarize))
	require.Equal(t, PromptPair{}, set.For(ModeRank))
}

func TestParsePrompts_Errors(t *testing.T) {
	_, err := ParsePrompts([]byte("en: ["), "en")
	require.Error(t, err)

	_, err = ParsePrompts([]byte("de:\n  summarize: {lead: a, end: b}\n"), "fr")
	require.ErrorContains(t, err, "no prompts")

	_, err = ParsePrompts([]byte("en:\n  summarize: {lead: a, end: b}\n"), "en")
	require.ErrorContains(t, err, "missing mode")

	_, err = LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml"), "en")
	require.Error(t, err)
}

func TestMeasureFor(t *testing.T) {
	m, err := MeasureFor("")
	require.NoError(t, err)
	require.Equal(t, 5, m("hello"))

	m, err = MeasureFor(MeasureBytes)
	require.NoError(t, err)
	require.Equal(t, 6, m("héllo"))

	_, err = MeasureFor("words")
	require.Error(t, err)
}
