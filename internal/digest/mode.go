package digest

// Mode selects the instruction pair sent around each chunk.
type Mode string

const (
	ModeCategorize Mode = "categorize"
	ModeSort       Mode = "sort"
	ModeSummarize  Mode = "summarize"

	// ModeRank has prompts in the bundled set but is not a pipeline mode;
	// running it sends empty instructions like any other unknown mode.
	ModeRank Mode = "rank"
)

// Known reports whether m is one of the modes the pipeline has instructions for.
// Unknown modes still run, with empty instructions.
func (m Mode) Known() bool {
	switch m {
	case ModeCategorize, ModeSort, ModeSummarize:
		return true
	}
	return false
}
