package digest

import (
	"strings"
	"time"
)

// ChunkStatus is the outcome of one chunk call.
type ChunkStatus string

const (
	StatusOK            ChunkStatus = "ok"
	StatusProviderError ChunkStatus = "provider_error"
	StatusUnknown       ChunkStatus = "unknown"
)

// UnknownErrorText stands in for a chunk whose call failed without a provider message.
const UnknownErrorText = "Unknown"

// ChunkResult is what one chunk contributed to a digest. Failed chunks carry
// their error text in Text so the joined digest stays positionally complete.
type ChunkResult struct {
	Index  int         `json:"index"`
	Text   string      `json:"text"`
	Status ChunkStatus `json:"status"`
	Err    error       `json:"-"`
}

// Failed reports whether the chunk call did not produce a model reply.
func (r ChunkResult) Failed() bool {
	return r.Status != StatusOK
}

// Digest is the outcome of one pipeline run.
type Digest struct {
	ID         string        `json:"id"`
	Mode       Mode          `json:"mode"`
	Text       string        `json:"text"`
	Chunks     []ChunkResult `json:"chunks,omitempty"`
	ChunkCount int           `json:"chunk_count"`
	Failed     int           `json:"failed_chunks"`
	UnitCount  int           `json:"unit_count"`
	Duration   time.Duration `json:"duration_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Degraded reports whether any chunk failed.
func (d *Digest) Degraded() bool {
	return d.Failed > 0
}

// Join concatenates chunk texts in input order, separated by a single newline.
func Join(results []ChunkResult) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return strings.Join(texts, "\n")
}

func countFailed(results []ChunkResult) int {
	n := 0
	for _, r := range results {
		if r.Failed() {
			n++
		}
	}
	return n
}
