package digest

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const (
	MeasureBytes  = "bytes"
	MeasureTokens = "tokens"

	// tokenEncoding is the BPE used by the gpt-4 family.
	tokenEncoding = "cl100k_base"
)

// MeasureFor returns the chunk size measure named by DIGEST_CHUNK_MEASURE.
func MeasureFor(name string) (Measure, error) {
	switch name {
	case "", MeasureBytes:
		return ByteLen, nil
	case MeasureTokens:
		return TokenMeasure(tokenEncoding)
	default:
		return nil, fmt.Errorf("unknown chunk measure %q (want %q or %q)", name, MeasureBytes, MeasureTokens)
	}
}

// TokenMeasure counts tokens with the named tiktoken encoding. The rank file
// is fetched on first use and cached under TIKTOKEN_CACHE_DIR when set.
func TokenMeasure(encoding string) (Measure, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}, nil
}
