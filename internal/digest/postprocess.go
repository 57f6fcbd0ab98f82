package digest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/longbridgeapp/opencc"
)

// Normalizer rewrites a model reply into the script the reader expects.
type Normalizer interface {
	Normalize(s string) string
}

type identityNormalizer struct{}

func (identityNormalizer) Normalize(s string) string { return s }

// OpenCCNormalizer converts between Chinese scripts with an OpenCC scheme.
type OpenCCNormalizer struct {
	mu sync.Mutex
	cc *opencc.OpenCC
}

// NewNormalizer returns the normalizer for an OpenCC scheme such as "s2twp".
// An empty scheme leaves replies unchanged.
func NewNormalizer(scheme string) (Normalizer, error) {
	if scheme == "" {
		return identityNormalizer{}, nil
	}
	cc, err := opencc.New(scheme)
	if err != nil {
		return nil, fmt.Errorf("load opencc scheme %q: %w", scheme, err)
	}
	return &OpenCCNormalizer{cc: cc}, nil
}

// Normalize converts s; on a conversion error s is returned as is.
func (n *OpenCCNormalizer) Normalize(s string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	out, err := n.cc.Convert(s)
	if err != nil {
		return s
	}
	return out
}

// CleanReply undoes the escaping models tend to leave in plain-text replies:
// literal "\n" sequences become newlines, remaining backslashes are dropped and
// one pair of surrounding double quotes is removed.
func CleanReply(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\`, "")
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	return s
}
