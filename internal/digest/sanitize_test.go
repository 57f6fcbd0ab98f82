package digest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "see you at 5", "see you at 5"},
		{"markup characters", "<b>Tom & Jerry</b>", "&lt;b&gt;Tom &amp; Jerry&lt;/b&gt;"},
		{"newlines and tabs", "first\r\nsecond\tthird", "first second third"},
		{"whitespace runs", "  lots   of\n\n space  ", "lots of space"},
		{"control characters", "a\x00b\x1fc", "a b c"},
		{"already escaped text is escaped again", "&amp;", "&amp;amp;"},
		{"invalid utf8", "ok\xffok", "ok�ok"},
		{"cjk untouched", "明天 開會", "明天 開會"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}
