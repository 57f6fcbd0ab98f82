package digest

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/muilab/notigpt/internal/drawer"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

func info(minutes int, title, content string) drawer.NotiInfo {
	return drawer.NotiInfo{Time: baseTime.Add(time.Duration(minutes) * time.Minute), Title: title, Content: content}
}

func chatUnit(hash int64, content string) drawer.NotiUnit {
	return drawer.NotiUnit{
		SbnKey:    "chat|" + content,
		HashKey:   hash,
		AppName:   "Chat",
		IsPeople:  true,
		Title:     "Alice",
		NotiInfos: []drawer.NotiInfo{info(0, "Alice", content)},
	}
}

func utcFormatter(maxSize int) *Formatter {
	return NewFormatter(maxSize, ByteLen).WithLocation(time.UTC)
}

func TestFormatUnit_FlatListWithoutPrevious(t *testing.T) {
	unit := drawer.NotiUnit{
		HashKey:  7,
		AppName:  "Chat",
		IsPeople: true,
		Title:    "Alice",
		NotiInfos: []drawer.NotiInfo{
			info(0, "Alice", "hi"),
			info(5, "Alice", "lunch?"),
		},
	}

	want := "<whole_noti>\n" +
		"<id>7</id>\n" +
		"<app>Chat</app>\n" +
		"<overall_sender>Alice</overall_sender>\n" +
		"<message><time>2024-05-02 10:00</time><content>hi</content></message>\n" +
		"<message><time>2024-05-02 10:05</time><content>lunch?</content></message>\n" +
		"</whole_noti>\n\n"

	require.Equal(t, want, utcFormatter(0).FormatUnit(&unit))
}

func TestFormatUnit_PreviousAndNewSections(t *testing.T) {
	unit := drawer.NotiUnit{
		HashKey: 9,
		AppName: "News",
		Title:   "Headlines",
		PrevNotiInfos: []drawer.NotiInfo{
			info(0, "Markets", "stocks up"),
		},
		NotiInfos: []drawer.NotiInfo{
			info(30, "Weather", "rain later"),
		},
	}

	got := utcFormatter(0).FormatUnit(&unit)

	require.Contains(t, got, "<overall_title>Headlines</overall_title>\n")
	require.Contains(t, got, "<previous_infos>\n<info><time>2024-05-02 10:00</time><title>Markets</title><content>stocks up</content></info>\n</previous_infos>\n")
	require.Contains(t, got, "<new_infos>\n<info><time>2024-05-02 10:30</time><title>Weather</title><content>rain later</content></info>\n</new_infos>\n")
	require.Less(t, strings.Index(got, "<previous_infos>"), strings.Index(got, "<new_infos>"))
}

func TestFormatUnit_TitleOmission(t *testing.T) {
	tests := []struct {
		name       string
		infos      []drawer.NotiInfo
		prev       []drawer.NotiInfo
		wantTitles bool
	}{
		{
			name:       "one sender everywhere",
			infos:      []drawer.NotiInfo{info(0, "Bob", "a"), info(1, "Bob", "b")},
			prev:       []drawer.NotiInfo{info(-5, "Bob", "c")},
			wantTitles: false,
		},
		{
			name:       "blank titles do not count",
			infos:      []drawer.NotiInfo{info(0, "Bob", "a"), info(1, "", "b")},
			wantTitles: false,
		},
		{
			name:       "group chat",
			infos:      []drawer.NotiInfo{info(0, "Bob", "a"), info(1, "Carol", "b")},
			wantTitles: true,
		},
		{
			name:       "sender only differs from previous",
			infos:      []drawer.NotiInfo{info(0, "Bob", "a")},
			prev:       []drawer.NotiInfo{info(-5, "Carol", "c")},
			wantTitles: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := drawer.NotiUnit{AppName: "Chat", IsPeople: true, Title: "Team", NotiInfos: tt.infos, PrevNotiInfos: tt.prev}
			got := utcFormatter(0).FormatUnit(&unit)
			require.Equal(t, tt.wantTitles, strings.Contains(got, "<sender>"))
			require.Contains(t, got, "<overall_sender>Team</overall_sender>")
		})
	}
}

func TestChunks_SingleChunkUnderThreshold(t *testing.T) {
	units := []drawer.NotiUnit{chatUnit(1, "a"), chatUnit(2, "b"), chatUnit(3, "c")}

	chunks := BuildChunks(units, DefaultMaxChunkSize)
	require.Len(t, chunks, 1)
}

func TestChunks_ConcatenationReconstructsUnits(t *testing.T) {
	f := utcFormatter(300)
	var units []drawer.NotiUnit
	var want strings.Builder
	for i := 0; i < 20; i++ {
		u := chatUnit(int64(i), strings.Repeat("x", i*7))
		units = append(units, u)
		want.WriteString(f.FormatUnit(&u))
	}

	chunks := f.Chunks(units)
	require.Greater(t, len(chunks), 1)
	require.Equal(t, want.String(), strings.Join(chunks, ""))

	for _, c := range chunks {
		require.NotEmpty(t, c)
		require.True(t, strings.HasPrefix(c, "<whole_noti>"))
		require.True(t, strings.HasSuffix(c, "</whole_noti>\n\n"))
	}
}

func TestChunks_PacksUpToThreshold(t *testing.T) {
	f := utcFormatter(0)
	units := []drawer.NotiUnit{chatUnit(1, "aaaa"), chatUnit(2, "bbbb"), chatUnit(3, "cccc")}
	size := len(f.FormatUnit(&units[0]))

	f = utcFormatter(2 * size)
	chunks := f.Chunks(units)
	require.Len(t, chunks, 2)
	require.Len(t, chunks[0], 2*size)
	require.Len(t, chunks[1], size)
}

func TestChunks_OversizedUnitIsNeverSplit(t *testing.T) {
	f := utcFormatter(400)
	big := chatUnit(2, strings.Repeat("y", 1000))
	units := []drawer.NotiUnit{big, chatUnit(1, "small"), chatUnit(3, "small too")}

	chunks := f.Chunks(units)
	require.Len(t, chunks, 2)
	require.Equal(t, f.FormatUnit(&big), chunks[0])
	require.Greater(t, len(chunks[0]), 400)
	require.LessOrEqual(t, len(chunks[1]), 400)

	// Oversized in the middle: the open chunk is closed first.
	units = []drawer.NotiUnit{chatUnit(1, "small"), big, chatUnit(3, "small too")}
	chunks = f.Chunks(units)
	require.Len(t, chunks, 3)
	require.Equal(t, f.FormatUnit(&big), chunks[1])
}

func TestChunks_NoUnitsNoChunks(t *testing.T) {
	require.Empty(t, BuildChunks(nil, DefaultMaxChunkSize))
}

func TestChunks_CustomMeasure(t *testing.T) {
	// Every unit counts as one, so two units fit per chunk.
	f := NewFormatter(2, func(string) int { return 1 })
	units := []drawer.NotiUnit{chatUnit(1, "a"), chatUnit(2, "b"), chatUnit(3, "c"), chatUnit(4, "d"), chatUnit(5, "e")}

	require.Len(t, f.Chunks(units), 3)
}

func TestChunks_SanitizedOutputIsWellFormed(t *testing.T) {
	hostile := []string{
		"<script>alert(1)</script>",
		"fish & chips > 3 < 4",
		"line one\r\nline two\ttabbed",
		"nul\x00bell\x07esc\x1b",
		"</content></message></whole_noti>",
		"broken utf8 \xff\xfe end",
		"]]> <!-- not a comment -->",
	}

	var units []drawer.NotiUnit
	for i, text := range hostile {
		units = append(units, drawer.NotiUnit{
			HashKey:       int64(i),
			AppName:       text,
			IsPeople:      i%2 == 0,
			Title:         text,
			PrevNotiInfos: []drawer.NotiInfo{info(0, text, text)},
			NotiInfos:     []drawer.NotiInfo{info(1, "other "+text, text)},
		})
	}

	for _, chunk := range NewFormatter(600, ByteLen).Chunks(units) {
		dec := xml.NewDecoder(strings.NewReader("<root>" + chunk + "</root>"))
		for {
			_, err := dec.Token()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err, "chunk is not well-formed:\n%s", chunk)
		}
	}
}
