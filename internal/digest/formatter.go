package digest

import (
	"strconv"
	"strings"
	"time"

	"github.com/muilab/notigpt/internal/drawer"
)

const (
	// DefaultMaxChunkSize is the chunk threshold when none is configured.
	DefaultMaxChunkSize = 5000

	itemTimeLayout = "2006-01-02 15:04"
)

// Measure returns the size of s in the unit the chunk threshold is expressed in.
type Measure func(s string) int

// ByteLen measures s in bytes.
func ByteLen(s string) int {
	return len(s)
}

// Formatter serializes units into tagged markup and packs them into chunks.
type Formatter struct {
	maxSize  int
	measure  Measure
	location *time.Location
}

// NewFormatter creates a formatter. A non-positive maxSize selects
// DefaultMaxChunkSize; a nil measure counts bytes.
func NewFormatter(maxSize int, measure Measure) *Formatter {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	if measure == nil {
		measure = ByteLen
	}
	return &Formatter{
		maxSize:  maxSize,
		measure:  measure,
		location: time.Local,
	}
}

// WithLocation sets the zone item times are rendered in.
func (f *Formatter) WithLocation(loc *time.Location) *Formatter {
	if loc != nil {
		f.location = loc
	}
	return f
}

// BuildChunks formats units in order and packs them into chunks of at most
// maxSize bytes. A unit is never split: one that does not fit in the current
// chunk starts the next one, even when it alone exceeds maxSize.
func BuildChunks(units []drawer.NotiUnit, maxSize int) []string {
	return NewFormatter(maxSize, ByteLen).Chunks(units)
}

// Chunks packs the serialized units into ordered chunks. Concatenating the
// result yields every unit's serialization in input order. No chunk is empty.
func (f *Formatter) Chunks(units []drawer.NotiUnit) []string {
	var (
		chunks  []string
		current strings.Builder
		size    int
	)

	for i := range units {
		serialized := f.FormatUnit(&units[i])
		n := f.measure(serialized)

		if current.Len() > 0 && size+n > f.maxSize {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}

		current.WriteString(serialized)
		size += n
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// FormatUnit renders one unit as a <whole_noti> block.
func (f *Formatter) FormatUnit(unit *drawer.NotiUnit) string {
	itemTag, titleTag := "info", "title"
	if unit.IsPeople {
		itemTag, titleTag = "message", "sender"
	}
	withTitles := !unit.TitlesIdentical()

	var b strings.Builder
	b.WriteString("<whole_noti>\n")
	b.WriteString("<id>" + strconv.FormatInt(unit.HashKey, 10) + "</id>\n")
	writeElement(&b, "app", Sanitize(unit.AppName))
	b.WriteByte('\n')
	writeElement(&b, "overall_"+titleTag, Sanitize(unit.Title))
	b.WriteByte('\n')

	if len(unit.PrevNotiInfos) > 0 {
		b.WriteString("<previous_" + itemTag + "s>\n")
		f.writeItems(&b, unit.PrevNotiInfos, itemTag, titleTag, withTitles)
		b.WriteString("</previous_" + itemTag + "s>\n")

		b.WriteString("<new_" + itemTag + "s>\n")
		f.writeItems(&b, unit.NotiInfos, itemTag, titleTag, withTitles)
		b.WriteString("</new_" + itemTag + "s>\n")
	} else {
		f.writeItems(&b, unit.NotiInfos, itemTag, titleTag, withTitles)
	}

	b.WriteString("</whole_noti>\n\n")
	return b.String()
}

func (f *Formatter) writeItems(b *strings.Builder, infos []drawer.NotiInfo, itemTag, titleTag string, withTitles bool) {
	for _, info := range infos {
		b.WriteString("<" + itemTag + ">")
		writeElement(b, "time", f.formatTime(info.Time))
		if withTitles {
			writeElement(b, titleTag, Sanitize(info.Title))
		}
		writeElement(b, "content", Sanitize(info.Content))
		b.WriteString("</" + itemTag + ">\n")
	}
}

func (f *Formatter) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(f.location).Format(itemTimeLayout)
}

func writeElement(b *strings.Builder, tag, text string) {
	b.WriteString("<" + tag + ">")
	b.WriteString(text)
	b.WriteString("</" + tag + ">")
}
