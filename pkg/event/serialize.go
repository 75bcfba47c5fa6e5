package event

import (
	"bytes"
	"fmt"
	"strconv"
)

// Serialize returns the canonical hash preimage
// [0,"<pubkey>",<created_at>,<kind>,<tags>,"<content>"]. The bytes are an
// interop contract shared with every other NIP-01 implementation: no
// insignificant whitespace, non-ASCII runes raw, and only the JSON
// escapes that are mandatory. encoding/json would take liberties with
// some of that, so the writer is spelled out here.
func (ev *Event) Serialize() []byte {
	var b bytes.Buffer
	b.Grow(len(ev.PubKey) + len(ev.Content) + 64)

	b.WriteString("[0,")
	writeEscapedString(&b, ev.PubKey)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(ev.CreatedAt, 10))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(ev.Kind))
	b.WriteByte(',')
	writeTags(&b, ev.Tags)
	b.WriteByte(',')
	writeEscapedString(&b, ev.Content)
	b.WriteByte(']')

	return b.Bytes()
}

// writeTags renders tags as a JSON array of string arrays. nil serializes
// as [], never null.
func writeTags(b *bytes.Buffer, tags [][]string) {
	b.WriteByte('[')
	for i, tag := range tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		for j, v := range tag {
			if j > 0 {
				b.WriteByte(',')
			}
			writeEscapedString(b, v)
		}
		b.WriteByte(']')
	}
	b.WriteByte(']')
}

// writeEscapedString writes s as a JSON string, escaping the quote, the
// backslash, and control characters. Everything else, multi-byte UTF-8
// included, passes through byte for byte.
func writeEscapedString(b *bytes.Buffer, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			b.WriteString(`\"`)
		case c == '\\':
			b.WriteString(`\\`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '\b':
			b.WriteString(`\b`)
		case c == '\f':
			b.WriteString(`\f`)
		case c < 0x20:
			fmt.Fprintf(b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}
