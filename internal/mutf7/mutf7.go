// Package mutf7 implements the modified UTF-7 encoding that the IMAP
// protocol uses for mailbox names (RFC 3501 section 5.1.3). It differs from
// standard UTF-7 in its shift character ('&' instead of '+') and in using
// ',' instead of '/' in the base64 alphabet.
package mutf7

import (
	"encoding/base64"
	"strings"
	"unicode/utf16"
)

var b64 = base64.NewEncoding(
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,",
).WithPadding(base64.NoPadding)

// Encode converts a mailbox name to the wire form expected by the IMAP
// server. Printable ASCII passes through, '&' becomes "&-", and every other
// run of characters is base64-encoded UTF-16BE between '&' and '-'.
func Encode(name string) string {
	var out strings.Builder
	var run []rune

	flush := func() {
		if len(run) == 0 {
			return
		}
		units := utf16.Encode(run)
		buf := make([]byte, 0, len(units)*2)
		for _, u := range units {
			buf = append(buf, byte(u>>8), byte(u))
		}
		out.WriteByte('&')
		out.WriteString(b64.EncodeToString(buf))
		out.WriteByte('-')
		run = run[:0]
	}

	for _, r := range name {
		switch {
		case r == '&':
			flush()
			out.WriteString("&-")
		case r >= 0x20 && r <= 0x7e:
			flush()
			out.WriteRune(r)
		default:
			run = append(run, r)
		}
	}
	flush()
	return out.String()
}

// Decode converts a wire-form mailbox name back to its human-readable form.
// Decoding is best-effort: malformed input is returned unchanged so that a
// single odd entry never aborts a directory listing.
func Decode(name string) string {
	var out strings.Builder
	for i := 0; i < len(name); {
		c := name[i]
		if c != '&' {
			out.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(name[i+1:], '-')
		if end < 0 {
			return name
		}
		seg := name[i+1 : i+1+end]
		if seg == "" {
			// "&-" is a literal ampersand.
			out.WriteByte('&')
		} else {
			raw, err := b64.DecodeString(seg)
			if err != nil || len(raw)%2 != 0 {
				return name
			}
			units := make([]uint16, 0, len(raw)/2)
			for j := 0; j < len(raw); j += 2 {
				units = append(units, uint16(raw[j])<<8|uint16(raw[j+1]))
			}
			out.WriteString(string(utf16.Decode(units)))
		}
		i += end + 2
	}
	return out.String()
}
