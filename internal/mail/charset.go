package mail

import (
	"io"
	"mime"
	"strings"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// DecodeText converts a raw text payload to a UTF-8 string. Candidate
// charsets are tried in order: byte-level statistical detection, the part's
// declared charset, UTF-8. The last resort is Latin-1, which maps every byte,
// so decoding degrades to substitution characters instead of failing.
func DecodeText(payload []byte, declared string) string {
	if len(payload) == 0 {
		return ""
	}
	if name := detectCharset(payload); name != "" {
		if enc := resolveEncoding(name); enc != nil {
			if decoded, err := enc.NewDecoder().Bytes(payload); err == nil {
				return string(decoded)
			}
		}
	}
	return decodeWithFallback(payload, declared)
}

// DecodeHeader decodes RFC 2047 encoded words in a header value using the
// declared charset with the same fallback chain as body text, minus the
// statistical detection (header words are too short for it). It never fails;
// an undecodable header is returned in its raw form.
func DecodeHeader(raw string) string {
	if raw == "" {
		return ""
	}
	decoded, err := headerDecoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

var headerDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		payload, err := io.ReadAll(input)
		if err != nil {
			return nil, err
		}
		return strings.NewReader(decodeWithFallback(payload, charset)), nil
	},
}

// decodeWithFallback tries the declared charset, then UTF-8, then Latin-1
// with substitution on undecodable bytes.
func decodeWithFallback(payload []byte, declared string) string {
	for _, name := range []string{declared, "utf-8"} {
		if name == "" {
			continue
		}
		enc := resolveEncoding(name)
		if enc == nil {
			continue
		}
		if decoded, err := enc.NewDecoder().Bytes(payload); err == nil {
			return string(decoded)
		}
	}
	return latin1String(payload)
}

func detectCharset(payload []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(payload)
	if err != nil {
		return ""
	}
	return result.Charset
}

// resolveEncoding looks a charset name up in the WHATWG index first and the
// IANA registry second; detector output and mail headers disagree on naming.
// A second pass without hyphens catches detector spellings like "GB-18030"
// that neither registry accepts.
func resolveEncoding(name string) encoding.Encoding {
	if enc := lookupRegistry(name); enc != nil {
		return enc
	}
	return lookupRegistry(strings.ReplaceAll(name, "-", ""))
}

func lookupRegistry(name string) encoding.Encoding {
	if enc, err := htmlindex.Get(name); err == nil {
		return enc
	}
	if enc, err := ianaindex.MIME.Encoding(name); err == nil && enc != nil {
		return enc
	}
	return nil
}

func latin1String(payload []byte) string {
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(payload)
	if err != nil {
		return string(payload)
	}
	return string(decoded)
}
