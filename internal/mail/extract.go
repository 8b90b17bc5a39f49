package mail

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/jhillyerd/enmime"
	"golang.org/x/net/html"
)

// Content is the machine-analyzable form of a mail body: the decoded body
// markup, its plain text, and the image references that survived filtering,
// in document order.
type Content struct {
	Body   string
	Text   string
	Images []string
}

// parser keeps text parts in their transfer-decoded original bytes so the
// detection-first charset chain owns the conversion to UTF-8; enmime's own
// conversion trusts a declared charset even when it is wrong for the bytes.
var parser = enmime.NewParser(enmime.DisableTextConversion(true))

// Extract converts a raw message body into Content. Multipart bodies prefer
// the HTML alternative; the plain-text alternative is used only when no HTML
// part is present. Bodies that are not valid MIME at all are run through the
// charset fallback chain and treated as markup.
func Extract(raw []byte) Content {
	env, err := parser.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return fromBody(DecodeText(raw, ""))
	}
	return FromEnvelope(env)
}

// FromEnvelope extracts Content from an already-parsed MIME envelope. Each
// candidate part is decoded from its original bytes through DecodeText, so
// statistical detection runs before the part's declared charset is trusted.
func FromEnvelope(env *enmime.Envelope) Content {
	for _, ctype := range []string{"text/html", "text/plain"} {
		part := env.Root.DepthMatchFirst(func(p *enmime.Part) bool {
			return p.ContentType == ctype && len(p.Content) > 0
		})
		if part != nil {
			return fromBody(DecodeText(part.Content, part.Charset))
		}
	}
	if root := env.Root; root != nil && len(root.Content) > 0 {
		return fromBody(DecodeText(root.Content, root.Charset))
	}
	return Content{}
}

func fromBody(body string) Content {
	content := extractMarkup(body)
	content.Body = body
	return content
}

// extractMarkup pulls text and image references out of a body string. Plain
// text passes through the HTML parser unchanged, so one path serves both.
func extractMarkup(markup string) Content {
	var content Content
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		content.Text = strings.TrimSpace(markup)
		return content
	}

	var paragraphs []string
	sawParagraph := false
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img":
				if src := attrValue(n, "src"); src != "" && !isGIF(src) {
					content.Images = append(content.Images, canonicalizeDataURI(src))
				}
			case "p":
				sawParagraph = true
				paragraphs = append(paragraphs, strings.TrimSpace(nodeText(n)))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if sawParagraph {
		content.Text = strings.Join(paragraphs, "\n")
	} else {
		content.Text = documentText(doc)
	}
	return content
}

// isGIF checks the URL path only; query strings do not disqualify an image.
func isGIF(src string) bool {
	path := src
	if u, err := url.Parse(src); err == nil {
		path = u.Path
	} else if i := strings.IndexByte(src, '?'); i >= 0 {
		path = src[:i]
	}
	return strings.HasSuffix(strings.ToLower(path), ".gif")
}

// canonicalizeDataURI strips trailing parameters (e.g. charset) from the MIME
// type declaration of an embedded data URI and re-assembles the payload.
// Non-data references pass through unmodified.
func canonicalizeDataURI(src string) string {
	if !strings.HasPrefix(src, "data:image") {
		return src
	}
	header, data, ok := strings.Cut(src, ",")
	if !ok {
		return src
	}
	mimeType, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";")
	return "data:" + mimeType + ";base64," + data
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// nodeText concatenates every text node under n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// documentText is the whole-document fallback: each text node trimmed,
// empties dropped, joined by newline. Script and style bodies are not text.
func documentText(doc *html.Node) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(parts, "\n")
}
