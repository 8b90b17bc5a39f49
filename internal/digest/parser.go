package digest

import (
	"regexp"
	"strings"
)

// canonicalHeading is the fixed spelling every "mail summary" heading
// variant is rewritten to before sectioning.
const canonicalHeading = "### 邮件摘要"

var headingVariants = []string{
	"## 邮件摘要",
	"## 郵件摘要",
	"### 意见摘要",
}

var headingRe = regexp.MustCompile(`(?m)^###\s*(.+)$`)

// Normalize canonicalizes the known summary-heading variants and strips a
// leading horizontal-rule marker. Already-normalized text passes through
// unchanged, which makes the normalize-parse cycle a fixed point.
func Normalize(md string) string {
	if !strings.Contains(md, canonicalHeading) {
		for _, variant := range headingVariants {
			md = strings.ReplaceAll(md, variant, canonicalHeading)
		}
	}
	if trimmed := strings.TrimSpace(md); strings.HasPrefix(trimmed, "---") {
		md = strings.TrimSpace(strings.TrimPrefix(trimmed, "---"))
	}
	return md
}

// Parse converts analysis markdown into a Digest. Structurally unparsable
// input yields an empty digest rather than an error; the raw markdown
// remains the authoritative source either way.
func Parse(md string) *Digest {
	md = Normalize(md)
	d := &Digest{}

	locs := headingRe.FindAllStringSubmatchIndex(md, -1)
	for i, loc := range locs {
		title := strings.TrimSpace(md[loc[2]:loc[3]])
		bodyEnd := len(md)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		d.Sections = append(d.Sections, Section{
			Key:     sectionKey(title),
			Records: parseRecords(md[loc[1]:bodyEnd]),
		})
	}
	return d
}

// sectionKey lower-cases the heading text and joins words with underscores.
func sectionKey(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "_")
}

// parseRecords splits a section body into records. A top-level bullet opens
// a record; its first line is split once on the first colon, and every
// following line containing a colon adds another field. Lines without a
// colon are ignored.
func parseRecords(body string) []Record {
	var records []Record
	var current Record
	open := false

	flush := func() {
		if open {
			records = append(records, current)
			current = nil
			open = false
		}
	}

	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "- "):
			flush()
			open = true
			name, value := splitField(strings.TrimSpace(line[2:]))
			current = append(current, Field{Name: name, Value: value})
		case open:
			text := strings.TrimSpace(line)
			text = strings.TrimPrefix(text, "- ")
			if name, value, ok := strings.Cut(text, ":"); ok {
				current = append(current, Field{
					Name:  strings.TrimSpace(name),
					Value: strings.TrimSpace(value),
				})
			}
		}
	}
	flush()
	return records
}

// splitField splits a bullet's first line on its first colon. Without a
// colon the whole line becomes the field name with an empty value.
func splitField(entry string) (string, string) {
	name, value, ok := strings.Cut(entry, ":")
	if !ok {
		return strings.TrimSpace(entry), ""
	}
	return strings.TrimSpace(name), strings.TrimSpace(value)
}
