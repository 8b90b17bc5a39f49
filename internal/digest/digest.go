// Package digest parses the markdown convention emitted by the analysis
// model into a structured, queryable form. The format has no enforced
// schema, so the parser imposes structure deterministically: headings become
// sections, bullet entries become records, and colon-separated lines become
// fields. Insertion order is preserved everywhere and arbitrary field names
// are allowed.
package digest

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Field is one name/value pair inside a record.
type Field struct {
	Name  string
	Value string
}

// Record is an ordered list of fields parsed from one bullet entry.
type Record []Field

// Get returns the value of the first field with the exact name.
func (r Record) Get(name string) (string, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Section groups the records found under one heading.
type Section struct {
	Key     string
	Records []Record
}

// Digest is the structured form of an analysis response.
type Digest struct {
	Sections []Section
}

// Section returns the section with the given key, or nil.
func (d *Digest) Section(key string) *Section {
	for i := range d.Sections {
		if d.Sections[i].Key == key {
			return &d.Sections[i]
		}
	}
	return nil
}

// JSON serializes the digest canonically. Output is deterministic for a
// given digest: object keys appear in insertion order.
func (d *Digest) JSON() string {
	b, err := json.Marshal(d)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// MarshalJSON implements order-preserving serialization; encoding/json maps
// would randomize key order between runs.
func (d *Digest) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, section := range d.Sections {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(&buf, section.Key)
		buf.WriteByte(':')
		buf.WriteByte('[')
		for j, record := range section.Records {
			if j > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('{')
			for k, field := range record {
				if k > 0 {
					buf.WriteByte(',')
				}
				writeJSONString(&buf, field.Name)
				buf.WriteByte(':')
				writeJSONString(&buf, field.Value)
			}
			buf.WriteByte('}')
		}
		buf.WriteByte(']')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// Render writes the digest back out as canonical markdown. Parsing the
// rendered form yields an equal digest, so Render is a fixed point of the
// parse cycle.
func (d *Digest) Render() string {
	var b strings.Builder
	for i, section := range d.Sections {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("### ")
		b.WriteString(section.Key)
		b.WriteString("\n\n")
		for _, record := range section.Records {
			for k, field := range record {
				if k == 0 {
					b.WriteString("- ")
				} else {
					b.WriteString("  ")
				}
				b.WriteString(field.Name)
				b.WriteString(": ")
				b.WriteString(field.Value)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}
