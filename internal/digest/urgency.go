package digest

import (
	"fmt"
	"regexp"
	"strings"
)

// Recognized spellings of the urgency section and field; the model switches
// between simplified and traditional forms.
var (
	urgencySectionKeys = []string{"邮件紧急程度评估", "郵件緊急程度評估"}
	urgencyFieldNames  = []string{"紧急程度", "緊急程度"}
)

const (
	canonicalUrgencySection = "邮件紧急程度评估"
	canonicalUrgencyField   = "**紧急程度**"
)

var urgencyBulletRe = regexp.MustCompile(`(-\s*\*\*(?:紧急|緊急)程度\*\*\s*[:：]\s*)(.*)`)

func isUrgencySection(key string) bool {
	for _, want := range urgencySectionKeys {
		if key == want {
			return true
		}
	}
	return false
}

// isUrgencyField tolerates markdown emphasis and stray bullet prefixes
// around the field name.
func isUrgencyField(name string) bool {
	for _, want := range urgencyFieldNames {
		if strings.Contains(name, want) {
			return true
		}
	}
	return false
}

// Urgency returns the current urgency value, if any.
func (d *Digest) Urgency() (string, bool) {
	for i := range d.Sections {
		section := &d.Sections[i]
		if !isUrgencySection(section.Key) || len(section.Records) == 0 {
			continue
		}
		for _, field := range section.Records[0] {
			if isUrgencyField(field.Name) {
				return field.Value, true
			}
		}
	}
	return "", false
}

// SetUrgency replaces the urgency value in the structured form. When the
// section, its first record, or the field is absent, it is synthesized
// rather than failing.
func (d *Digest) SetUrgency(value string) {
	for i := range d.Sections {
		section := &d.Sections[i]
		if !isUrgencySection(section.Key) {
			continue
		}
		if len(section.Records) == 0 {
			section.Records = append(section.Records, Record{})
		}
		record := &section.Records[0]
		for j := range *record {
			if isUrgencyField((*record)[j].Name) {
				(*record)[j].Value = value
				return
			}
		}
		*record = append(*record, Field{Name: canonicalUrgencyField, Value: value})
		return
	}
	d.Sections = append(d.Sections, Section{
		Key:     canonicalUrgencySection,
		Records: []Record{{Field{Name: canonicalUrgencyField, Value: value}}},
	})
}

// ReplaceUrgency rewrites the urgency value inside raw analysis markdown.
// The inline bullet is replaced in place when present; otherwise a new
// section is appended to the end of the text.
func ReplaceUrgency(md, value string) string {
	if urgencyBulletRe.MatchString(md) {
		return urgencyBulletRe.ReplaceAllStringFunc(md, func(m string) string {
			prefix := urgencyBulletRe.FindStringSubmatch(m)[1]
			return prefix + value
		})
	}
	return strings.TrimSpace(md) +
		fmt.Sprintf("\n\n### %s\n\n- %s: %s\n", canonicalUrgencySection, canonicalUrgencyField, value)
}
