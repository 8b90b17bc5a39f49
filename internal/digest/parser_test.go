package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSectionRecordsFields(t *testing.T) {
	d := Parse("### 行动事项\n- 事项: Register\n  截止日期: Aug 1\n")

	require.Len(t, d.Sections, 1)
	assert.Equal(t, "行动事项", d.Sections[0].Key)
	require.Len(t, d.Sections[0].Records, 1)
	assert.Equal(t, Record{
		{Name: "事项", Value: "Register"},
		{Name: "截止日期", Value: "Aug 1"},
	}, d.Sections[0].Records[0])

	assert.Equal(t, `{"行动事项":[{"事项":"Register","截止日期":"Aug 1"}]}`, d.JSON())
}

func TestParseSplitsOnFirstColonOnly(t *testing.T) {
	d := Parse("### 日程\n- 时间: 10:30\n")
	require.Len(t, d.Sections, 1)
	require.Len(t, d.Sections[0].Records, 1)
	v, ok := d.Sections[0].Records[0].Get("时间")
	require.True(t, ok)
	assert.Equal(t, "10:30", v)
}

func TestParseColonlessLines(t *testing.T) {
	d := Parse("### 备注\n- 无需回复\n  这一行被忽略\n")
	require.Len(t, d.Sections, 1)
	require.Len(t, d.Sections[0].Records, 1)
	assert.Equal(t, Record{{Name: "无需回复", Value: ""}}, d.Sections[0].Records[0])
}

func TestParseMultipleSectionsAndRecords(t *testing.T) {
	md := "---\n" +
		"## 邮件摘要\n\n" +
		"- **主题**: 测试\n" +
		"- **发件人**: a@example.com\n\n" +
		"### 行动事项\n\n" +
		"- 事项: Register\n" +
		"  截止日期: Aug 1\n"

	d := Parse(md)
	require.Len(t, d.Sections, 2)

	summary := d.Section("邮件摘要")
	require.NotNil(t, summary, "## variant is normalized before sectioning")
	require.Len(t, summary.Records, 2)
	v, _ := summary.Records[0].Get("**主题**")
	assert.Equal(t, "测试", v)

	actions := d.Section("行动事项")
	require.NotNil(t, actions)
	require.Len(t, actions.Records, 1)
	assert.Len(t, actions.Records[0], 2)
}

func TestParseSectionKeyLowercasesAndJoins(t *testing.T) {
	d := Parse("### Action Items\n- item: x\n")
	require.Len(t, d.Sections, 1)
	assert.Equal(t, "action_items", d.Sections[0].Key)
}

func TestParseUnparsableYieldsEmptyDigest(t *testing.T) {
	d := Parse("just some prose\nwith no headings")
	assert.Empty(t, d.Sections)
	assert.Equal(t, "{}", d.JSON())
}

func TestParseRenderFixedPoint(t *testing.T) {
	inputs := []string{
		"### 行动事项\n- 事项: Register\n  截止日期: Aug 1\n",
		"---\n## 邮件摘要\n\n- **主题**: 测试\n- **发件人**: a@example.com\n",
		"### 郵件緊急程度評估\n\n- **紧急程度**: 中\n",
		"### 备注\n- 无需回复\n",
	}
	for _, md := range inputs {
		first := Parse(md)
		second := Parse(first.Render())
		assert.Equal(t, first, second, "input: %q", md)
	}
}

func TestNormalizeHeadingVariants(t *testing.T) {
	for _, variant := range []string{"## 邮件摘要", "## 郵件摘要", "### 意见摘要"} {
		got := Normalize(variant + "\n\n- a: b\n")
		assert.True(t, strings.HasPrefix(got, "### 邮件摘要\n"), "variant %q not canonicalized: %q", variant, got)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	md := "### 邮件摘要\n\n- a: b\n"
	assert.Equal(t, md, Normalize(md))
	assert.Equal(t, Normalize(md), Normalize(Normalize(md)))
}

func TestNormalizeStripsLeadingRule(t *testing.T) {
	got := Normalize("---\n### 邮件摘要\n- a: b\n")
	assert.Equal(t, "### 邮件摘要\n- a: b", got)
}

func TestJSONDeterministic(t *testing.T) {
	md := "### 邮件摘要\n- b: 2\n- a: 1\n\n### 行动事项\n- z: 26\n"
	d := Parse(md)
	assert.Equal(t, d.JSON(), d.JSON())
	assert.Equal(t, d.JSON(), Parse(md).JSON())
	assert.Equal(t, `{"邮件摘要":[{"b":"2"},{"a":"1"}],"行动事项":[{"z":"26"}]}`, d.JSON())
}

func TestJSONEscapesValues(t *testing.T) {
	d := &Digest{Sections: []Section{{
		Key:     "notes",
		Records: []Record{{{Name: "q", Value: `say "hi"` + "\n"}}},
	}}}
	assert.Equal(t, `{"notes":[{"q":"say \"hi\"\n"}]}`, d.JSON())
}
