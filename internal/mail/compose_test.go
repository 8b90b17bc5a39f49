package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxwei/maildigest/pkg/types"
)

func TestComposeMetadataPrefix(t *testing.T) {
	email := &types.Email{
		From:    "Alice <alice@example.com>",
		Subject: "每周简报",
		Date:    "Mon, 01 Sep 2025 10:00:00 +0800",
		Text:    "正文内容",
	}

	msgs := Compose(email)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
	require.NotEmpty(t, msgs[0].Parts)

	text := msgs[0].Parts[0]
	assert.Equal(t, types.PartText, text.Type)
	assert.Equal(t, "发件人: Alice <alice@example.com>\n主题: 每周简报\n日期: Mon, 01 Sep 2025 10:00:00 +0800\n\n正文内容", text.Text)
}

func TestComposeEmptyBodyStillHasTextPart(t *testing.T) {
	email := &types.Email{From: "a@example.com", Subject: "s", Date: "d"}

	msgs := Compose(email)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Parts, 1)
	assert.Equal(t, types.PartText, msgs[0].Parts[0].Type)
	assert.Equal(t, "发件人: a@example.com\n主题: s\n日期: d\n\n", msgs[0].Parts[0].Text)
}

func TestComposeImageParts(t *testing.T) {
	email := &types.Email{
		From:    "a@example.com",
		Subject: "s",
		Date:    "d",
		Text:    "body",
		Images:  []string{"http://example.com/1.png", "data:image/jpeg;base64,AAAA"},
	}

	msgs := Compose(email)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Parts, 3)

	for i, want := range email.Images {
		part := msgs[0].Parts[i+1]
		assert.Equal(t, types.PartImage, part.Type)
		assert.Equal(t, want, part.ImageURL)
		assert.Equal(t, "auto", part.Detail)
	}
}
