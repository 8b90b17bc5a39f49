package mail

import (
	"fmt"

	"github.com/maxwei/maildigest/pkg/types"
)

// detailAuto lets the analysis service pick the image resolution itself.
const detailAuto = "auto"

// Compose packages a fetched message into the provider-agnostic analysis
// request: a single user message whose leading text part carries the
// From/Subject/Date metadata prepended to the body text, followed by one
// image part per surviving reference. The text part is always present, even
// for an empty body, because the downstream contract requires at least one
// text block.
func Compose(email *types.Email) []types.Message {
	metadata := fmt.Sprintf("发件人: %s\n主题: %s\n日期: %s\n\n", email.From, email.Subject, email.Date)

	parts := []types.Part{{Type: types.PartText, Text: metadata + email.Text}}
	for _, img := range email.Images {
		parts = append(parts, types.Part{
			Type:     types.PartImage,
			ImageURL: img,
			Detail:   detailAuto,
		})
	}

	return []types.Message{{Role: "user", Parts: parts}}
}
