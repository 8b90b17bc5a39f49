package types

// Email represents a single fetched mail message. Header fields hold the
// decoded display form; Date keeps the raw Date header string because the
// dedup key compares it byte-for-byte.
type Email struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Subject string   `json:"subject"`
	Date    string   `json:"date"`
	Body    string   `json:"body"`
	Text    string   `json:"text"`
	Images  []string `json:"images,omitempty"`
	Raw     []byte   `json:"-"`
}

// PartType identifies the kind of a content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
)

// Part is one unit of content inside an analysis request message: either
// plain text or an image reference with a detail hint.
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// Message is one role-tagged entry in an analysis request.
type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"content"`
}
