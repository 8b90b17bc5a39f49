package analysis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/maxwei/maildigest/internal/config"
	"github.com/maxwei/maildigest/pkg/types"
)

// Client sends composed mail content to the analysis service and returns the
// raw markdown text of the model's response.
type Client struct {
	api       *openai.Client
	model     string
	templates *TemplateStore
	logger    *logrus.Logger
	now       func() time.Time
}

// NewClient creates an analysis client from the configuration.
func NewClient(cfg *config.Config, templates *TemplateStore, logger *logrus.Logger) *Client {
	apiCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		apiCfg.BaseURL = cfg.OpenAIBaseURL
	}
	return &Client{
		api:       openai.NewClientWithConfig(apiCfg),
		model:     cfg.OpenAIModel,
		templates: templates,
		logger:    logger,
		now:       time.Now,
	}
}

// Analyze sends the composed content with the named instruction template.
// Three system messages are always prepended in fixed order: the language
// directive, a fresh current-date statement, and the template body. With
// includeImages false, image parts are stripped and part-less messages
// dropped before sending. Failures are reported as *CallError.
func (c *Client) Analyze(ctx context.Context, msgs []types.Message, templateName string, includeImages bool) (string, error) {
	template, err := c.templates.Get(templateName)
	if err != nil {
		return "", err
	}

	content := msgs
	if !includeImages {
		content = stripImages(content)
	}

	dateMessage := fmt.Sprintf("今天是%s，请在你的回答中考虑这个信息。", formatChineseDate(c.now()))
	request := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "使用中文回复，请注意语言。"},
			{Role: openai.ChatMessageRoleSystem, Content: dateMessage},
			{Role: openai.ChatMessageRoleSystem, Content: template},
		}, toChatMessages(content)...),
		Temperature:      1.0,
		TopP:             1.0,
		PresencePenalty:  0.0,
		FrequencyPenalty: 0.0,
	}

	c.logger.WithFields(logrus.Fields{
		"model":    c.model,
		"template": templateName,
		"images":   includeImages,
	}).Info("Calling analysis service")

	resp, err := c.api.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &CallError{Kind: KindOther, Err: fmt.Errorf("analysis service returned no choices")}
	}
	return unfence(resp.Choices[0].Message.Content), nil
}

// stripImages removes every image part; messages left without parts are
// dropped entirely rather than sent empty.
func stripImages(msgs []types.Message) []types.Message {
	out := make([]types.Message, 0, len(msgs))
	for _, msg := range msgs {
		var parts []types.Part
		for _, part := range msg.Parts {
			if part.Type == types.PartText {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			out = append(out, types.Message{Role: msg.Role, Parts: parts})
		}
	}
	return out
}

func toChatMessages(msgs []types.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		parts := make([]openai.ChatMessagePart, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case types.PartImage:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    part.ImageURL,
						Detail: openai.ImageURLDetail(part.Detail),
					},
				})
			default:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			}
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:         msg.Role,
			MultiContent: parts,
		})
	}
	return out
}

// unfence strips a markdown code fence explicitly labeled as markdown that
// wraps the whole response.
func unfence(s string) string {
	if !strings.HasPrefix(s, "```markdown\n") {
		return s
	}
	s = strings.TrimPrefix(s, "```markdown\n")
	s = strings.TrimRight(s, " \n")
	s = strings.TrimSuffix(s, "```")
	return s
}

// classify wraps a provider error, distinguishing a timeout from other
// failure kinds for the retry policy.
func classify(err error) error {
	kind := KindOther
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case strings.Contains(err.Error(), "timed out"),
		strings.Contains(err.Error(), "timeout"):
		kind = KindTimeout
	}
	return &CallError{Kind: kind, Err: err}
}

func formatChineseDate(t time.Time) string {
	return fmt.Sprintf("%d年%02d月%02d日", t.Year(), int(t.Month()), t.Day())
}
