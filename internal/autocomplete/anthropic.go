package autocomplete

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultAnthropicModel = anthropic.ModelClaude3_7SonnetLatest

type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewAnthropic(apiKey, baseURL, model string, hc *http.Client) *Anthropic {
	m := anthropic.Model(model)
	if model == "" {
		m = DefaultAnthropicModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if hc != nil {
		opts = append(opts, option.WithHTTPClient(hc))
	}
	return &Anthropic{client: anthropic.NewClient(opts...), model: m}
}

func (a *Anthropic) Complete(ctx context.Context, text string) ([]string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf(prompt, text))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}

	var out []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			out = append(out, lines(tb.Text)...)
		}
	}
	return out, nil
}
