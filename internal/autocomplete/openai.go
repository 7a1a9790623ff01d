package autocomplete

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/openai/openai-go/v3"
	oaioption "github.com/openai/openai-go/v3/option"
)

type OpenAI struct {
	client openai.Client
	model  openai.ChatModel
}

// NewOpenAI talks to the OpenAI API, or to a compatible server at baseURL.
func NewOpenAI(apiKey, baseURL, model string, hc *http.Client) *OpenAI {
	m := openai.ChatModel(model)
	if model == "" {
		m = openai.ChatModelGPT5Nano
	}
	opts := []oaioption.RequestOption{oaioption.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, oaioption.WithBaseURL(baseURL))
	}
	if hc != nil {
		opts = append(opts, oaioption.WithHTTPClient(hc))
	}
	return &OpenAI{client: openai.NewClient(opts...), model: m}
}

func (o *OpenAI) Complete(ctx context.Context, text string) ([]string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(prompt, text)),
		},
		Model: o.model,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}
	return lines(resp.Choices[0].Message.Content), nil
}
