package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

const systemPrompt = `
You are the intent classifier of a dictation skill.
Your ONLY job is to convert the user's utterance into a minimal structured JSON.

GENERAL RULES:
1. Do NOT converse.
2. Do NOT answer the question.
3. Output ONLY JSON. No markdown.

OUTPUT FORMAT:
{
  "intent": "<string>",
  "entities": { ... },
  "query": "<original user text>"
}

INTENTS:
- "start_dictation"   the user wants to begin a dictation, optionally naming it
- "stop_dictation"    the user wants to end the current dictation
- "read_dictation"    the user wants to hear the last saved dictation
- "undo_dictation"    the user wants to remove what they just dictated
- "autocomplete"      the user asks to complete a sentence
- "unknown"           anything else, including ordinary sentences being dictated

ENTITIES:
{
  "name": "<dictation name or omitted>",
  "text": "<text to complete or omitted>"
}

Plain sentences that do not address the assistant are "unknown".
Never invent missing values.
`

// LLM classifies with a chat completion model.
type LLM struct {
	client openai.Client
	model  openai.ChatModel
}

var _ Classifier = (*LLM)(nil)

func NewLLM(client openai.Client, model string) *LLM {
	m := openai.ChatModel(model)
	if model == "" {
		m = openai.ChatModelGPT5Nano
	}
	return &LLM{client: client, model: m}
}

func (l *LLM) Classify(ctx context.Context, utterance string) (Result, error) {
	resp, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(utterance),
		},
		Model: l.model,
	})
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Result{}, errors.New("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return Result{}, errors.New("empty message content")
	}

	log.Debug("Classified", "data", content)
	return parseResult(content, utterance)
}

func parseResult(content, utterance string) (Result, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out Result
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Result{}, fmt.Errorf("unmarshal NLU result: %w (raw: %s)", err, content)
	}

	switch out.Intent {
	case IntentStart, IntentStop, IntentRead, IntentUndo, IntentAutocomplete:
	default:
		out.Intent = IntentUnknown
	}
	if out.Entities == nil {
		out.Entities = map[string]string{}
	}
	out.Query = utterance
	return out, nil
}
