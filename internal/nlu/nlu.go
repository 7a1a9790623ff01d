// Package nlu classifies utterances into the skill's intents and routes them
// to the dictation manager.
package nlu

import (
	"context"
	"regexp"
	"strings"

	"dictation/internal/dictation"
)

const (
	IntentStart        = "start_dictation"
	IntentStop         = "stop_dictation"
	IntentRead         = "read_dictation"
	IntentUndo         = "undo_dictation"
	IntentAutocomplete = "autocomplete"
	IntentUnknown      = "unknown"
)

type Result struct {
	Intent   string            `json:"intent"`
	Entities map[string]string `json:"entities"`
	Query    string            `json:"query"`
}

// Name returns the dictation name entity, if any.
func (r Result) Name() string { return r.Entities["name"] }

// Text returns the text entity, if any.
func (r Result) Text() string { return r.Entities["text"] }

type Classifier interface {
	Classify(ctx context.Context, utterance string) (Result, error)
}

// Vocabulary is the keyword set of the Keywords classifier. Start, Stop and
// Read need one of their words plus a Dictation word; Undo and Complete
// stand on their own, and while dictating they only count when they are the
// whole utterance.
type Vocabulary struct {
	Dictation []string
	Start     []string
	Stop      []string
	Read      []string
	Undo      []string
	Complete  []string
}

var English = Vocabulary{
	Dictation: []string{"dictation", "dictate", "dictating"},
	Start:     []string{"start", "begin", "take", "new", "open"},
	Stop:      []string{"stop", "end", "finish", "close", "save"},
	Read:      []string{"read", "what was", "tell me", "repeat"},
	Undo:      []string{"undo", "undo that", "scratch that", "delete that", "remove that", "delete last"},
	Complete:  []string{"autocomplete", "auto complete", "complete my sentence"},
}

// Keywords is a rule based classifier in the spirit of an adapt intent
// parser: required keyword sets, an optional name after "called" or "named".
type Keywords struct {
	dictation dictation.Keywords
	start     dictation.Keywords
	stop      dictation.Keywords
	read      dictation.Keywords
	undo      dictation.Keywords
	complete  []string
}

var _ Classifier = (*Keywords)(nil)

func NewKeywords(v Vocabulary) *Keywords {
	complete := make([]string, 0, len(v.Complete))
	for _, c := range v.Complete {
		if n := dictation.Normalize(c); n != "" {
			complete = append(complete, n)
		}
	}
	return &Keywords{
		dictation: dictation.NewKeywords(v.Dictation...),
		start:     dictation.NewKeywords(v.Start...),
		stop:      dictation.NewKeywords(v.Stop...),
		read:      dictation.NewKeywords(v.Read...),
		undo:      dictation.NewKeywords(v.Undo...),
		complete:  complete,
	}
}

var nameRe = regexp.MustCompile(`(?i)\b(?:called|named|titled)\s+(.+)$`)

func (k *Keywords) Classify(_ context.Context, utterance string) (Result, error) {
	res := Result{Intent: IntentUnknown, Entities: map[string]string{}, Query: utterance}
	about := k.dictation.Match(utterance)

	switch {
	case about && k.stop.Match(utterance):
		res.Intent = IntentStop
	case about && k.read.Match(utterance):
		res.Intent = IntentRead
	case about && k.start.Match(utterance):
		res.Intent = IntentStart
		if m := nameRe.FindStringSubmatch(utterance); m != nil {
			if name := strings.Trim(strings.TrimSpace(m[1]), ".,!?\"'"); name != "" {
				res.Entities["name"] = name
			}
		}
	case k.undo.Match(utterance):
		res.Intent = IntentUndo
	default:
		if text, ok := k.completion(utterance); ok {
			res.Intent = IntentAutocomplete
			res.Entities["text"] = text
		}
	}
	return res, nil
}

// completion matches utterances that lead with a completion keyword and
// returns the text after it.
func (k *Keywords) completion(utterance string) (string, bool) {
	n := dictation.Normalize(utterance)
	for _, kw := range k.complete {
		if n == kw {
			return "", true
		}
		if rest, ok := strings.CutPrefix(n, kw+" "); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}
