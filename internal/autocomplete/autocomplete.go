// Package autocomplete provides the completion backends used to continue a
// dictated sentence.
package autocomplete

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"dictation/internal/dictation"
)

const (
	ProviderNone      = "none"
	ProviderHTTP      = "http"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultTimeout = 10 * time.Second
	maxTokens      = 64
)

type Config struct {
	Provider string
	// URL is the endpoint of the http provider and an optional base url
	// for the others.
	URL string
	// Path is the gjson path of the suggestions in an HTTP response.
	Path    string
	Model   string
	APIKey  string
	Timeout time.Duration
	Client  *http.Client
}

// New builds the configured backend. It returns nil for ProviderNone.
func New(cfg Config) (dictation.Completer, error) {
	if cfg.Client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		cfg.Client = &http.Client{Timeout: timeout}
	}

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderNone:
		return nil, nil
	case ProviderHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("autocomplete: %s provider needs a url", ProviderHTTP)
		}
		return NewHTTP(cfg.URL, cfg.Path, cfg.Client), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("autocomplete: %s provider needs an api key", ProviderOpenAI)
		}
		return NewOpenAI(cfg.APIKey, cfg.URL, cfg.Model, cfg.Client), nil
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("autocomplete: %s provider needs an api key", ProviderAnthropic)
		}
		return NewAnthropic(cfg.APIKey, cfg.URL, cfg.Model, cfg.Client), nil
	default:
		return nil, fmt.Errorf("autocomplete: unknown provider %q", cfg.Provider)
	}
}

const prompt = `Continue the following dictated sentence with a few words.
Reply with the continuation only, no quotes, no explanation.

%s`

// lines splits a model reply into suggestions.
func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.Trim(strings.TrimSpace(l), `"`); l != "" {
			out = append(out, l)
		}
	}
	return out
}
