package autocomplete

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// DefaultPath reads the suggestion list of a suggest-style reply:
// ["query", ["suggestion 1", "suggestion 2"]].
const DefaultPath = "1"

// HTTP queries a suggestion endpoint with ?q=<text> and picks the
// suggestions out of the JSON reply with a gjson path.
type HTTP struct {
	url    string
	path   string
	client *http.Client
}

func NewHTTP(endpoint, path string, client *http.Client) *HTTP {
	if path == "" {
		path = DefaultPath
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTP{url: endpoint, path: path, client: client}
}

func (h *HTTP) Complete(ctx context.Context, text string) ([]string, error) {
	u, err := url.Parse(h.url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("q", text)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion error %d: %s", resp.StatusCode, string(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json response")
	}

	res := gjson.GetBytes(body, h.path)
	if !res.Exists() {
		return nil, fmt.Errorf("no value at %q", h.path)
	}

	var out []string
	if res.IsArray() {
		for _, v := range res.Array() {
			if s := v.String(); s != "" {
				out = append(out, s)
			}
		}
	} else if s := res.String(); s != "" {
		out = append(out, s)
	}
	return out, nil
}
