package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/LeventeLantos/outreach-engine/internal/model"
)

// RunParams are forwarded to the scraping service with the target profile.
type RunParams struct {
	Limit       int               `json:"limit"`
	Credentials model.Credentials `json:"credentials"`
	Import      map[string]any    `json:"importParams,omitempty"`
}

// ScraperClient runs one blocking batch job against the third-party
// scraping service and returns the raw items it produced.
type ScraperClient struct {
	url    string
	token  string
	client *http.Client
}

func NewScraperClient(url, token string, timeout time.Duration) *ScraperClient {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &ScraperClient{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type runRequest struct {
	Target string `json:"target"`
	RunParams
}

func (c *ScraperClient) Run(ctx context.Context, target string, params RunParams) ([]map[string]any, error) {
	reqBody, err := json.Marshal(runRequest{Target: target, RunParams: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read scraper response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, truncate(body, 512))
	}

	return decodeItems(body)
}

// decodeItems accepts either a bare JSON array or an object wrapping the
// array under "items" or "data".
func decodeItems(body []byte) ([]map[string]any, error) {
	var items []map[string]any
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}

	var wrapped struct {
		Items []map[string]any `json:"items"`
		Data  []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w body=%q", err, truncate(body, 512))
	}
	if wrapped.Items != nil {
		return wrapped.Items, nil
	}
	return wrapped.Data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
