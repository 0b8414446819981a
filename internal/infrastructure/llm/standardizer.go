package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"GradScrape/internal/config"
	"GradScrape/internal/domain"
	"GradScrape/internal/ports"
)

const standardizePath = "/standardize"

// Client implements ports.Standardizer against the program/university
// standardization service.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

var _ ports.Standardizer = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.LLMConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Standardize posts the batch and returns one row per input row, in order.
// The service may answer with a bare list or with {"rows": [...]}.
func (c *Client) Standardize(ctx context.Context, refs []domain.ProgramRef) ([]domain.ProgramRef, error) {
	if c == nil || c.endpoint == "" {
		return nil, fmt.Errorf("standardizer endpoint is not configured")
	}
	if len(refs) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(map[string]any{"rows": refs})
	if err != nil {
		return nil, fmt.Errorf("marshal standardize payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+standardizePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("standardize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("standardizer error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return rows, nil
}

func decodeRows(raw []byte) ([]domain.ProgramRef, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []domain.ProgramRef
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	var wrapped struct {
		Rows []domain.ProgramRef `json:"rows"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Rows, nil
}
