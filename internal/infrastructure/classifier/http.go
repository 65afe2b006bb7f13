package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ArticleHarvester/internal/domain"
	"ArticleHarvester/internal/ports"
)

const defaultTimeout = 15 * time.Second

// Client talks to an external classification service.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Categorizer = (*Client)(nil)

// NewClient creates a reusable HTTP client. A zero timeout uses the default.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

type classifyResponse struct {
	Categories []domain.Category `json:"categories"`
}

// Classify sends the title and tags and returns the service's ordered answer.
func (c *Client) Classify(ctx context.Context, title string, tags []string) ([]domain.Category, error) {
	if tags == nil {
		tags = []string{}
	}

	var resp classifyResponse
	if err := c.post(ctx, "/classify", classifyRequest{Title: title, Tags: tags}, &resp); err != nil {
		return nil, err
	}
	if resp.Categories == nil {
		return []domain.Category{}, nil
	}
	return resp.Categories, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
