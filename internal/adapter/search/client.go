package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fathomlab/fathom/domain"
)

// Client is an HTTP client for a search gateway that routes by capability.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new search client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// fetchRequest is the request body for a search fetch.
type fetchRequest struct {
	Capability string `json:"capability"`
	Query      string `json:"query"`
}

// fetchResponse is the response body for a search fetch.
type fetchResponse struct {
	Records []domain.Record `json:"records"`
}

// Fetch executes one task against the gateway.
func (c *Client) Fetch(ctx context.Context, task domain.TaskSpec) ([]domain.Record, error) {
	body, err := json.Marshal(fetchRequest{Capability: task.Capability, Query: task.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/fetch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API error [%d]: %s", resp.StatusCode, string(respBody))
	}

	var result fetchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return result.Records, nil
}
